package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBuildXMLKey(t *testing.T) {
	at := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	key := "35240112345678000190550010000001231000001234"

	got := BuildXMLKey(7, "12345678000190", at, key)
	want := "nfe/xml/7/12345678000190/2024/03/" + key + ".xml"
	if got != want {
		t.Errorf("BuildXMLKey = %s, esperado %s", got, want)
	}

	if got := BuildXMLKey(7, "", at, key); got != "nfe/xml/7/sem_cnpj/2024/03/"+key+".xml" {
		t.Errorf("CNPJ vazio não tratado: %s", got)
	}
}

func TestSHA256(t *testing.T) {
	// sha256("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := SHA256([]byte("abc")); got != want {
		t.Errorf("SHA256 = %s", got)
	}
}

func TestLocalStoragePutGet(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage falhou: %v", err)
	}

	if err := s.Put(ctx, "nfe/xml/1/a.xml", []byte("<a/>"), ContentTypeXML); err != nil {
		t.Fatalf("Put falhou: %v", err)
	}
	data, err := s.Get(ctx, "nfe/xml/1/a.xml")
	if err != nil || string(data) != "<a/>" {
		t.Fatalf("Get retornou %q, %v", data, err)
	}

	if err := s.Put(ctx, "nfe/xml/1/a.xml", []byte("<b/>"), ContentTypeXML); err != nil {
		t.Fatalf("sobrescrita falhou: %v", err)
	}
	data, _ = s.Get(ctx, "nfe/xml/1/a.xml")
	if string(data) != "<b/>" {
		t.Errorf("conteúdo não sobrescrito: %q", data)
	}

	if _, err := s.Get(ctx, "nao/existe.xml"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("esperado ErrObjectNotFound, veio %v", err)
	}
	if err := s.Put(ctx, "../fora.xml", nil, ContentTypeXML); err == nil {
		t.Error("chave com .. deveria ser rejeitada")
	}
}
