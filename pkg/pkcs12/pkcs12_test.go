package pkcs12_test

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/hugohenrick/dfe-sync/pkg/pkcs12"
	"github.com/hugohenrick/dfe-sync/pkg/pkcs12/pkcs12test"
)

func TestDecodeAndTLSCertificate(t *testing.T) {
	b := pkcs12test.Generate(t, pkcs12test.Options{State: "go"})

	m, err := pkcs12.Decode(b.PFX, b.Password)
	if err != nil {
		t.Fatalf("Decode falhou: %v", err)
	}
	if m.CNPJ() != "12345678000190" {
		t.Errorf("CNPJ = %q", m.CNPJ())
	}
	if m.StateCode() != "GO" {
		t.Errorf("StateCode = %q, esperado GO", m.StateCode())
	}

	pair, err := m.TLSCertificate()
	if err != nil {
		t.Fatalf("TLSCertificate falhou: %v", err)
	}
	if len(pair.Certificate) != 1 || pair.Leaf == nil {
		t.Fatalf("par TLS incompleto: %d certificados", len(pair.Certificate))
	}

	key, err := m.RSAKey()
	if err != nil {
		t.Fatalf("RSAKey falhou: %v", err)
	}
	if key.N.Cmp(b.Key.N) != 0 {
		t.Error("chave RSA decodificada difere da original")
	}

	sum := sha256.Sum256(b.Certificate.Raw)
	if m.Thumbprint() != hex.EncodeToString(sum[:]) {
		t.Error("thumbprint incorreto")
	}
}

func TestDecodeWrongPassword(t *testing.T) {
	b := pkcs12test.Generate(t, pkcs12test.Options{})
	if _, err := pkcs12.Decode(b.PFX, "errada"); err == nil {
		t.Fatal("senha errada deveria falhar")
	}
}

func TestPEMBlocks(t *testing.T) {
	b := pkcs12test.Generate(t, pkcs12test.Options{})
	m, err := pkcs12.Decode(b.PFX, b.Password)
	if err != nil {
		t.Fatalf("Decode falhou: %v", err)
	}
	blocks, err := m.PEMBlocks()
	if err != nil {
		t.Fatalf("PEMBlocks falhou: %v", err)
	}
	if len(blocks) != 2 || blocks[0].Type != "CERTIFICATE" || blocks[1].Type != "PRIVATE KEY" {
		t.Fatalf("blocos inesperados: %d", len(blocks))
	}
}

func TestCheckValidity(t *testing.T) {
	b := pkcs12test.Generate(t, pkcs12test.Options{
		NotBefore: time.Now().Add(-48 * time.Hour),
		NotAfter:  time.Now().Add(-24 * time.Hour),
	})
	m, err := pkcs12.Decode(b.PFX, b.Password)
	if err != nil {
		t.Fatalf("Decode falhou: %v", err)
	}
	if err := m.CheckValidity(time.Now()); !errors.Is(err, pkcs12.ErrExpired) {
		t.Fatalf("esperado ErrExpired, veio %v", err)
	}
	if err := m.CheckValidity(time.Now().Add(-36 * time.Hour)); err != nil {
		t.Fatalf("dentro da janela deveria ser válido: %v", err)
	}
}
