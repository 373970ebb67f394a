package main

import (
	"context"
	"strings"
	"testing"
)

func TestRunReturnsConfigError(t *testing.T) {
	t.Setenv("NFE_AMBIENTE", "invalido")
	t.Setenv("CERT_MASTER_KEY", "chave")

	err := run(flags{once: true})
	if err == nil || !strings.Contains(err.Error(), "NFE_AMBIENTE") {
		t.Fatalf("run deveria devolver o erro de configuração, veio %v", err)
	}
}

func TestImportCertificateRequiresCompany(t *testing.T) {
	app := &App{}
	err := app.ImportCertificate(context.Background(), 0, "a1.pfx", "senha")
	if err == nil || !strings.Contains(err.Error(), "-company") {
		t.Errorf("esperado erro exigindo -company, veio %v", err)
	}
}
