// Package pkcs12test gera certificados A1 autoassinados para testes.
package pkcs12test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	gopkcs12 "software.sslmate.com/src/go-pkcs12"
)

// Password é a senha usada nos .pfx gerados
const Password = "senha-teste"

// Options controla o certificado gerado
type Options struct {
	CNPJ      string
	State     string
	NotBefore time.Time
	NotAfter  time.Time
	IsCA      bool
}

// Bundle agrupa o .pfx e os objetos que o originaram
type Bundle struct {
	PFX         []byte
	Password    string
	Key         *rsa.PrivateKey
	Certificate *x509.Certificate
}

// Generate cria um certificado RSA autoassinado e o empacota em PKCS12
func Generate(t testing.TB, opts Options) *Bundle {
	t.Helper()

	if opts.NotBefore.IsZero() {
		opts.NotBefore = time.Now().Add(-time.Hour)
	}
	if opts.NotAfter.IsZero() {
		opts.NotAfter = time.Now().Add(365 * 24 * time.Hour)
	}
	if opts.CNPJ == "" {
		opts.CNPJ = "12345678000190"
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("falha ao gerar chave RSA: %v", err)
	}

	subject := pkix.Name{
		CommonName:   "EMPRESA TESTE LTDA:" + opts.CNPJ,
		Organization: []string{"ICP-Brasil"},
		Country:      []string{"BR"},
	}
	if opts.State != "" {
		subject.Province = []string{opts.State}
	}

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               subject,
		NotBefore:             opts.NotBefore,
		NotAfter:              opts.NotAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  opts.IsCA,
		DNSNames:              []string{"localhost"},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("falha ao criar certificado: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("falha ao ler certificado: %v", err)
	}

	pfx, err := gopkcs12.Modern.Encode(key, cert, nil, Password)
	if err != nil {
		t.Fatalf("falha ao codificar PKCS12: %v", err)
	}

	return &Bundle{PFX: pfx, Password: Password, Key: key, Certificate: cert}
}
