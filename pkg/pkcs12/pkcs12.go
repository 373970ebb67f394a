package pkcs12

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"software.sslmate.com/src/go-pkcs12"
)

var (
	ErrNotRSA      = errors.New("chave privada do certificado não é RSA")
	ErrExpired     = errors.New("certificado expirado")
	ErrNotYetValid = errors.New("certificado ainda não é válido")
)

// Material é o conteúdo decodificado de um arquivo .pfx (certificado A1)
type Material struct {
	PrivateKey  crypto.PrivateKey
	Certificate *x509.Certificate
	CACerts     []*x509.Certificate
}

// Decode decodifica o .pfx e confere se há certificado e chave
func Decode(pfxData []byte, password string) (*Material, error) {
	privateKey, certificate, caCerts, err := pkcs12.DecodeChain(pfxData, password)
	if err != nil {
		return nil, fmt.Errorf("falha ao decodificar PKCS12: %w", err)
	}
	if certificate == nil {
		return nil, errors.New("certificado não encontrado no arquivo .pfx")
	}
	if privateKey == nil {
		return nil, errors.New("chave privada não encontrada no arquivo .pfx")
	}
	return &Material{PrivateKey: privateKey, Certificate: certificate, CACerts: caCerts}, nil
}

// PEMBlocks retorna certificado, cadeia (CA) e chave privada como blocos PEM
func (m *Material) PEMBlocks() ([]*pem.Block, error) {
	var blocks []*pem.Block

	blocks = append(blocks, &pem.Block{
		Type:  "CERTIFICATE",
		Bytes: m.Certificate.Raw,
	})

	for _, cert := range m.CACerts {
		blocks = append(blocks, &pem.Block{
			Type:  "CERTIFICATE",
			Bytes: cert.Raw,
		})
	}

	pkData, err := x509.MarshalPKCS8PrivateKey(m.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("falha ao serializar chave privada: %w", err)
	}
	blocks = append(blocks, &pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: pkData,
	})

	return blocks, nil
}

// TLSCertificate monta o par certificado/chave em memória para mTLS
func (m *Material) TLSCertificate() (tls.Certificate, error) {
	blocks, err := m.PEMBlocks()
	if err != nil {
		return tls.Certificate{}, err
	}

	var certPEM, keyPEM []byte
	for _, b := range blocks {
		if b.Type == "PRIVATE KEY" {
			keyPEM = append(keyPEM, pem.EncodeToMemory(b)...)
			continue
		}
		certPEM = append(certPEM, pem.EncodeToMemory(b)...)
	}

	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("falha ao montar par X509: %w", err)
	}
	pair.Leaf = m.Certificate
	return pair, nil
}

// RSAKey retorna a chave privada RSA usada na assinatura XML
func (m *Material) RSAKey() (*rsa.PrivateKey, error) {
	key, ok := m.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, ErrNotRSA
	}
	return key, nil
}

// Thumbprint é o SHA-256 (hex) do certificado DER
func (m *Material) Thumbprint() string {
	sum := sha256.Sum256(m.Certificate.Raw)
	return hex.EncodeToString(sum[:])
}

// CNPJ extrai o CNPJ do CN no padrão ICP-Brasil ("RAZAO SOCIAL:CNPJ")
func (m *Material) CNPJ() string {
	cn := m.Certificate.Subject.CommonName
	i := strings.LastIndex(cn, ":")
	if i < 0 {
		return ""
	}
	digits := strings.TrimSpace(cn[i+1:])
	if len(digits) != 14 {
		return ""
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return digits
}

// StateCode retorna a sigla da UF do campo ST do subject, se houver
func (m *Material) StateCode() string {
	for _, st := range m.Certificate.Subject.Province {
		st = strings.ToUpper(strings.TrimSpace(st))
		if st != "" {
			return st
		}
	}
	return ""
}

// CheckValidity confere a janela de validade do certificado
func (m *Material) CheckValidity(now time.Time) error {
	if now.After(m.Certificate.NotAfter) {
		return fmt.Errorf("%w em %s", ErrExpired, m.Certificate.NotAfter.UTC().Format(time.RFC3339))
	}
	if now.Before(m.Certificate.NotBefore) {
		return fmt.Errorf("%w (válido a partir de %s)", ErrNotYetValid, m.Certificate.NotBefore.UTC().Format(time.RFC3339))
	}
	return nil
}
