package certificate

import (
	"context"
	"time"
)

// Repository define a interface para operações de repositório de certificados digitais
type Repository interface {
	// Save cria ou atualiza o certificado da empresa (um por empresa)
	Save(ctx context.Context, cert *Certificate) error

	// FindByCompany busca o certificado de uma empresa
	FindByCompany(ctx context.Context, companyID int64) (*Certificate, error)

	// ListActiveCompanies lista as empresas com certificado ativo
	ListActiveCompanies(ctx context.Context) ([]int64, error)

	// FindExpired retorna certificados ativos com validade anterior a now
	FindExpired(ctx context.Context, now time.Time) ([]*Certificate, error)

	// UpdateStatus atualiza status e último erro
	UpdateStatus(ctx context.Context, id string, status Status, lastError string) error
}

// Provider fornece o certificado ativo e o material descriptografado para as chamadas à SEFAZ
type Provider interface {
	GetActiveCertificate(ctx context.Context, companyID int64) (*Certificate, error)
	GetDecryptedMaterial(ctx context.Context, cert *Certificate) (pfx []byte, password string, err error)
}
