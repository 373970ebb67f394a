package certificate

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/hugohenrick/dfe-sync/internal/domain/certificate"
	"github.com/hugohenrick/dfe-sync/pkg/logger"
	"github.com/hugohenrick/dfe-sync/pkg/pkcs12"
)

const contentTypePFX = "application/x-pkcs12"

// BlobStore grava e lê o .pfx armazenado
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Cipher criptografa e descriptografa a senha do certificado
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(encoded string) (string, error)
}

// Service implementa domain.Provider, o cadastro e a rotina de expiração
type Service struct {
	repo   domain.Repository
	blobs  BlobStore
	crypto Cipher
	log    logger.Logger
	now    func() time.Time
}

// NewService cria o serviço de certificados
func NewService(repo domain.Repository, blobs BlobStore, crypto Cipher, log logger.Logger) *Service {
	return &Service{
		repo:   repo,
		blobs:  blobs,
		crypto: crypto,
		log:    log,
		now:    time.Now,
	}
}

// Register valida o .pfx, grava o arquivo no storage e cadastra o certificado
// como ativo, substituindo o anterior da empresa.
func (s *Service) Register(ctx context.Context, companyID int64, pfx []byte, password string) (*domain.Certificate, error) {
	material, err := pkcs12.Decode(pfx, password)
	if err != nil {
		return nil, err
	}
	if err := material.CheckValidity(s.now()); err != nil {
		return nil, err
	}
	cnpj := material.CNPJ()
	if cnpj == "" {
		return nil, errors.New("CNPJ não encontrado no subject do certificado")
	}

	thumbprint := material.Thumbprint()
	key := fmt.Sprintf("certs/%d/%s.pfx", companyID, thumbprint)
	if err := s.blobs.Put(ctx, key, pfx, contentTypePFX); err != nil {
		return nil, fmt.Errorf("falha ao gravar certificado no storage: %w", err)
	}

	passwordEnc, err := s.crypto.Encrypt(password)
	if err != nil {
		return nil, fmt.Errorf("falha ao criptografar senha do certificado: %w", err)
	}

	cert, err := domain.NewCertificate(companyID, cnpj, key, passwordEnc, material.Certificate.NotBefore, material.Certificate.NotAfter)
	if err != nil {
		return nil, err
	}
	cert.Thumbprint = thumbprint
	if err := s.repo.Save(ctx, cert); err != nil {
		return nil, err
	}

	s.log.Info("certificado cadastrado",
		"company_id", companyID,
		"thumbprint", thumbprint,
		"valid_to", cert.ValidTo,
	)
	return cert, nil
}

// GetActiveCertificate retorna o certificado da empresa se ele puder ser usado agora
func (s *Service) GetActiveCertificate(ctx context.Context, companyID int64) (*domain.Certificate, error) {
	cert, err := s.repo.FindByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if err := cert.Usable(s.now()); err != nil {
		return nil, err
	}
	return cert, nil
}

// GetDecryptedMaterial baixa o .pfx, descriptografa a senha e confere o thumbprint
// cadastrado. Material corrompido coloca o certificado em erro.
func (s *Service) GetDecryptedMaterial(ctx context.Context, cert *domain.Certificate) ([]byte, string, error) {
	pfx, err := s.blobs.Get(ctx, cert.StorageKey)
	if err != nil {
		return nil, "", fmt.Errorf("falha ao ler certificado do storage: %w", err)
	}

	password, err := s.crypto.Decrypt(cert.PasswordEnc)
	if err != nil {
		return nil, "", s.fail(ctx, cert, fmt.Errorf("%w: %w", domain.ErrUndecryptable, err))
	}

	material, err := pkcs12.Decode(pfx, password)
	if err != nil {
		return nil, "", s.fail(ctx, cert, fmt.Errorf("%w: %w", domain.ErrUndecryptable, err))
	}
	if thumbprint := material.Thumbprint(); cert.Thumbprint != "" && thumbprint != cert.Thumbprint {
		return nil, "", s.fail(ctx, cert, fmt.Errorf("%w (thumbprint %s)", domain.ErrMismatch, thumbprint))
	}

	s.log.Debug("certificado carregado",
		"company_id", cert.CompanyID,
		"thumbprint", cert.Thumbprint,
		"valid_to", cert.ValidTo,
	)
	return pfx, password, nil
}

// fail registra o erro no certificado e o devolve
func (s *Service) fail(ctx context.Context, cert *domain.Certificate, cause error) error {
	cert.MarkError(cause.Error(), s.now())
	if err := s.repo.UpdateStatus(ctx, cert.ID, cert.Status, cert.LastError); err != nil {
		s.log.Error("falha ao registrar erro do certificado", "company_id", cert.CompanyID, "error", err)
	}
	s.log.Warn("certificado em erro", "company_id", cert.CompanyID, "error", cause)
	return cause
}

// CheckExpired marca como expirados os certificados ativos vencidos.
// Retorna quantos foram atualizados.
func (s *Service) CheckExpired(ctx context.Context) (int, error) {
	now := s.now()
	certs, err := s.repo.FindExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("falha ao buscar certificados expirados: %w", err)
	}

	var errs []error
	updated := 0
	for _, cert := range certs {
		cert.MarkExpired(now)
		if err := s.repo.UpdateStatus(ctx, cert.ID, cert.Status, cert.LastError); err != nil {
			errs = append(errs, fmt.Errorf("empresa %d: %w", cert.CompanyID, err))
			continue
		}
		updated++
		s.log.Warn("certificado expirado", "company_id", cert.CompanyID, "valid_to", cert.ValidTo)
	}

	return updated, errors.Join(errs...)
}
