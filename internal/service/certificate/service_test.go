package certificate

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/hugohenrick/dfe-sync/internal/domain/certificate"
	"github.com/hugohenrick/dfe-sync/internal/infrastructure/storage"
	"github.com/hugohenrick/dfe-sync/pkg/crypto"
	"github.com/hugohenrick/dfe-sync/pkg/logger"
	"github.com/hugohenrick/dfe-sync/pkg/pkcs12"
	"github.com/hugohenrick/dfe-sync/pkg/pkcs12/pkcs12test"
)

type memoryRepo struct {
	certs   map[int64]*domain.Certificate
	updated map[string]domain.Status
}

func newMemoryRepo(certs ...*domain.Certificate) *memoryRepo {
	r := &memoryRepo{certs: map[int64]*domain.Certificate{}, updated: map[string]domain.Status{}}
	for _, c := range certs {
		r.certs[c.CompanyID] = c
	}
	return r
}

func (r *memoryRepo) Save(_ context.Context, cert *domain.Certificate) error {
	r.certs[cert.CompanyID] = cert
	return nil
}

func (r *memoryRepo) FindByCompany(_ context.Context, companyID int64) (*domain.Certificate, error) {
	c, ok := r.certs[companyID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memoryRepo) ListActiveCompanies(context.Context) ([]int64, error) {
	var ids []int64
	for id, c := range r.certs {
		if c.Status == domain.StatusActive {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *memoryRepo) FindExpired(_ context.Context, now time.Time) ([]*domain.Certificate, error) {
	var out []*domain.Certificate
	for _, c := range r.certs {
		if c.Status == domain.StatusActive && c.ValidTo.Before(now) {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memoryRepo) UpdateStatus(_ context.Context, id string, status domain.Status, lastError string) error {
	for _, c := range r.certs {
		if c.ID == id {
			c.Status = status
			c.LastError = lastError
			r.updated[id] = status
			return nil
		}
	}
	return domain.ErrNotFound
}

type memoryBlobs map[string][]byte

func (m memoryBlobs) Put(_ context.Context, key string, data []byte, _ string) error {
	m[key] = data
	return nil
}

func (m memoryBlobs) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := m[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return data, nil
}

func newCrypto(t *testing.T) *crypto.Service {
	t.Helper()
	key, err := crypto.GenerateMasterKey()
	if err != nil {
		t.Fatalf("falha ao gerar chave master: %v", err)
	}
	svc, err := crypto.NewService(key)
	if err != nil {
		t.Fatalf("falha ao criar serviço de criptografia: %v", err)
	}
	return svc
}

func newCert(t *testing.T, companyID int64, passwordEnc string, validTo time.Time) *domain.Certificate {
	t.Helper()
	cert, err := domain.NewCertificate(companyID, "12345678000190", "certs/1/a1.pfx", passwordEnc, validTo.Add(-365*24*time.Hour), validTo)
	if err != nil {
		t.Fatalf("NewCertificate falhou: %v", err)
	}
	return cert
}

func TestGetActiveCertificate(t *testing.T) {
	c := newCrypto(t)
	enc, _ := c.Encrypt("senha")
	now := time.Now()

	active := newCert(t, 1, enc, now.Add(time.Hour))
	expired := newCert(t, 2, enc, now.Add(-time.Hour))
	inactive := newCert(t, 3, enc, now.Add(time.Hour))
	inactive.Status = domain.StatusInactive

	svc := NewService(newMemoryRepo(active, expired, inactive), memoryBlobs{}, c, logger.NewNop())

	tests := []struct {
		name    string
		company int64
		wantErr error
	}{
		{"ativo", 1, nil},
		{"expirado", 2, domain.ErrExpired},
		{"inativo", 3, domain.ErrInactive},
		{"inexistente", 4, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cert, err := svc.GetActiveCertificate(context.Background(), tt.company)
			if tt.wantErr == nil {
				if err != nil || cert == nil {
					t.Fatalf("esperado certificado, obtido erro %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("erro = %v, esperado %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetDecryptedMaterial(t *testing.T) {
	c := newCrypto(t)
	b := pkcs12test.Generate(t, pkcs12test.Options{})
	enc, _ := c.Encrypt(b.Password)
	cert := newCert(t, 1, enc, time.Now().Add(time.Hour))
	blobs := memoryBlobs{cert.StorageKey: b.PFX}
	svc := NewService(newMemoryRepo(cert), blobs, c, logger.NewNop())

	pfx, password, err := svc.GetDecryptedMaterial(context.Background(), cert)
	if err != nil {
		t.Fatalf("GetDecryptedMaterial falhou: %v", err)
	}
	if len(pfx) != len(b.PFX) || password != b.Password {
		t.Errorf("material inesperado: senha %q", password)
	}

	missing := *cert
	missing.StorageKey = "certs/inexistente.pfx"
	if _, _, err := svc.GetDecryptedMaterial(context.Background(), &missing); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Errorf("esperado ErrObjectNotFound, obtido %v", err)
	}
}

func TestGetDecryptedMaterialMarksError(t *testing.T) {
	c := newCrypto(t)
	b := pkcs12test.Generate(t, pkcs12test.Options{})
	enc, _ := c.Encrypt(b.Password)
	m, err := pkcs12.Decode(b.PFX, b.Password)
	if err != nil {
		t.Fatalf("Decode falhou: %v", err)
	}

	tests := []struct {
		name    string
		crypto  *crypto.Service
		pfx     []byte
		thumb   string
		wantErr error
	}{
		{"chave master diferente", newCrypto(t), b.PFX, "", domain.ErrUndecryptable},
		{"pfx corrompido", c, []byte("pfx-bytes"), "", domain.ErrUndecryptable},
		{"thumbprint divergente", c, b.PFX, "outro", domain.ErrMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cert := newCert(t, 1, enc, time.Now().Add(time.Hour))
			cert.Thumbprint = tt.thumb
			repo := newMemoryRepo(cert)
			svc := NewService(repo, memoryBlobs{cert.StorageKey: tt.pfx}, tt.crypto, logger.NewNop())

			if _, _, err := svc.GetDecryptedMaterial(context.Background(), cert); !errors.Is(err, tt.wantErr) {
				t.Fatalf("erro = %v, esperado %v", err, tt.wantErr)
			}
			if repo.updated[cert.ID] != domain.StatusError || repo.certs[1].LastError == "" {
				t.Errorf("certificado deveria ficar em erro: %+v", repo.certs[1])
			}
			if _, err := svc.GetActiveCertificate(context.Background(), 1); !errors.Is(err, domain.ErrInactive) {
				t.Errorf("certificado em erro não deve ser usado: %v", err)
			}
		})
	}

	t.Run("thumbprint igual", func(t *testing.T) {
		cert := newCert(t, 1, enc, time.Now().Add(time.Hour))
		cert.Thumbprint = m.Thumbprint()
		svc := NewService(newMemoryRepo(cert), memoryBlobs{cert.StorageKey: b.PFX}, c, logger.NewNop())
		if _, _, err := svc.GetDecryptedMaterial(context.Background(), cert); err != nil {
			t.Fatalf("thumbprint cadastrado deveria ser aceito: %v", err)
		}
	})
}

func TestRegister(t *testing.T) {
	c := newCrypto(t)
	b := pkcs12test.Generate(t, pkcs12test.Options{CNPJ: "98765432000110"})
	repo := newMemoryRepo()
	blobs := memoryBlobs{}
	svc := NewService(repo, blobs, c, logger.NewNop())

	cert, err := svc.Register(context.Background(), 9, b.PFX, b.Password)
	if err != nil {
		t.Fatalf("Register falhou: %v", err)
	}
	if cert.CNPJ != "98765432000110" || cert.Status != domain.StatusActive || len(cert.Thumbprint) != 64 {
		t.Errorf("certificado = %+v", cert)
	}
	if _, ok := blobs[cert.StorageKey]; !ok {
		t.Errorf(".pfx não gravado em %s", cert.StorageKey)
	}
	if !cert.ValidTo.Equal(b.Certificate.NotAfter) {
		t.Errorf("valid_to = %v, esperado %v", cert.ValidTo, b.Certificate.NotAfter)
	}

	// o material cadastrado volta íntegro pelo caminho de carga
	stored, _ := repo.FindByCompany(context.Background(), 9)
	if _, password, err := svc.GetDecryptedMaterial(context.Background(), stored); err != nil || password != b.Password {
		t.Fatalf("GetDecryptedMaterial após cadastro = %q, %v", password, err)
	}
}

func TestRegisterRejectsInvalidMaterial(t *testing.T) {
	c := newCrypto(t)
	expired := pkcs12test.Generate(t, pkcs12test.Options{
		NotBefore: time.Now().Add(-48 * time.Hour),
		NotAfter:  time.Now().Add(-24 * time.Hour),
	})
	valid := pkcs12test.Generate(t, pkcs12test.Options{})

	tests := []struct {
		name     string
		pfx      []byte
		password string
		wantErr  error
	}{
		{"expirado", expired.PFX, expired.Password, pkcs12.ErrExpired},
		{"senha errada", valid.PFX, "errada", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemoryRepo()
			svc := NewService(repo, memoryBlobs{}, c, logger.NewNop())
			_, err := svc.Register(context.Background(), 1, tt.pfx, tt.password)
			if err == nil {
				t.Fatal("esperado erro")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("erro = %v, esperado %v", err, tt.wantErr)
			}
			if len(repo.certs) != 0 {
				t.Error("material inválido não deve ser cadastrado")
			}
		})
	}
}

func TestCheckExpired(t *testing.T) {
	now := time.Now()
	expired := newCert(t, 1, "enc", now.Add(-time.Minute))
	valid := newCert(t, 2, "enc", now.Add(time.Hour))
	repo := newMemoryRepo(expired, valid)
	svc := NewService(repo, memoryBlobs{}, newCrypto(t), logger.NewNop())

	n, err := svc.CheckExpired(context.Background())
	if err != nil {
		t.Fatalf("CheckExpired falhou: %v", err)
	}
	if n != 1 {
		t.Errorf("atualizados = %d, esperado 1", n)
	}
	if repo.updated[expired.ID] != domain.StatusExpired {
		t.Errorf("certificado vencido deveria estar expired")
	}
	if _, ok := repo.updated[valid.ID]; ok {
		t.Error("certificado válido não deveria ser alterado")
	}
	if repo.certs[1].LastError == "" {
		t.Error("last_error deveria registrar a expiração")
	}
}
