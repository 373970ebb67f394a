package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hugohenrick/dfe-sync/internal/domain/certificate"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CertificateRepository implementa a interface certificate.Repository
type CertificateRepository struct {
	db *pgxpool.Pool
}

// NewCertificateRepository cria uma nova instância de CertificateRepository
func NewCertificateRepository(db *pgxpool.Pool) certificate.Repository {
	return &CertificateRepository{
		db: db,
	}
}

const certificateColumns = `
	c.id, c.company_id, c.cnpj, COALESCE(co.uf, ''), c.cert_storage_key, c.cert_password_enc,
	COALESCE(c.cert_thumbprint, ''), c.valid_from, c.valid_to, c.status, COALESCE(c.last_error, ''),
	c.created_at, c.updated_at`

func scanCertificate(row pgx.Row) (*certificate.Certificate, error) {
	var cert certificate.Certificate
	err := row.Scan(
		&cert.ID, &cert.CompanyID, &cert.CNPJ, &cert.CompanyUF, &cert.StorageKey, &cert.PasswordEnc,
		&cert.Thumbprint, &cert.ValidFrom, &cert.ValidTo, &cert.Status, &cert.LastError,
		&cert.CreatedAt, &cert.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

// Save insere o certificado ou substitui o atual da empresa
func (r *CertificateRepository) Save(ctx context.Context, cert *certificate.Certificate) error {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("falha ao adquirir conexão: %w", err)
	}
	defer conn.Release()

	query := `
		INSERT INTO company_certificates (
			id, company_id, cnpj, cert_storage_key, cert_password_enc, cert_thumbprint,
			valid_from, valid_to, status, last_error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, NULLIF($10, ''), $11, $12)
		ON CONFLICT (company_id) DO UPDATE SET
			cnpj = EXCLUDED.cnpj,
			cert_storage_key = EXCLUDED.cert_storage_key,
			cert_password_enc = EXCLUDED.cert_password_enc,
			cert_thumbprint = EXCLUDED.cert_thumbprint,
			valid_from = EXCLUDED.valid_from,
			valid_to = EXCLUDED.valid_to,
			status = EXCLUDED.status,
			last_error = EXCLUDED.last_error,
			updated_at = EXCLUDED.updated_at
	`

	_, err = conn.Exec(ctx, query,
		cert.ID, cert.CompanyID, cert.CNPJ, cert.StorageKey, cert.PasswordEnc, cert.Thumbprint,
		cert.ValidFrom, cert.ValidTo, cert.Status, cert.LastError, cert.CreatedAt, cert.UpdatedAt)
	if err != nil {
		return fmt.Errorf("falha ao salvar certificado: %w", err)
	}

	return nil
}

// FindByCompany busca o certificado da empresa junto com a UF cadastrada
func (r *CertificateRepository) FindByCompany(ctx context.Context, companyID int64) (*certificate.Certificate, error) {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("falha ao adquirir conexão: %w", err)
	}
	defer conn.Release()

	query := `SELECT ` + certificateColumns + `
		FROM company_certificates c
		JOIN companies co ON co.id = c.company_id
		WHERE c.company_id = $1`

	cert, err := scanCertificate(conn.QueryRow(ctx, query, companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w para a empresa %d", certificate.ErrNotFound, companyID)
		}
		return nil, fmt.Errorf("falha ao buscar certificado: %w", err)
	}

	return cert, nil
}

// ListActiveCompanies lista as empresas com certificado ativo e dentro da validade
func (r *CertificateRepository) ListActiveCompanies(ctx context.Context) ([]int64, error) {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("falha ao adquirir conexão: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
		SELECT company_id FROM company_certificates
		WHERE status = $1 AND valid_to > now()
		ORDER BY company_id
	`, certificate.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("falha ao listar empresas: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("falha ao ler empresas: %w", err)
	}

	return ids, nil
}

// FindExpired retorna os certificados ainda ativos cuja validade terminou antes de now
func (r *CertificateRepository) FindExpired(ctx context.Context, now time.Time) ([]*certificate.Certificate, error) {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("falha ao adquirir conexão: %w", err)
	}
	defer conn.Release()

	query := `SELECT ` + certificateColumns + `
		FROM company_certificates c
		JOIN companies co ON co.id = c.company_id
		WHERE c.status = $1 AND c.valid_to < $2`

	rows, err := conn.Query(ctx, query, certificate.StatusActive, now)
	if err != nil {
		return nil, fmt.Errorf("falha ao buscar certificados expirados: %w", err)
	}
	defer rows.Close()

	var certs []*certificate.Certificate
	for rows.Next() {
		cert, err := scanCertificate(rows)
		if err != nil {
			return nil, fmt.Errorf("falha ao ler certificado: %w", err)
		}
		certs = append(certs, cert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("falha ao iterar certificados: %w", err)
	}

	return certs, nil
}

// UpdateStatus atualiza o status e o último erro do certificado
func (r *CertificateRepository) UpdateStatus(ctx context.Context, id string, status certificate.Status, lastError string) error {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("falha ao adquirir conexão: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
		UPDATE company_certificates
		SET status = $2, last_error = NULLIF($3, ''), updated_at = now()
		WHERE id = $1
	`, id, status, lastError)
	if err != nil {
		return fmt.Errorf("falha ao atualizar status do certificado: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", certificate.ErrNotFound, id)
	}

	return nil
}
