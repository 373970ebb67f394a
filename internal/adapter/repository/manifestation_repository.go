package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hugohenrick/dfe-sync/internal/domain/fiscal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ManifestationRepository implementa a interface fiscal.ManifestationRepository
type ManifestationRepository struct {
	db *pgxpool.Pool
}

// NewManifestationRepository cria uma nova instância de ManifestationRepository
func NewManifestationRepository(db *pgxpool.Pool) fiscal.ManifestationRepository {
	return &ManifestationRepository{
		db: db,
	}
}

const manifestationColumns = `
	id, company_id, chave, tp_evento, dh_evento, status, COALESCE(protocolo, ''),
	tentativas, COALESCE(last_error, ''), last_attempt_at, created_at, updated_at`

func scanManifestation(row pgx.Row) (*fiscal.Manifestation, error) {
	var m fiscal.Manifestation
	err := row.Scan(
		&m.ID, &m.CompanyID, &m.AccessKey, &m.EventType, &m.EventAt, &m.Status, &m.Protocol,
		&m.Attempts, &m.LastError, &m.LastAttemptAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// RegisterAttempt cria o registro com uma tentativa ou incrementa o existente
// em uma única instrução, sem duplicar linhas para (empresa, chave, evento)
func (r *ManifestationRepository) RegisterAttempt(ctx context.Context, companyID int64, accessKey, eventType string, at time.Time) (*fiscal.Manifestation, error) {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("falha ao adquirir conexão: %w", err)
	}
	defer conn.Release()

	query := `
		INSERT INTO nfe_manifestations (
			id, company_id, chave, tp_evento, status, tentativas, last_attempt_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, 1, $6, $6, $6)
		ON CONFLICT (company_id, chave, tp_evento) DO UPDATE SET
			tentativas = nfe_manifestations.tentativas + 1,
			last_attempt_at = EXCLUDED.last_attempt_at,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + manifestationColumns

	m, err := scanManifestation(conn.QueryRow(ctx, query,
		uuid.New().String(), companyID, accessKey, eventType, fiscal.ManifestPending, at))
	if err != nil {
		return nil, fmt.Errorf("falha ao registrar tentativa de manifestação: %w", err)
	}

	return m, nil
}

// Update grava o resultado da tentativa
func (r *ManifestationRepository) Update(ctx context.Context, m *fiscal.Manifestation) error {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("falha ao adquirir conexão: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
		UPDATE nfe_manifestations
		SET dh_evento = $2, status = $3, protocolo = NULLIF($4, ''), last_error = NULLIF($5, ''), updated_at = $6
		WHERE id = $1
	`, m.ID, m.EventAt, m.Status, m.Protocol, m.LastError, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("falha ao atualizar manifestação: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: manifestação %s", fiscal.ErrNotFound, m.ID)
	}

	return nil
}

// Find busca a manifestação de (empresa, chave, evento)
func (r *ManifestationRepository) Find(ctx context.Context, companyID int64, accessKey, eventType string) (*fiscal.Manifestation, error) {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("falha ao adquirir conexão: %w", err)
	}
	defer conn.Release()

	m, err := scanManifestation(conn.QueryRow(ctx, `
		SELECT `+manifestationColumns+`
		FROM nfe_manifestations
		WHERE company_id = $1 AND chave = $2 AND tp_evento = $3
	`, companyID, accessKey, eventType))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fiscal.ErrNotFound
		}
		return nil, fmt.Errorf("falha ao buscar manifestação: %w", err)
	}

	return m, nil
}
