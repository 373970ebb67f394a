package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/hugohenrick/dfe-sync/internal/domain/fiscal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StateRepository implementa a interface fiscal.StateRepository
type StateRepository struct {
	db *pgxpool.Pool
}

// NewStateRepository cria uma nova instância de StateRepository
func NewStateRepository(db *pgxpool.Pool) fiscal.StateRepository {
	return &StateRepository{
		db: db,
	}
}

// Get busca o cursor NSU da empresa
func (r *StateRepository) Get(ctx context.Context, companyID int64) (*fiscal.SyncState, error) {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("falha ao adquirir conexão: %w", err)
	}
	defer conn.Release()

	var state fiscal.SyncState
	err = conn.QueryRow(ctx, `
		SELECT company_id, last_nsu, last_sync_at, last_status, COALESCE(last_cstat, ''), COALESCE(last_error, '')
		FROM sefaz_dfe_state
		WHERE company_id = $1
	`, companyID).Scan(
		&state.CompanyID, &state.LastNSU, &state.LastSyncAt, &state.LastStatus, &state.LastCStat, &state.LastError)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fiscal.ErrNotFound
		}
		return nil, fmt.Errorf("falha ao buscar estado da sincronização: %w", err)
	}

	return &state, nil
}

// Save grava o estado. O cursor gravado nunca fica menor que o já persistido.
func (r *StateRepository) Save(ctx context.Context, state *fiscal.SyncState) error {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("falha ao adquirir conexão: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
		INSERT INTO sefaz_dfe_state (company_id, last_nsu, last_sync_at, last_status, last_cstat, last_error)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
		ON CONFLICT (company_id) DO UPDATE SET
			last_nsu = CASE
				WHEN EXCLUDED.last_nsu::numeric > sefaz_dfe_state.last_nsu::numeric THEN EXCLUDED.last_nsu
				ELSE sefaz_dfe_state.last_nsu
			END,
			last_sync_at = EXCLUDED.last_sync_at,
			last_status = EXCLUDED.last_status,
			last_cstat = EXCLUDED.last_cstat,
			last_error = EXCLUDED.last_error
	`, state.CompanyID, state.LastNSU, state.LastSyncAt, state.LastStatus, state.LastCStat, state.LastError)
	if err != nil {
		return fmt.Errorf("falha ao salvar estado da sincronização: %w", err)
	}

	return nil
}

// SyncLogRepository implementa a interface fiscal.SyncLogRepository
type SyncLogRepository struct {
	db *pgxpool.Pool
}

// NewSyncLogRepository cria uma nova instância de SyncLogRepository
func NewSyncLogRepository(db *pgxpool.Pool) fiscal.SyncLogRepository {
	return &SyncLogRepository{
		db: db,
	}
}

// Create registra o início de uma execução
func (r *SyncLogRepository) Create(ctx context.Context, log *fiscal.SyncLog) error {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("falha ao adquirir conexão: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
		INSERT INTO nfe_sync_logs (id, company_id, sync_type, started_at, status, docs_found, docs_imported)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, log.ID, log.CompanyID, log.Type, log.StartedAt, log.Status, log.DocsFound, log.DocsImported)
	if err != nil {
		return fmt.Errorf("falha ao criar log de sincronização: %w", err)
	}

	return nil
}

// Update grava o resultado final da execução
func (r *SyncLogRepository) Update(ctx context.Context, log *fiscal.SyncLog) error {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("falha ao adquirir conexão: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
		UPDATE nfe_sync_logs
		SET finished_at = $2, status = $3, docs_found = $4, docs_imported = $5, error_message = NULLIF($6, '')
		WHERE id = $1
	`, log.ID, log.FinishedAt, log.Status, log.DocsFound, log.DocsImported, log.ErrorMessage)
	if err != nil {
		return fmt.Errorf("falha ao atualizar log de sincronização: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: log %s", fiscal.ErrNotFound, log.ID)
	}

	return nil
}
