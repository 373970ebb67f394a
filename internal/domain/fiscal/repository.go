package fiscal

import (
	"context"
	"time"
)

// DocumentRepository persiste as NF-e importadas; a chave de acesso é única
type DocumentRepository interface {
	// FindByKey busca um documento pela chave; retorna ErrNotFound se não existir
	FindByKey(ctx context.Context, accessKey string) (*Document, error)

	// Create insere um documento; retorna ErrDuplicate se a chave já existir
	Create(ctx context.Context, doc *Document) error

	// Update atualiza um documento existente
	Update(ctx context.Context, doc *Document) error

	// ListSummaries lista até limit documentos ainda em resumo da empresa
	ListSummaries(ctx context.Context, companyID int64, limit int) ([]*Document, error)
}

// StateRepository persiste o cursor NSU por empresa
type StateRepository interface {
	// Get retorna o estado ou ErrNotFound
	Get(ctx context.Context, companyID int64) (*SyncState, error)

	// Save cria ou atualiza o estado da empresa
	Save(ctx context.Context, state *SyncState) error
}

// SyncLogRepository persiste os logs de sincronização
type SyncLogRepository interface {
	Create(ctx context.Context, log *SyncLog) error
	Update(ctx context.Context, log *SyncLog) error
}

// ManifestationRepository persiste as manifestações do destinatário
type ManifestationRepository interface {
	// RegisterAttempt cria o registro pendente com uma tentativa, ou incrementa
	// as tentativas do registro existente para (empresa, chave, evento)
	RegisterAttempt(ctx context.Context, companyID int64, accessKey, eventType string, at time.Time) (*Manifestation, error)

	// Update grava o resultado de uma tentativa
	Update(ctx context.Context, m *Manifestation) error

	// Find busca a manifestação; retorna ErrNotFound se não existir
	Find(ctx context.Context, companyID int64, accessKey, eventType string) (*Manifestation, error)
}
