// Package servicetest fornece repositórios e storage em memória para os testes dos serviços.
package servicetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hugohenrick/dfe-sync/internal/domain/fiscal"
	"github.com/hugohenrick/dfe-sync/internal/infrastructure/storage"
)

// Documents implementa fiscal.DocumentRepository com a mesma unicidade por chave do banco
type Documents struct {
	mu    sync.Mutex
	byKey map[string]*fiscal.Document
}

func NewDocuments() *Documents {
	return &Documents{byKey: map[string]*fiscal.Document{}}
}

func (r *Documents) FindByKey(_ context.Context, key string) (*fiscal.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byKey[key]
	if !ok {
		return nil, fiscal.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *Documents) Create(_ context.Context, doc *fiscal.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[doc.AccessKey]; ok {
		return fiscal.ErrDuplicate
	}
	cp := *doc
	r.byKey[doc.AccessKey] = &cp
	return nil
}

func (r *Documents) Update(_ context.Context, doc *fiscal.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byKey[doc.AccessKey]
	if !ok || (cur.XMLKind == fiscal.KindFull && doc.XMLKind == fiscal.KindSummary) {
		return fiscal.ErrNotFound
	}
	cp := *doc
	r.byKey[doc.AccessKey] = &cp
	return nil
}

func (r *Documents) ListSummaries(_ context.Context, companyID int64, limit int) ([]*fiscal.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*fiscal.Document
	for _, d := range r.byKey {
		if d.CompanyID == companyID && d.XMLKind == fiscal.KindSummary && len(out) < limit {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Len retorna o número de documentos gravados
func (r *Documents) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byKey)
}

// Put grava um documento diretamente, para preparar cenários
func (r *Documents) Put(doc *fiscal.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *doc
	r.byKey[doc.AccessKey] = &cp
}

// States implementa fiscal.StateRepository
type States struct {
	mu     sync.Mutex
	states map[int64]fiscal.SyncState
	Saves  int
}

func NewStates() *States {
	return &States{states: map[int64]fiscal.SyncState{}}
}

func (r *States) Get(_ context.Context, companyID int64) (*fiscal.SyncState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[companyID]
	if !ok {
		return nil, fiscal.ErrNotFound
	}
	return &s, nil
}

func (r *States) Save(_ context.Context, state *fiscal.SyncState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.CompanyID] = *state
	r.Saves++
	return nil
}

// Put grava um estado diretamente
func (r *States) Put(state fiscal.SyncState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.CompanyID] = state
}

// SyncLogs implementa fiscal.SyncLogRepository guardando todas as versões gravadas
type SyncLogs struct {
	mu   sync.Mutex
	logs map[string]fiscal.SyncLog
	// Created guarda o status de cada log no momento da criação
	Created []fiscal.RunStatus
}

func NewSyncLogs() *SyncLogs {
	return &SyncLogs{logs: map[string]fiscal.SyncLog{}}
}

func (r *SyncLogs) Create(_ context.Context, log *fiscal.SyncLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs[log.ID] = *log
	r.Created = append(r.Created, log.Status)
	return nil
}

func (r *SyncLogs) Update(_ context.Context, log *fiscal.SyncLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.logs[log.ID]; !ok {
		return fiscal.ErrNotFound
	}
	r.logs[log.ID] = *log
	return nil
}

// All retorna os logs gravados
func (r *SyncLogs) All() []fiscal.SyncLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]fiscal.SyncLog, 0, len(r.logs))
	for _, l := range r.logs {
		out = append(out, l)
	}
	return out
}

// Manifestations implementa fiscal.ManifestationRepository com unicidade por (empresa, chave, evento)
type Manifestations struct {
	mu      sync.Mutex
	records map[string]*fiscal.Manifestation
}

func NewManifestations() *Manifestations {
	return &Manifestations{records: map[string]*fiscal.Manifestation{}}
}

func manifestKey(companyID int64, key, eventType string) string {
	return fmt.Sprintf("%d|%s|%s", companyID, key, eventType)
}

func (r *Manifestations) RegisterAttempt(_ context.Context, companyID int64, key, eventType string, at time.Time) (*fiscal.Manifestation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := manifestKey(companyID, key, eventType)
	m, ok := r.records[k]
	if !ok {
		m = &fiscal.Manifestation{
			ID:        uuid.New().String(),
			CompanyID: companyID,
			AccessKey: key,
			EventType: eventType,
			Status:    fiscal.ManifestPending,
			CreatedAt: at,
		}
		r.records[k] = m
	}
	m.Attempts++
	t := at
	m.LastAttemptAt = &t
	m.UpdatedAt = at
	cp := *m
	return &cp, nil
}

func (r *Manifestations) Update(_ context.Context, m *fiscal.Manifestation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := manifestKey(m.CompanyID, m.AccessKey, m.EventType)
	cur, ok := r.records[k]
	if !ok || cur.ID != m.ID {
		return fiscal.ErrNotFound
	}
	cp := *m
	cp.Attempts = cur.Attempts
	r.records[k] = &cp
	return nil
}

func (r *Manifestations) Find(_ context.Context, companyID int64, key, eventType string) (*fiscal.Manifestation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.records[manifestKey(companyID, key, eventType)]
	if !ok {
		return nil, fiscal.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

// Len retorna o número de registros de manifestação
func (r *Manifestations) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Blobs implementa storage.ObjectStorage em memória
type Blobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	Puts    int
}

func NewBlobs() *Blobs {
	return &Blobs{objects: map[string][]byte{}}
}

func (b *Blobs) Put(_ context.Context, key string, data []byte, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = append([]byte(nil), data...)
	b.Puts++
	return nil
}

func (b *Blobs) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return data, nil
}
