package fiscal

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugohenrick/dfe-sync/pkg/nfekey"
)

// Códigos cStat da distribuição que encerram a consulta sem erro
const (
	CStatNoDocuments = "137"
	CStatDocuments   = "138"
)

// StateStatus é o resultado da última sincronização
type StateStatus string

const (
	StateOK    StateStatus = "ok"
	StateError StateStatus = "error"
)

// SyncState guarda o cursor NSU de uma empresa (1:1)
type SyncState struct {
	CompanyID  int64       `json:"company_id"`
	LastNSU    string      `json:"last_nsu"`
	LastSyncAt *time.Time  `json:"last_sync_at,omitempty"`
	LastStatus StateStatus `json:"last_status"`
	LastCStat  string      `json:"last_cstat,omitempty"`
	LastError  string      `json:"last_error,omitempty"`
}

// NewSyncState cria o estado inicial com cursor zero
func NewSyncState(companyID int64) *SyncState {
	return &SyncState{CompanyID: companyID, LastNSU: "0", LastStatus: StateOK}
}

// Reblocked indica se a última resposta foi 137 há menos de cooldown
func (s *SyncState) Reblocked(now time.Time, cooldown time.Duration) bool {
	if s.LastCStat != CStatNoDocuments || s.LastSyncAt == nil {
		return false
	}
	return now.Sub(*s.LastSyncAt) < cooldown
}

// ApplyResponse atualiza o estado a partir da resposta da distribuição.
// O cursor só avança em 138 e nunca regride.
func (s *SyncState) ApplyResponse(cStat, maxNSU, motivo string, now time.Time) {
	s.LastCStat = cStat

	switch cStat {
	case CStatDocuments:
		s.AdvanceTo(maxNSU)
		fallthrough
	case CStatNoDocuments:
		t := now
		s.LastSyncAt = &t
		s.LastStatus = StateOK
		s.LastError = ""
	default:
		s.LastStatus = StateError
		s.LastError = motivo
	}
}

// AdvanceTo move o cursor para nsu se ele for numericamente maior
func (s *SyncState) AdvanceTo(nsu string) {
	if nsu == "" {
		return
	}
	if _, err := nfekey.ParseNSU(nsu); err != nil {
		return
	}
	if nfekey.CompareNSU(nsu, s.LastNSU) > 0 {
		s.LastNSU = strings.TrimSpace(nsu)
	}
}

// SyncType identifica a origem da sincronização
type SyncType string

const (
	SyncIncremental SyncType = "incremental"
	SyncManual      SyncType = "manual"
	SyncByKey       SyncType = "by_key"
)

// RunStatus é o status de uma execução de sincronização
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunError   RunStatus = "error"
)

// SyncLog registra uma execução de sincronização
type SyncLog struct {
	ID           string     `json:"id"`
	CompanyID    int64      `json:"company_id"`
	Type         SyncType   `json:"sync_type"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Status       RunStatus  `json:"status"`
	DocsFound    int        `json:"docs_found"`
	DocsImported int        `json:"docs_imported"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// NewSyncLog abre um log em execução
func NewSyncLog(companyID int64, syncType SyncType) (*SyncLog, error) {
	switch syncType {
	case SyncIncremental, SyncManual, SyncByKey:
	default:
		return nil, errors.New("tipo de sincronização inválido")
	}
	return &SyncLog{
		ID:        uuid.New().String(),
		CompanyID: companyID,
		Type:      syncType,
		StartedAt: time.Now(),
		Status:    RunRunning,
	}, nil
}

// Finish encerra o log com o status final
func (l *SyncLog) Finish(status RunStatus, found, imported int, errMsg string) {
	now := time.Now()
	l.FinishedAt = &now
	l.Status = status
	l.DocsFound = found
	l.DocsImported = imported
	l.ErrorMessage = errMsg
}
