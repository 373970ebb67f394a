package fiscal

import (
	"time"
)

// ManifestationStatus é o estado de uma manifestação do destinatário
type ManifestationStatus string

const (
	ManifestPending  ManifestationStatus = "pending"
	ManifestSent     ManifestationStatus = "sent"
	ManifestAccepted ManifestationStatus = "accepted"
	ManifestError    ManifestationStatus = "error"
)

const maxErrorLength = 500

// Manifestation é único por (empresa, chave, tipo de evento); novas tentativas
// incrementam Attempts no mesmo registro.
type Manifestation struct {
	ID            string              `json:"id"`
	CompanyID     int64               `json:"company_id"`
	AccessKey     string              `json:"chave"`
	EventType     string              `json:"tp_evento"`
	EventAt       *time.Time          `json:"dh_evento,omitempty"`
	Status        ManifestationStatus `json:"status"`
	Protocol      string              `json:"protocolo,omitempty"`
	Attempts      int                 `json:"tentativas"`
	LastError     string              `json:"last_error,omitempty"`
	LastAttemptAt *time.Time          `json:"last_attempt_at,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// RecordSent registra a resposta do evento enviado
func (m *Manifestation) RecordSent(accepted bool, protocol, motivo string, eventAt time.Time) {
	if accepted {
		m.Status = ManifestAccepted
		m.LastError = ""
	} else {
		m.Status = ManifestSent
		m.LastError = truncate(motivo)
	}
	if protocol != "" {
		m.Protocol = protocol
	}
	m.EventAt = &eventAt
	m.UpdatedAt = time.Now()
}

// RecordError registra falha no envio do evento
func (m *Manifestation) RecordError(err error) {
	m.Status = ManifestError
	m.LastError = truncate(err.Error())
	m.UpdatedAt = time.Now()
}

// MarkPending devolve a manifestação para pendente aguardando o procNFe
func (m *Manifestation) MarkPending(reason string) {
	m.Status = ManifestPending
	m.LastError = truncate(reason)
	m.UpdatedAt = time.Now()
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) > maxErrorLength {
		return string(r[:maxErrorLength])
	}
	return s
}
