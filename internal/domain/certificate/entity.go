package certificate

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status define o ciclo de vida do certificado A1
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusExpired  Status = "expired"
	StatusError    Status = "error"
)

var (
	ErrNotFound      = errors.New("certificado não encontrado")
	ErrInactive      = errors.New("certificado inativo")
	ErrExpired       = errors.New("certificado expirado")
	ErrUndecryptable = errors.New("não foi possível descriptografar o certificado")
	ErrMismatch      = errors.New("certificado no storage difere do cadastrado")
)

// Certificado digital A1 (.pfx) vinculado a uma empresa
type Certificate struct {
	ID          string    `json:"id"`
	CompanyID   int64     `json:"company_id"`
	CNPJ        string    `json:"cnpj"`
	CompanyUF   string    `json:"company_uf,omitempty"`
	StorageKey  string    `json:"-"` // caminho do .pfx no storage
	PasswordEnc string    `json:"-"` // senha criptografada AES-GCM
	Thumbprint  string    `json:"thumbprint"`
	ValidFrom   time.Time `json:"valid_from"`
	ValidTo     time.Time `json:"valid_to"`
	Status      Status    `json:"status"`
	LastError   string    `json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewCertificate cria um novo certificado digital ativo
func NewCertificate(companyID int64, cnpj, storageKey, passwordEnc string, validFrom, validTo time.Time) (*Certificate, error) {
	if companyID <= 0 {
		return nil, errors.New("ID da empresa é obrigatório")
	}
	if cnpj == "" {
		return nil, errors.New("CNPJ do certificado é obrigatório")
	}
	if storageKey == "" {
		return nil, errors.New("caminho do certificado não pode estar vazio")
	}
	if passwordEnc == "" {
		return nil, errors.New("senha do certificado é obrigatória")
	}
	if !validTo.After(validFrom) {
		return nil, errors.New("janela de validade do certificado inválida")
	}

	now := time.Now()
	return &Certificate{
		ID:          uuid.New().String(),
		CompanyID:   companyID,
		CNPJ:        cnpj,
		StorageKey:  storageKey,
		PasswordEnc: passwordEnc,
		ValidFrom:   validFrom,
		ValidTo:     validTo,
		Status:      StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// IsExpired verifica se o certificado está expirado no instante informado
func (c *Certificate) IsExpired(now time.Time) bool {
	return now.After(c.ValidTo)
}

// Usable retorna o motivo pelo qual o certificado não pode ser usado, ou nil
func (c *Certificate) Usable(now time.Time) error {
	switch {
	case c.Status == StatusExpired || c.IsExpired(now):
		return fmt.Errorf("%w em %s", ErrExpired, c.ValidTo.Format("02/01/2006"))
	case c.Status != StatusActive:
		return fmt.Errorf("%w (status %s)", ErrInactive, c.Status)
	}
	return nil
}

// MarkExpired transiciona o certificado para expirado
func (c *Certificate) MarkExpired(now time.Time) {
	c.Status = StatusExpired
	c.LastError = fmt.Sprintf("Certificado expirado em %s", c.ValidTo.Format(time.RFC3339))
	c.UpdatedAt = now
}

// MarkError registra falha ao utilizar o certificado
func (c *Certificate) MarkError(msg string, now time.Time) {
	c.Status = StatusError
	c.LastError = msg
	c.UpdatedAt = now
}
