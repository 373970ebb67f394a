package fiscal

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound  = errors.New("registro não encontrado")
	ErrDuplicate = errors.New("documento já existe para esta chave")
)

// XMLKind indica se o XML armazenado é o resumo (resNFe) ou o documento completo (procNFe)
type XMLKind string

const (
	KindSummary XMLKind = "summary"
	KindFull    XMLKind = "full"
)

// Direction define se a nota foi emitida ou recebida pela empresa
type Direction string

const (
	DirectionEmitted  Direction = "emitted"
	DirectionReceived Direction = "received"
	DirectionUnknown  Direction = "unknown"
)

// DocumentStatus define a situação da NF-e
type DocumentStatus string

const (
	StatusAuthorized DocumentStatus = "authorized"
	StatusCanceled   DocumentStatus = "canceled"
	StatusDenied     DocumentStatus = "denied"
	StatusUnknown    DocumentStatus = "unknown"
)

// Document é uma NF-e importada da SEFAZ, única por chave de acesso
type Document struct {
	ID            string              `json:"id"`
	CompanyID     int64               `json:"company_id"`
	AccessKey     string              `json:"chave"`
	NSU           string              `json:"nsu"`
	Direction     Direction           `json:"tipo"`
	Status        DocumentStatus      `json:"situacao"`
	XMLKind       XMLKind             `json:"xml_kind"`
	Number        string              `json:"numero,omitempty"`
	Series        string              `json:"serie,omitempty"`
	IssuedAt      *time.Time          `json:"data_emissao,omitempty"`
	IssuerCNPJ    string              `json:"cnpj_emitente,omitempty"`
	IssuerName    string              `json:"emitente_nome,omitempty"`
	RecipientCNPJ string              `json:"cnpj_destinatario,omitempty"`
	RecipientName string              `json:"destinatario_nome,omitempty"`
	TotalValue    decimal.NullDecimal `json:"valor_total"`
	StorageKey    string              `json:"xml_storage_key"`
	SHA256        string              `json:"xml_sha256"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// NewDocument cria um novo documento a partir de uma chave de acesso
func NewDocument(companyID int64, accessKey, nsu string, kind XMLKind) (*Document, error) {
	if companyID <= 0 {
		return nil, errors.New("ID da empresa é obrigatório")
	}
	if len(accessKey) != 44 {
		return nil, errors.New("chave de acesso deve ter 44 dígitos")
	}
	if kind != KindSummary && kind != KindFull {
		return nil, errors.New("tipo de XML inválido")
	}

	now := time.Now()
	return &Document{
		ID:        uuid.New().String(),
		CompanyID: companyID,
		AccessKey: accessKey,
		NSU:       nsu,
		Direction: DirectionUnknown,
		Status:    StatusAuthorized,
		XMLKind:   kind,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsFull indica se o documento já possui o XML completo
func (d *Document) IsFull() bool {
	return d.XMLKind == KindFull
}

// Merge aplica uma nova ingestão da mesma chave sobre o registro existente.
// Só há atualização quando o registro é resumo e a ingestão é completa;
// um registro completo nunca volta a ser resumo. Retorna true se houve mudança.
func (d *Document) Merge(incoming *Document) bool {
	if d.XMLKind != KindSummary || incoming.XMLKind != KindFull {
		return false
	}

	d.NSU = incoming.NSU
	d.Direction = incoming.Direction
	if d.Status != StatusCanceled {
		d.Status = incoming.Status
	}
	d.XMLKind = KindFull
	d.Number = incoming.Number
	d.Series = incoming.Series
	d.IssuedAt = incoming.IssuedAt
	d.IssuerCNPJ = incoming.IssuerCNPJ
	d.IssuerName = incoming.IssuerName
	d.RecipientCNPJ = incoming.RecipientCNPJ
	d.RecipientName = incoming.RecipientName
	d.TotalValue = incoming.TotalValue
	d.StorageKey = incoming.StorageKey
	d.SHA256 = incoming.SHA256
	d.UpdatedAt = time.Now()
	return true
}

// Refresh atualiza um resumo com um resNFe mais recente da mesma chave.
// Não se aplica a registros completos nem a ingestões completas (ver Merge).
func (d *Document) Refresh(incoming *Document) bool {
	if d.IsFull() || incoming.IsFull() {
		return false
	}

	d.NSU = incoming.NSU
	d.Direction = incoming.Direction
	if d.Status != StatusCanceled {
		d.Status = incoming.Status
	}
	d.IssuedAt = incoming.IssuedAt
	d.IssuerCNPJ = incoming.IssuerCNPJ
	d.IssuerName = incoming.IssuerName
	d.TotalValue = incoming.TotalValue
	d.StorageKey = incoming.StorageKey
	d.SHA256 = incoming.SHA256
	d.UpdatedAt = time.Now()
	return true
}

// MarkCanceled registra o cancelamento da nota
func (d *Document) MarkCanceled() bool {
	if d.Status == StatusCanceled {
		return false
	}
	d.Status = StatusCanceled
	d.UpdatedAt = time.Now()
	return true
}
