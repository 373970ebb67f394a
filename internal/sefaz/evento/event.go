package evento

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/beevik/etree"

	"github.com/hugohenrick/dfe-sync/internal/sefaz"
	"github.com/hugohenrick/dfe-sync/pkg/nfekey"
)

// Type é o código do evento de manifestação do destinatário (tpEvento)
type Type string

const (
	Confirmation Type = "210200"
	Awareness    Type = "210210"
	Unawareness  Type = "210220"
	NotPerformed Type = "210240"
)

// Versao dos layouts envEvento/evento/detEvento
const Versao = "1.00"

const (
	minJustification = 15
	maxJustification = 255
)

var (
	ErrInvalidEventType      = errors.New("tipo de evento de manifestação inválido")
	ErrJustificationRequired = errors.New("justificativa obrigatória para o evento")
	ErrInvalidJustification  = errors.New("justificativa deve ter entre 15 e 255 caracteres")
	ErrInvalidSequence       = errors.New("nSeqEvento deve estar entre 1 e 20")
	ErrSignerRequired        = errors.New("assinador não informado")
)

var descriptions = map[Type]string{
	Confirmation: "Confirmacao da Operacao",
	Awareness:    "Ciencia da Operacao",
	Unawareness:  "Desconhecimento da Operacao",
	NotPerformed: "Operacao nao Realizada",
}

// brasilia é o fuso fixo usado em dhEvento (sem horário de verão)
var brasilia = time.FixedZone("BRT", -3*60*60)

// ParseType valida o código do evento
func ParseType(code string) (Type, error) {
	t := Type(strings.TrimSpace(code))
	if _, ok := descriptions[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidEventType, code)
	}
	return t, nil
}

// Description retorna o descEvento do tipo
func (t Type) Description() string {
	return descriptions[t]
}

// RequiresJustification indica se o evento exige xJust
func (t Type) RequiresJustification() bool {
	return t == Unawareness || t == NotPerformed
}

// Issuer identifica quem manifesta
type Issuer struct {
	Environment sefaz.Environment
	CNPJ        string
	// UF da empresa, usada para cOrgao e para o endpoint
	UF string
}

// OrgCode retorna o cOrgao, com 91 quando a UF é desconhecida
func (i Issuer) OrgCode() string {
	if code := sefaz.UFCode(i.UF); code != "" {
		return code
	}
	return sefaz.NationalCode
}

// Event é um evento de manifestação a ser enviado
type Event struct {
	Type          Type
	AccessKey     string
	Sequence      int
	Justification string
	At            time.Time
}

// ID monta o atributo Id do infEvento
func (e Event) ID() string {
	return fmt.Sprintf("ID%s%s%02d", e.Type, e.AccessKey, e.Sequence)
}

func (e *Event) normalize() error {
	if _, ok := descriptions[e.Type]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidEventType, e.Type)
	}
	e.AccessKey = nfekey.OnlyDigits(e.AccessKey)
	if !nfekey.IsKey(e.AccessKey) {
		return fmt.Errorf("%w: %q", nfekey.ErrInvalidKey, e.AccessKey)
	}
	if e.Sequence == 0 {
		e.Sequence = 1
	}
	if e.Sequence < 1 || e.Sequence > 20 {
		return ErrInvalidSequence
	}
	e.Justification = strings.TrimSpace(e.Justification)
	if e.Type.RequiresJustification() {
		if e.Justification == "" {
			return fmt.Errorf("%w %s", ErrJustificationRequired, e.Type)
		}
		if n := utf8.RuneCountInString(e.Justification); n < minJustification || n > maxJustification {
			return ErrInvalidJustification
		}
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	return nil
}

// FormatTimestamp formata dhEvento no horário de Brasília (UTC-3)
func FormatTimestamp(t time.Time) string {
	return t.In(brasilia).Format("2006-01-02T15:04:05-07:00")
}

// Build monta o envEvento sem assinatura e retorna o documento e o infEvento
func Build(issuer Issuer, ev Event) (*etree.Document, *etree.Element, error) {
	if err := ev.normalize(); err != nil {
		return nil, nil, err
	}

	doc := etree.NewDocument()
	env := doc.CreateElement("envEvento")
	env.CreateAttr("xmlns", sefaz.NamespaceNFe)
	env.CreateAttr("versao", Versao)
	env.CreateElement("idLote").SetText(strconv.Itoa(ev.Sequence))

	evento := env.CreateElement("evento")
	evento.CreateAttr("versao", Versao)

	inf := evento.CreateElement("infEvento")
	// a declaração explícita mantém o namespace quando o elemento é canonicalizado isolado
	inf.CreateAttr("xmlns", sefaz.NamespaceNFe)
	inf.CreateAttr("Id", ev.ID())
	inf.CreateElement("cOrgao").SetText(issuer.OrgCode())
	inf.CreateElement("tpAmb").SetText(issuer.Environment.TpAmb())
	inf.CreateElement("CNPJ").SetText(nfekey.OnlyDigits(issuer.CNPJ))
	inf.CreateElement("chNFe").SetText(ev.AccessKey)
	inf.CreateElement("dhEvento").SetText(FormatTimestamp(ev.At))
	inf.CreateElement("tpEvento").SetText(string(ev.Type))
	inf.CreateElement("nSeqEvento").SetText(strconv.Itoa(ev.Sequence))
	inf.CreateElement("verEvento").SetText(Versao)

	det := inf.CreateElement("detEvento")
	det.CreateAttr("versao", Versao)
	det.CreateElement("descEvento").SetText(ev.Type.Description())
	if ev.Type.RequiresJustification() {
		det.CreateElement("xJust").SetText(ev.Justification)
	}

	return doc, inf, nil
}

// BuildSigned monta e assina o envEvento, retornando o XML serializado
func BuildSigned(issuer Issuer, ev Event, signer *Signer) ([]byte, error) {
	if signer == nil {
		return nil, ErrSignerRequired
	}
	doc, inf, err := Build(issuer, ev)
	if err != nil {
		return nil, err
	}
	if err := signer.Sign(inf); err != nil {
		return nil, err
	}
	doc.WriteSettings.CanonicalEndTags = true
	return doc.WriteToBytes()
}
