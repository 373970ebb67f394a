// Package parser extrai os campos estruturados dos XMLs distribuídos pela SEFAZ.
//
// Parse é total: XML malformado ou incompleto resulta em um Record parcial,
// nunca em erro.
package parser

import (
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/hugohenrick/dfe-sync/internal/domain/fiscal"
	"github.com/hugohenrick/dfe-sync/internal/sefaz"
	"github.com/hugohenrick/dfe-sync/pkg/nfekey"
)

// EventCancellation é o tpEvento de cancelamento da NF-e
const EventCancellation = "110111"

// Record são os campos extraídos de um XML
type Record struct {
	AccessKey     string
	Number        string
	Series        string
	IssuedAt      *time.Time
	IssuerCNPJ    string
	IssuerName    string
	RecipientCNPJ string
	RecipientName string
	TotalValue    decimal.NullDecimal
	Direction     fiscal.Direction
	Status        fiscal.DocumentStatus
	// EventType é preenchido para resEvento/procEventoNFe
	EventType string
}

// IsCancellation indica se o XML registra o cancelamento da nota
func (r Record) IsCancellation() bool {
	return r.EventType == EventCancellation
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Parse interpreta o XML do ponto de vista da empresa dona do certificado
func Parse(xml []byte, companyCNPJ string) Record {
	rec := Record{Direction: fiscal.DirectionUnknown, Status: fiscal.StatusUnknown}

	doc, err := sefaz.ParseXML(xml)
	if err != nil || doc.Root() == nil {
		return rec
	}
	root := doc.Root()
	rec.Status = fiscal.StatusAuthorized

	switch {
	case sefaz.FindElement(root, "infNFe") != nil:
		parseFull(root, &rec)
	case root.Tag == "resNFe":
		parseSummary(root, &rec)
	case sefaz.FindElement(root, "tpEvento") != nil:
		parseEvent(root, &rec)
	case sefaz.FindElement(root, "infCanc") != nil:
		rec.AccessKey = nfekey.OnlyDigits(sefaz.Text(root, "chNFe"))
		rec.Status = fiscal.StatusCanceled
	default:
		rec.AccessKey = nfekey.OnlyDigits(sefaz.Text(root, "chNFe"))
	}

	rec.Direction = direction(rec, companyCNPJ)
	return rec
}

func parseFull(root *etree.Element, rec *Record) {
	if inf := sefaz.FindElement(root, "infNFe"); inf != nil {
		rec.AccessKey = nfekey.FromID(inf.SelectAttrValue("Id", ""))
	}
	if rec.AccessKey == "" {
		rec.AccessKey = nfekey.OnlyDigits(sefaz.Text(sefaz.FindElement(root, "infProt"), "chNFe"))
	}

	if ide := sefaz.FindElement(root, "ide"); ide != nil {
		rec.Number = sefaz.Text(ide, "nNF")
		rec.Series = sefaz.Text(ide, "serie")
		rec.IssuedAt = parseDate(firstNonEmpty(sefaz.Text(ide, "dhEmi"), sefaz.Text(ide, "dEmi")))
	}
	if emit := sefaz.FindElement(root, "emit"); emit != nil {
		rec.IssuerCNPJ = party(emit)
		rec.IssuerName = sefaz.Text(emit, "xNome")
	}
	if dest := sefaz.FindElement(root, "dest"); dest != nil {
		rec.RecipientCNPJ = party(dest)
		rec.RecipientName = sefaz.Text(dest, "xNome")
	}
	if tot := sefaz.FindElement(root, "ICMSTot"); tot != nil {
		rec.TotalValue = parseDecimal(sefaz.Text(tot, "vNF"))
	}

	if prot := sefaz.FindElement(root, "infProt"); prot != nil {
		rec.Status = protocolStatus(sefaz.Text(prot, "cStat"))
	}
}

func parseSummary(root *etree.Element, rec *Record) {
	rec.AccessKey = nfekey.OnlyDigits(sefaz.Text(root, "chNFe"))
	rec.IssuerCNPJ = party(root)
	rec.IssuerName = sefaz.Text(root, "xNome")
	rec.IssuedAt = parseDate(sefaz.Text(root, "dhEmi"))
	rec.TotalValue = parseDecimal(sefaz.Text(root, "vNF"))

	// série e número não vêm no resumo, mas fazem parte da chave
	if nfekey.IsKey(rec.AccessKey) {
		rec.Series = trimZeros(rec.AccessKey[22:25])
		rec.Number = trimZeros(rec.AccessKey[25:34])
	}

	switch sefaz.Text(root, "cSitNFe") {
	case "2":
		rec.Status = fiscal.StatusDenied
	case "3":
		rec.Status = fiscal.StatusCanceled
	}
}

func parseEvent(root *etree.Element, rec *Record) {
	inf := sefaz.FindElement(root, "infEvento")
	if inf == nil {
		inf = root
	}
	rec.AccessKey = nfekey.OnlyDigits(sefaz.Text(inf, "chNFe"))
	rec.EventType = sefaz.Text(inf, "tpEvento")
	rec.IssuerCNPJ = party(inf)
	if rec.IsCancellation() {
		rec.Status = fiscal.StatusCanceled
	}
}

// protocolStatus mapeia o cStat do protocolo de autorização
func protocolStatus(cStat string) fiscal.DocumentStatus {
	switch cStat {
	case "101", "151", "155":
		return fiscal.StatusCanceled
	case "110", "301", "302", "303":
		return fiscal.StatusDenied
	default:
		return fiscal.StatusAuthorized
	}
}

func direction(rec Record, companyCNPJ string) fiscal.Direction {
	company := nfekey.OnlyDigits(companyCNPJ)
	switch {
	case company == "":
		return fiscal.DirectionUnknown
	case rec.IssuerCNPJ == company:
		return fiscal.DirectionEmitted
	case rec.RecipientCNPJ == company:
		return fiscal.DirectionReceived
	default:
		return fiscal.DirectionUnknown
	}
}

// party lê CNPJ ou, na falta, CPF do participante
func party(el *etree.Element) string {
	for _, tag := range []string{"CNPJ", "CPF"} {
		for _, child := range el.ChildElements() {
			if child.Tag == tag {
				return nfekey.OnlyDigits(child.Text())
			}
		}
	}
	return ""
}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func parseDecimal(s string) decimal.NullDecimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

func trimZeros(s string) string {
	if t := strings.TrimLeft(s, "0"); t != "" {
		return t
	}
	return "0"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
