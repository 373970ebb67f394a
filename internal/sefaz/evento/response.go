package evento

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/hugohenrick/dfe-sync/internal/sefaz"
)

// cStat de evento registrado e vinculado à NF-e (135) e de lote processado (128)
const (
	CStatRegistered     = 135
	CStatBatchProcessed = 128
)

// Result é o retorno do retEnvEvento
type Result struct {
	// Status é o cStat do lote; 0 quando a resposta não trouxe retEnvEvento
	Status int
	Motivo string
	Event  *EventResult
}

// EventResult é o infEvento do retEvento
type EventResult struct {
	AccessKey string
	CStat     string
	Motivo    string
	Protocol  string
}

// EventCStat retorna o cStat do evento, ou "" se não houver retEvento
func (r *Result) EventCStat() string {
	if r.Event == nil {
		return ""
	}
	return r.Event.CStat
}

// Protocol retorna o nProt do evento
func (r *Result) Protocol() string {
	if r.Event == nil {
		return ""
	}
	return r.Event.Protocol
}

// ParseResponse interpreta a resposta do NFeRecepcaoEvento4
func ParseResponse(body []byte) (*Result, error) {
	doc, err := sefaz.ParseXML(body)
	if err != nil {
		return nil, fmt.Errorf("resposta de evento ilegível: %w", err)
	}

	ret := sefaz.FindElement(doc.Root(), "retEnvEvento")
	if ret == nil {
		return &Result{Status: 0, Motivo: "retEnvEvento não encontrado"}, nil
	}

	res := &Result{Motivo: firstChildText(ret, "xMotivo")}
	if n, err := strconv.Atoi(firstChildText(ret, "cStat")); err == nil {
		res.Status = n
	}

	if retEvento := sefaz.FindElement(ret, "retEvento"); retEvento != nil {
		if inf := sefaz.FindElement(retEvento, "infEvento"); inf != nil {
			res.Event = &EventResult{
				AccessKey: sefaz.Text(inf, "chNFe"),
				CStat:     sefaz.Text(inf, "cStat"),
				Motivo:    sefaz.Text(inf, "xMotivo"),
				Protocol:  sefaz.Text(inf, "nProt"),
			}
		}
	}
	return res, nil
}

// firstChildText lê o filho direto, evitando pegar o cStat aninhado do retEvento
func firstChildText(el *etree.Element, local string) string {
	for _, child := range el.ChildElements() {
		if child.Tag == local {
			return strings.TrimSpace(child.Text())
		}
	}
	return sefaz.Text(el, local)
}
