package soap

import (
	"bytes"
	"strings"

	"github.com/hugohenrick/dfe-sync/internal/sefaz"
)

// Version é a versão do protocolo SOAP
type Version int

const (
	SOAP11 Version = iota + 1
	SOAP12
)

// Request descreve uma chamada a um webservice da SEFAZ
type Request struct {
	Version Version
	// Action vai no cabeçalho SOAPAction (1.1) ou no parâmetro action do Content-Type (1.2)
	Action string
	// Namespace do WSDL, prefixado como nfed
	Namespace string
	// Operation envolve o nfeDadosMsg quando informado (ex: nfeDistDFeInteresse)
	Operation string
	Payload   []byte
}

// ContentType retorna o Content-Type adequado à versão
func (r Request) ContentType() string {
	if r.Version == SOAP12 {
		return `application/soap+xml; charset=utf-8; action="` + r.Action + `"`
	}
	return "text/xml; charset=utf-8"
}

// Envelope monta o envelope SOAP em uma linha; a SEFAZ rejeita quebras de linha em alguns serviços
func (r Request) Envelope() []byte {
	prefix, ns := "soapenv", sefaz.NamespaceSOAP11
	if r.Version == SOAP12 {
		prefix, ns = "soap12", sefaz.NamespaceSOAP12
	}

	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	b.WriteString(`<` + prefix + `:Envelope xmlns:` + prefix + `="` + ns + `" xmlns:nfed="` + r.Namespace + `">`)
	b.WriteString(`<` + prefix + `:Header/>`)
	b.WriteString(`<` + prefix + `:Body>`)
	if r.Operation != "" {
		b.WriteString(`<nfed:` + r.Operation + `>`)
	}
	b.WriteString(`<nfed:nfeDadosMsg>`)
	b.Write(stripDeclaration(r.Payload))
	b.WriteString(`</nfed:nfeDadosMsg>`)
	if r.Operation != "" {
		b.WriteString(`</nfed:` + r.Operation + `>`)
	}
	b.WriteString(`</` + prefix + `:Body>`)
	b.WriteString(`</` + prefix + `:Envelope>`)
	return b.Bytes()
}

func stripDeclaration(payload []byte) []byte {
	s := strings.TrimSpace(string(payload))
	if strings.HasPrefix(s, "<?xml") {
		if i := strings.Index(s, "?>"); i >= 0 {
			s = strings.TrimSpace(s[i+2:])
		}
	}
	return []byte(s)
}
