package servicetest

import (
	"context"
	"sync"

	"github.com/hugohenrick/dfe-sync/internal/domain/certificate"
	"github.com/hugohenrick/dfe-sync/internal/sefaz/dfe"
	"github.com/hugohenrick/dfe-sync/internal/sefaz/evento"
	"github.com/hugohenrick/dfe-sync/internal/service/session"
)

// Supplier é o CNPJ emitente usado nos XMLs de teste
const Supplier = "99888777000166"

// ResNFe monta um resumo de NF-e para a chave
func ResNFe(key string) []byte {
	return []byte(`<resNFe xmlns="http://www.portalfiscal.inf.br/nfe" versao="1.01"><chNFe>` + key + `</chNFe>` +
		`<CNPJ>` + Supplier + `</CNPJ><xNome>FORNECEDOR LTDA</xNome><dhEmi>2024-01-15T10:20:30-03:00</dhEmi>` +
		`<vNF>150.00</vNF><cSitNFe>1</cSitNFe></resNFe>`)
}

// ProcNFe monta uma NF-e autorizada destinada a recipient
func ProcNFe(key, recipient string) []byte {
	return []byte(`<nfeProc xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00"><NFe><infNFe Id="NFe` + key + `" versao="4.00">` +
		`<ide><serie>1</serie><nNF>456</nNF><dhEmi>2024-01-15T10:20:30-03:00</dhEmi></ide>` +
		`<emit><CNPJ>` + Supplier + `</CNPJ><xNome>FORNECEDOR LTDA</xNome></emit>` +
		`<dest><CNPJ>` + recipient + `</CNPJ><xNome>EMPRESA</xNome></dest>` +
		`<total><ICMSTot><vNF>150.00</vNF></ICMSTot></total></infNFe></NFe>` +
		`<protNFe><infProt><chNFe>` + key + `</chNFe><cStat>100</cStat></infProt></protNFe></nfeProc>`)
}

// CancelEvent monta um procEventoNFe de cancelamento
func CancelEvent(key string) []byte {
	return []byte(`<procEventoNFe xmlns="http://www.portalfiscal.inf.br/nfe"><evento><infEvento>` +
		`<CNPJ>` + Supplier + `</CNPJ><chNFe>` + key + `</chNFe><tpEvento>110111</tpEvento></infEvento></evento></procEventoNFe>`)
}

// Summary é o dfe.Document de um resNFe
func Summary(nsu, key string) dfe.Document {
	return dfe.Document{NSU: nsu, Schema: "resNFe_v1.01.xsd", AccessKey: key, Type: dfe.TypeSummary, XML: ResNFe(key)}
}

// Full é o dfe.Document de um procNFe
func Full(nsu, key, recipient string) dfe.Document {
	return dfe.Document{NSU: nsu, Schema: "procNFe_v4.00.xsd", AccessKey: key, Type: dfe.TypeFull, XML: ProcNFe(key, recipient)}
}

// Cancellation é o dfe.Document de um evento de cancelamento
func Cancellation(nsu, key string) dfe.Document {
	return dfe.Document{NSU: nsu, Schema: "procEventoNFe_v1.00.xsd", AccessKey: key, Type: dfe.TypeEvent, XML: CancelEvent(key)}
}

// Documents138 monta uma resposta com documentos
func Documents138(maxNSU string, docs ...dfe.Document) *dfe.Result {
	return &dfe.Result{Kind: dfe.KindDocuments, CStat: "138", Motivo: "Documento(s) localizado(s)", MaxNSU: maxNSU, UltNSU: maxNSU, Documents: docs}
}

// NoDocuments137 monta a resposta sem documentos
func NoDocuments137(maxNSU string) *dfe.Result {
	return &dfe.Result{Kind: dfe.KindNoDocuments, CStat: "137", Motivo: "Nenhum documento localizado", MaxNSU: maxNSU, UltNSU: maxNSU}
}

// Distribution responde consultas com resultados roteirizados e conta as chamadas
type Distribution struct {
	mu sync.Mutex
	// NSU devolve a resposta de cada consulta por NSU, em ordem; a última se repete
	NSU    []*dfe.Result
	NSUErr error
	// ByKey devolve as respostas por chave em ordem; a última se repete
	ByKey    map[string][]*dfe.Result
	ByKeyErr error

	NSUCalls   []string
	KeyCalls   []string
	keyIndexes map[string]int
}

func (d *Distribution) QueryByNSU(_ context.Context, lastNSU string) (*dfe.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.NSUCalls = append(d.NSUCalls, lastNSU)
	if d.NSUErr != nil {
		return nil, d.NSUErr
	}
	if len(d.NSU) == 0 {
		return NoDocuments137(lastNSU), nil
	}
	i := len(d.NSUCalls) - 1
	if i >= len(d.NSU) {
		i = len(d.NSU) - 1
	}
	return d.NSU[i], nil
}

func (d *Distribution) QueryByKey(_ context.Context, key string) (*dfe.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.KeyCalls = append(d.KeyCalls, key)
	if d.ByKeyErr != nil {
		return nil, d.ByKeyErr
	}
	responses := d.ByKey[key]
	if len(responses) == 0 {
		return &dfe.Result{Kind: dfe.KindApplicationError, CStat: "632", Motivo: "Rejeicao: Solicitante nao autorizado"}, nil
	}
	if d.keyIndexes == nil {
		d.keyIndexes = map[string]int{}
	}
	i := d.keyIndexes[key]
	if i >= len(responses) {
		i = len(responses) - 1
	}
	d.keyIndexes[key]++
	return responses[i], nil
}

// Calls retorna o total de chamadas de rede
func (d *Distribution) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.NSUCalls) + len(d.KeyCalls)
}

// Events registra os eventos enviados
type Events struct {
	mu     sync.Mutex
	Result *evento.Result
	Err    error
	Sent   []evento.Event
}

func (e *Events) Send(_ context.Context, ev evento.Event) (*evento.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Sent = append(e.Sent, ev)
	if e.Err != nil {
		return nil, e.Err
	}
	if e.Result != nil {
		return e.Result, nil
	}
	return &evento.Result{
		Status: 128,
		Motivo: "Lote de Evento Processado",
		Event:  &evento.EventResult{AccessKey: ev.AccessKey, CStat: "135", Motivo: "Evento registrado", Protocol: "891240000000001"},
	}, nil
}

// Opener abre sessões com os fakes; Err simula falha de certificado
type Opener struct {
	Certificate  *certificate.Certificate
	Distribution *Distribution
	Events       *Events
	Err          error
	Opens        int
}

func (o *Opener) Open(_ context.Context, companyID int64) (*session.Session, error) {
	o.Opens++
	if o.Err != nil {
		return nil, o.Err
	}
	if o.Distribution == nil {
		o.Distribution = &Distribution{}
	}
	if o.Events == nil {
		o.Events = &Events{}
	}
	cert := o.Certificate
	if cert == nil {
		cert = &certificate.Certificate{ID: "cert", CompanyID: companyID, CNPJ: "12345678000190", Status: certificate.StatusActive}
	}
	return session.New(cert, o.Distribution, o.Events, nil), nil
}
