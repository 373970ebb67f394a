package evento

import (
	"context"
	"crypto/x509"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/hugohenrick/dfe-sync/internal/sefaz"
	"github.com/hugohenrick/dfe-sync/internal/sefaz/soap"
	"github.com/hugohenrick/dfe-sync/pkg/logger"
	"github.com/hugohenrick/dfe-sync/pkg/pkcs12/pkcs12test"
)

const testKey = "52240112345678000190550010000001231000001234"

var testIssuer = Issuer{Environment: sefaz.Production, CNPJ: "12.345.678/0001-90", UF: "GO"}

func newSigner(t *testing.T) (*Signer, *x509.Certificate) {
	t.Helper()
	b := pkcs12test.Generate(t, pkcs12test.Options{CNPJ: "12345678000190", State: "GO"})
	return NewSigner(b.Key, b.Certificate.Raw), b.Certificate
}

func TestBuildAwarenessEvent(t *testing.T) {
	at := time.Date(2024, 3, 10, 12, 30, 0, 0, time.UTC)
	doc, inf, err := Build(testIssuer, Event{Type: Awareness, AccessKey: testKey, At: at})
	if err != nil {
		t.Fatalf("Build falhou: %v", err)
	}

	root := doc.Root()
	if root.Tag != "envEvento" || root.SelectAttrValue("versao", "") != "1.00" {
		t.Fatalf("raiz inesperada: %s", root.Tag)
	}
	if got := root.SelectElement("idLote").Text(); got != "1" {
		t.Errorf("idLote = %s, esperado 1", got)
	}

	want := map[string]string{
		"cOrgao":     "52",
		"tpAmb":      "1",
		"CNPJ":       "12345678000190",
		"chNFe":      testKey,
		"dhEvento":   "2024-03-10T09:30:00-03:00",
		"tpEvento":   "210210",
		"nSeqEvento": "1",
		"verEvento":  "1.00",
	}
	for tag, v := range want {
		el := inf.SelectElement(tag)
		if el == nil {
			t.Errorf("%s ausente", tag)
			continue
		}
		if el.Text() != v {
			t.Errorf("%s = %s, esperado %s", tag, el.Text(), v)
		}
	}

	if id := inf.SelectAttrValue("Id", ""); id != "ID210210"+testKey+"01" {
		t.Errorf("Id = %s", id)
	}
	det := inf.SelectElement("detEvento")
	if det.SelectElement("descEvento").Text() != "Ciencia da Operacao" {
		t.Errorf("descEvento = %s", det.SelectElement("descEvento").Text())
	}
	if det.SelectElement("xJust") != nil {
		t.Error("ciência não deve levar xJust")
	}
}

func TestBuildUnknownUFUsesNationalOrg(t *testing.T) {
	_, inf, err := Build(Issuer{Environment: sefaz.Homologation, CNPJ: "12345678000190"}, Event{Type: Confirmation, AccessKey: testKey})
	if err != nil {
		t.Fatalf("Build falhou: %v", err)
	}
	if got := inf.SelectElement("cOrgao").Text(); got != "91" {
		t.Errorf("cOrgao = %s, esperado 91", got)
	}
	if got := inf.SelectElement("tpAmb").Text(); got != "2" {
		t.Errorf("tpAmb = %s, esperado 2", got)
	}
}

func TestJustificationRules(t *testing.T) {
	tests := []struct {
		name    string
		event   Event
		wantErr error
	}{
		{"desconhecimento sem justificativa", Event{Type: Unawareness, AccessKey: testKey}, ErrJustificationRequired},
		{"não realizada sem justificativa", Event{Type: NotPerformed, AccessKey: testKey, Justification: "   "}, ErrJustificationRequired},
		{"justificativa curta", Event{Type: NotPerformed, AccessKey: testKey, Justification: "curta"}, ErrInvalidJustification},
		{"justificativa longa", Event{Type: Unawareness, AccessKey: testKey, Justification: strings.Repeat("x", 256)}, ErrInvalidJustification},
		{"tipo inválido", Event{Type: "110111", AccessKey: testKey}, ErrInvalidEventType},
		{"sequência inválida", Event{Type: Awareness, AccessKey: testKey, Sequence: 21}, ErrInvalidSequence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Build(testIssuer, tt.event)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("erro = %v, esperado %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuildWithJustification(t *testing.T) {
	just := "Mercadoria nao foi entregue ao destinatario"
	_, inf, err := Build(testIssuer, Event{Type: NotPerformed, AccessKey: testKey, Justification: just, Sequence: 2})
	if err != nil {
		t.Fatalf("Build falhou: %v", err)
	}
	det := inf.SelectElement("detEvento")
	if x := det.SelectElement("xJust"); x == nil || x.Text() != just {
		t.Errorf("xJust ausente ou incorreto")
	}
	if det.SelectElement("descEvento").Text() != "Operacao nao Realizada" {
		t.Errorf("descEvento incorreto")
	}
	if id := inf.SelectAttrValue("Id", ""); !strings.HasSuffix(id, "02") {
		t.Errorf("Id deve terminar com a sequência 02: %s", id)
	}
}

func TestParseType(t *testing.T) {
	if tp, err := ParseType(" 210200 "); err != nil || tp != Confirmation {
		t.Errorf("ParseType = %s, %v", tp, err)
	}
	if _, err := ParseType("999999"); !errors.Is(err, ErrInvalidEventType) {
		t.Errorf("esperado ErrInvalidEventType, obtido %v", err)
	}
}

func TestSignedEventValidates(t *testing.T) {
	signer, cert := newSigner(t)

	signed, err := BuildSigned(testIssuer, Event{Type: Awareness, AccessKey: testKey}, signer)
	if err != nil {
		t.Fatalf("BuildSigned falhou: %v", err)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(signed); err != nil {
		t.Fatalf("XML assinado ilegível: %v", err)
	}
	evento := doc.Root().SelectElement("evento")
	inf := evento.SelectElement("infEvento")
	sig := evento.SelectElement("Signature")
	if inf == nil || sig == nil {
		t.Fatalf("infEvento e Signature devem ser irmãos dentro de evento")
	}
	if sig.Index() != inf.Index()+1 {
		t.Error("Signature deve vir logo após infEvento")
	}
	if sig.SelectAttrValue("xmlns", "") != dsig.Namespace {
		t.Errorf("Signature deve usar o namespace padrão do xmldsig")
	}

	text := string(signed)
	for _, alg := range []string{
		"http://www.w3.org/TR/2001/REC-xml-c14n-20010315",
		"http://www.w3.org/2000/09/xmldsig#enveloped-signature",
		"http://www.w3.org/2001/04/xmldsig-more#rsa-sha256",
		"http://www.w3.org/2001/04/xmlenc#sha256",
		`URI="#ID210210` + testKey + `01"`,
	} {
		if !strings.Contains(text, alg) {
			t.Errorf("assinatura sem %s", alg)
		}
	}

	// o validador espera a assinatura dentro do elemento referenciado
	evento.RemoveChild(sig)
	inf.AddChild(sig)

	vctx := dsig.NewDefaultValidationContext(&dsig.MemoryX509CertificateStore{Roots: []*x509.Certificate{cert}})
	vctx.IdAttribute = "Id"
	if _, err := vctx.Validate(inf); err != nil {
		t.Fatalf("assinatura inválida: %v", err)
	}
}

func TestSignRequiresKey(t *testing.T) {
	if _, err := BuildSigned(testIssuer, Event{Type: Awareness, AccessKey: testKey}, nil); !errors.Is(err, ErrSignerRequired) {
		t.Errorf("esperado ErrSignerRequired, obtido %v", err)
	}
	_, err := BuildSigned(testIssuer, Event{Type: Awareness, AccessKey: testKey}, NewSigner(nil, nil))
	if !errors.Is(err, ErrSignature) {
		t.Errorf("esperado ErrSignature, obtido %v", err)
	}
}

const retAccepted = `<?xml version="1.0" encoding="utf-8"?>` +
	`<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"><soap:Body>` +
	`<nfeRecepcaoEventoNFResult xmlns="http://www.portalfiscal.inf.br/nfe/wsdl/NFeRecepcaoEvento4">` +
	`<retEnvEvento xmlns="http://www.portalfiscal.inf.br/nfe" versao="1.00">` +
	`<idLote>1</idLote><tpAmb>1</tpAmb><cOrgao>52</cOrgao><cStat>128</cStat><xMotivo>Lote de Evento Processado</xMotivo>` +
	`<retEvento versao="1.00"><infEvento><tpAmb>1</tpAmb><cOrgao>91</cOrgao><cStat>135</cStat>` +
	`<xMotivo>Evento registrado e vinculado a NF-e</xMotivo><chNFe>` + testKey + `</chNFe>` +
	`<tpEvento>210210</tpEvento><nProt>891240000012345</nProt></infEvento></retEvento>` +
	`</retEnvEvento></nfeRecepcaoEventoNFResult></soap:Body></soap:Envelope>`

func TestParseResponse(t *testing.T) {
	res, err := ParseResponse([]byte(retAccepted))
	if err != nil {
		t.Fatalf("ParseResponse falhou: %v", err)
	}
	if res.Status != CStatBatchProcessed || res.Motivo != "Lote de Evento Processado" {
		t.Errorf("lote = %d %q", res.Status, res.Motivo)
	}
	if res.EventCStat() != "135" || res.Protocol() != "891240000012345" {
		t.Errorf("evento = %+v", res.Event)
	}
	if res.Event.AccessKey != testKey {
		t.Errorf("chNFe = %s", res.Event.AccessKey)
	}
}

func TestParseResponseRejectedAndMissing(t *testing.T) {
	rejected := `<retEnvEvento xmlns="http://www.portalfiscal.inf.br/nfe"><cStat>128</cStat><xMotivo>Lote processado</xMotivo>` +
		`<retEvento><infEvento><cStat>573</cStat><xMotivo>Rejeicao: Duplicidade de evento</xMotivo></infEvento></retEvento></retEnvEvento>`
	res, err := ParseResponse([]byte(rejected))
	if err != nil {
		t.Fatalf("rejeição não é erro: %v", err)
	}
	if res.EventCStat() != "573" || res.Protocol() != "" {
		t.Errorf("evento rejeitado = %+v", res.Event)
	}

	res, err = ParseResponse([]byte(`<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"><soap:Body/></soap:Envelope>`))
	if err != nil {
		t.Fatalf("resposta sem retEnvEvento não é erro: %v", err)
	}
	if res.Status != 0 || res.Motivo != "retEnvEvento não encontrado" || res.Event != nil {
		t.Errorf("resultado = %+v", res)
	}

	if _, err := ParseResponse([]byte("<quebrado")); err == nil {
		t.Error("XML inválido deveria falhar")
	}
}

type fakePoster struct {
	endpoints []string
	req       soap.Request
	body      []byte
	err       error
}

func (f *fakePoster) Post(_ context.Context, endpoints []string, req soap.Request) ([]byte, error) {
	f.endpoints = endpoints
	f.req = req
	return f.body, f.err
}

func TestClientSendsSignedSOAP12(t *testing.T) {
	signer, _ := newSigner(t)
	poster := &fakePoster{body: []byte(retAccepted)}
	client := NewClient(poster, testIssuer, signer, logger.NewNop())

	res, err := client.Send(context.Background(), Event{Type: Awareness, AccessKey: testKey})
	if err != nil {
		t.Fatalf("Send falhou: %v", err)
	}
	if res.Protocol() != "891240000012345" {
		t.Errorf("nProt = %s", res.Protocol())
	}

	want, _ := sefaz.EventEndpoint(sefaz.Production, "GO")
	if len(poster.endpoints) != 1 || poster.endpoints[0] != want {
		t.Errorf("endpoints = %v, esperado %s", poster.endpoints, want)
	}
	if poster.req.Version != soap.SOAP12 || poster.req.Action != sefaz.ActionRecepcaoEvto {
		t.Errorf("requisição SOAP incorreta: %+v", poster.req)
	}
	if poster.req.Namespace != sefaz.NamespaceEvento || poster.req.Operation != "" {
		t.Errorf("namespace/operação incorretos: %s %s", poster.req.Namespace, poster.req.Operation)
	}
	if !strings.Contains(string(poster.req.Payload), "<Signature") {
		t.Error("payload deve estar assinado")
	}
}

func TestClientFallbackAndTransportError(t *testing.T) {
	signer, _ := newSigner(t)
	boom := errors.New("conexão recusada")
	poster := &fakePoster{err: boom}
	client := NewClient(poster, Issuer{Environment: sefaz.Homologation, CNPJ: "12345678000190", UF: "XX"}, signer, logger.NewNop())

	if client.Endpoint() != "https://nfe-homologacao.svrs.rs.gov.br/ws/recepcaoevento/recepcaoevento4.asmx" {
		t.Errorf("UF desconhecida deveria usar SVRS: %s", client.Endpoint())
	}
	if _, err := client.Send(context.Background(), Event{Type: Awareness, AccessKey: testKey}); !errors.Is(err, boom) {
		t.Errorf("erro de transporte deve ser propagado, obtido %v", err)
	}
}
