package soap

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hugohenrick/dfe-sync/internal/sefaz"
	"github.com/hugohenrick/dfe-sync/pkg/logger"
	"github.com/hugohenrick/dfe-sync/pkg/pkcs12"
	"github.com/hugohenrick/dfe-sync/pkg/pkcs12/pkcs12test"
)

type captured struct {
	contentType string
	soapAction  string
	body        string
	clientCN    string
}

func newMTLSServer(t *testing.T, status int, reply string, got *captured) *httptest.Server {
	t.Helper()
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if got != nil {
			got.contentType = r.Header.Get("Content-Type")
			got.soapAction = r.Header.Get("SOAPAction")
			got.body = string(b)
			if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
				got.clientCN = r.TLS.PeerCertificates[0].Subject.CommonName
			}
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	srv.TLS = &tls.Config{ClientAuth: tls.RequireAnyClientCert}
	srv.StartTLS()
	t.Cleanup(srv.Close)
	return srv
}

func newTestTransport(t *testing.T, servers ...*httptest.Server) *Transport {
	t.Helper()
	bundle := pkcs12test.Generate(t, pkcs12test.Options{CNPJ: "11222333000181"})
	m, err := pkcs12.Decode(bundle.PFX, bundle.Password)
	if err != nil {
		t.Fatalf("Decode falhou: %v", err)
	}
	cert, err := m.TLSCertificate()
	if err != nil {
		t.Fatalf("TLSCertificate falhou: %v", err)
	}

	pool := x509.NewCertPool()
	for _, s := range servers {
		pool.AddCert(s.Certificate())
	}
	tr, err := NewTransport(cert, Options{RootCAs: pool}, logger.NewNop())
	if err != nil {
		t.Fatalf("NewTransport falhou: %v", err)
	}
	t.Cleanup(tr.Close)
	return tr
}

func distRequest() Request {
	return Request{
		Version:   SOAP11,
		Action:    sefaz.ActionDistDFe,
		Namespace: sefaz.NamespaceDistDFe,
		Operation: "nfeDistDFeInteresse",
		Payload:   []byte(`<distDFeInt xmlns="http://www.portalfiscal.inf.br/nfe" versao="1.00"/>`),
	}
}

func TestPostSOAP11WithClientCertificate(t *testing.T) {
	var got captured
	srv := newMTLSServer(t, http.StatusOK, "<ok/>", &got)
	tr := newTestTransport(t, srv)

	body, err := tr.Post(context.Background(), []string{srv.URL}, distRequest())
	if err != nil {
		t.Fatalf("Post falhou: %v", err)
	}
	if string(body) != "<ok/>" {
		t.Errorf("corpo inesperado: %s", body)
	}
	if got.contentType != "text/xml; charset=utf-8" {
		t.Errorf("Content-Type incorreto: %s", got.contentType)
	}
	if got.soapAction != `"`+sefaz.ActionDistDFe+`"` {
		t.Errorf("SOAPAction incorreto: %s", got.soapAction)
	}
	if got.clientCN != "EMPRESA TESTE LTDA:11222333000181" {
		t.Errorf("certificado de cliente não apresentado: %q", got.clientCN)
	}
	if !strings.Contains(got.body, "<nfed:nfeDistDFeInteresse><nfed:nfeDadosMsg><distDFeInt") {
		t.Errorf("envelope sem operação: %s", got.body)
	}
}

func TestPostSOAP12UsesActionInContentType(t *testing.T) {
	var got captured
	srv := newMTLSServer(t, http.StatusOK, "<ok/>", &got)
	tr := newTestTransport(t, srv)

	req := Request{
		Version:   SOAP12,
		Action:    sefaz.ActionRecepcaoEvto,
		Namespace: sefaz.NamespaceEvento,
		Payload:   []byte(`<?xml version="1.0"?><envEvento/>`),
	}
	if _, err := tr.Post(context.Background(), []string{srv.URL}, req); err != nil {
		t.Fatalf("Post falhou: %v", err)
	}

	want := `application/soap+xml; charset=utf-8; action="` + sefaz.ActionRecepcaoEvto + `"`
	if got.contentType != want {
		t.Errorf("Content-Type = %s", got.contentType)
	}
	if got.soapAction != "" {
		t.Errorf("SOAP 1.2 não deve enviar SOAPAction: %s", got.soapAction)
	}
	if strings.Count(got.body, "<?xml") != 1 {
		t.Errorf("declaração XML do payload deveria ser removida: %s", got.body)
	}
	if !strings.Contains(got.body, `<soap12:Body><nfed:nfeDadosMsg><envEvento/></nfed:nfeDadosMsg></soap12:Body>`) {
		t.Errorf("envelope 1.2 inesperado: %s", got.body)
	}
}

func TestPostFallsBackToNextEndpoint(t *testing.T) {
	bad := newMTLSServer(t, http.StatusServiceUnavailable, "fora do ar", nil)
	good := newMTLSServer(t, http.StatusOK, "<ok/>", nil)
	tr := newTestTransport(t, bad, good)

	body, err := tr.Post(context.Background(), []string{bad.URL, good.URL}, distRequest())
	if err != nil {
		t.Fatalf("fallback falhou: %v", err)
	}
	if string(body) != "<ok/>" {
		t.Errorf("corpo inesperado: %s", body)
	}
}

func TestPostAllEndpointsFail(t *testing.T) {
	a := newMTLSServer(t, http.StatusInternalServerError, "erro a", nil)
	b := newMTLSServer(t, http.StatusBadGateway, strings.Repeat("x", 900), nil)
	tr := newTestTransport(t, a, b)

	_, err := tr.Post(context.Background(), []string{a.URL, b.URL}, distRequest())
	if !errors.Is(err, ErrAllEndpointsFailed) {
		t.Fatalf("esperado ErrAllEndpointsFailed, veio %v", err)
	}
	if !errors.Is(err, ErrHTTPStatus) {
		t.Fatalf("o último erro HTTP deveria ser preservado: %v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadGateway || len(se.Body) != maxErrorBody {
		t.Errorf("StatusError inesperado: %+v", se)
	}
}

func TestPostWithoutEndpoints(t *testing.T) {
	srv := newMTLSServer(t, http.StatusOK, "", nil)
	tr := newTestTransport(t, srv)
	if _, err := tr.Post(context.Background(), nil, distRequest()); !errors.Is(err, ErrNoEndpoints) {
		t.Fatalf("esperado ErrNoEndpoints, veio %v", err)
	}
}

func TestPostUntrustedServerFails(t *testing.T) {
	srv := newMTLSServer(t, http.StatusOK, "<ok/>", nil)
	tr := newTestTransport(t) // pool sem o certificado do servidor

	if _, err := tr.Post(context.Background(), []string{srv.URL}, distRequest()); !errors.Is(err, ErrAllEndpointsFailed) {
		t.Fatalf("servidor não confiável deveria falhar: %v", err)
	}
}
