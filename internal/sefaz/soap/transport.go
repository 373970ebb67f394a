package soap

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hugohenrick/dfe-sync/pkg/logger"
)

var (
	ErrHTTPStatus         = errors.New("resposta HTTP diferente de 200")
	ErrAllEndpointsFailed = errors.New("todos os endpoints falharam")
	ErrNoEndpoints        = errors.New("nenhum endpoint configurado")
)

const maxErrorBody = 500

// StatusError carrega o status e o início do corpo de uma resposta não 200
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrHTTPStatus
}

// Options configura o transporte
type Options struct {
	Timeout time.Duration
	// RootCAs substitui o pool do sistema (testes)
	RootCAs *x509.CertPool
	// CADir é um diretório opcional com CAs ICP-Brasil (.crt/.pem) somadas ao pool do sistema
	CADir string
}

// Transport envia envelopes SOAP com o certificado de uma única empresa.
// O certificado fica em memória; nenhum material de chave é gravado em disco.
type Transport struct {
	client *http.Client
	log    logger.Logger
}

// NewTransport configura o cliente HTTP com o certificado mTLS da empresa
func NewTransport(cert tls.Certificate, opts Options, log logger.Logger) (*Transport, error) {
	pool := opts.RootCAs
	if pool == nil {
		var err error
		if pool, err = systemPool(opts.CADir, log); err != nil {
			return nil, err
		}
	}

	// renegociação exigida pela SEFAZ SP e pelo Ambiente Nacional
	tlsConfig := &tls.Config{
		Certificates:  []tls.Certificate{cert},
		RootCAs:       pool,
		Renegotiation: tls.RenegotiateFreelyAsClient,
		MinVersion:    tls.VersionTLS12,
		MaxVersion:    tls.VersionTLS12,
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Transport{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: tlsConfig,
				Proxy:           http.ProxyFromEnvironment,
				MaxIdleConns:    2,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		log: log,
	}, nil
}

// Post envia a requisição a cada endpoint em ordem até um responder 200
func (t *Transport) Post(ctx context.Context, endpoints []string, req Request) ([]byte, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	envelope := req.Envelope()
	var lastErr error
	for i, endpoint := range endpoints {
		body, err := t.post(ctx, endpoint, req, envelope)
		if err == nil {
			return body, nil
		}
		lastErr = err
		t.log.Warn("falha no endpoint SEFAZ",
			"endpoint", endpoint,
			"tentativa", i+1,
			"total", len(endpoints),
			"error", err)

		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrAllEndpointsFailed, lastErr)
}

func (t *Transport) post(ctx context.Context, endpoint string, req Request, envelope []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(envelope))
	if err != nil {
		return nil, fmt.Errorf("erro ao criar requisição: %w", err)
	}
	httpReq.Header.Set("Content-Type", req.ContentType())
	if req.Version != SOAP12 {
		httpReq.Header.Set("SOAPAction", `"`+req.Action+`"`)
	}
	httpReq.Header.Set("User-Agent", "dfe-sync/1.0")

	t.log.Debug("enviando requisição SOAP", "endpoint", endpoint, "bytes", len(envelope))

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("erro na conexão mTLS/webservice: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("erro ao ler resposta: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: snippet}
	}
	return body, nil
}

// Close libera as conexões ociosas do transporte
func (t *Transport) Close() {
	t.client.CloseIdleConnections()
}

func systemPool(caDir string, log logger.Logger) (*x509.CertPool, error) {
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		log.Warn("SystemCertPool indisponível, usando pool vazio", "error", err)
		pool = x509.NewCertPool()
	}
	if caDir == "" {
		return pool, nil
	}
	if err := loadCertsFromDir(pool, caDir, log); err != nil {
		return nil, err
	}
	return pool, nil
}

// loadCertsFromDir adiciona ao pool os certificados .crt e .pem do diretório
func loadCertsFromDir(pool *x509.CertPool, dir string, log logger.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("falha ao ler o diretório %s: %w", dir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.Contains(name, "key") {
			continue
		}
		if !strings.HasSuffix(name, ".crt") && !strings.HasSuffix(name, ".pem") {
			continue
		}

		path := filepath.Join(dir, name)
		certBytes, err := os.ReadFile(path)
		if err != nil {
			log.Warn("falha ao ler CA", "arquivo", path, "error", err)
			continue
		}
		if ok := pool.AppendCertsFromPEM(certBytes); !ok {
			log.Warn("CA em formato inválido", "arquivo", name)
		}
	}
	return nil
}
