// Package session monta, para um certificado, os clientes de distribuição
// e de evento que compartilham o mesmo transporte mTLS.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/hugohenrick/dfe-sync/internal/domain/certificate"
	"github.com/hugohenrick/dfe-sync/internal/sefaz"
	"github.com/hugohenrick/dfe-sync/internal/sefaz/dfe"
	"github.com/hugohenrick/dfe-sync/internal/sefaz/evento"
	"github.com/hugohenrick/dfe-sync/internal/sefaz/soap"
	"github.com/hugohenrick/dfe-sync/pkg/logger"
	"github.com/hugohenrick/dfe-sync/pkg/pkcs12"
)

// Distribution consulta o NFeDistribuicaoDFe
type Distribution interface {
	QueryByNSU(ctx context.Context, lastNSU string) (*dfe.Result, error)
	QueryByKey(ctx context.Context, accessKey string) (*dfe.Result, error)
}

// Events envia eventos de manifestação
type Events interface {
	Send(ctx context.Context, ev evento.Event) (*evento.Result, error)
}

// Session agrupa os clientes de uma empresa. Deve ser fechada após o uso.
type Session struct {
	Certificate  *certificate.Certificate
	Distribution Distribution
	Events       Events
	closer       func()
}

// New cria uma sessão a partir de clientes já montados
func New(cert *certificate.Certificate, dist Distribution, events Events, closer func()) *Session {
	return &Session{Certificate: cert, Distribution: dist, Events: events, closer: closer}
}

// Close libera as conexões do transporte
func (s *Session) Close() {
	if s.closer != nil {
		s.closer()
	}
}

// Opener abre uma sessão para a empresa. Erros de certificado usam os
// sentinelas de certificate.
type Opener interface {
	Open(ctx context.Context, companyID int64) (*Session, error)
}

// Factory é o Opener de produção
type Factory struct {
	provider certificate.Provider
	env      sefaz.Environment
	opts     soap.Options
	distURLs []string
	log      logger.Logger
	now      func() time.Time
}

// NewFactory cria a fábrica de sessões; distURLs vazio usa os endpoints nacionais
func NewFactory(provider certificate.Provider, env sefaz.Environment, opts soap.Options, distURLs []string, log logger.Logger) *Factory {
	return &Factory{
		provider: provider,
		env:      env,
		opts:     opts,
		distURLs: distURLs,
		log:      log,
		now:      time.Now,
	}
}

// Open obtém o certificado ativo, decodifica o .pfx e monta os clientes
func (f *Factory) Open(ctx context.Context, companyID int64) (*Session, error) {
	cert, err := f.provider.GetActiveCertificate(ctx, companyID)
	if err != nil {
		return nil, err
	}

	pfx, password, err := f.provider.GetDecryptedMaterial(ctx, cert)
	if err != nil {
		return nil, err
	}

	material, err := pkcs12.Decode(pfx, password)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", certificate.ErrUndecryptable, err)
	}
	if err := material.CheckValidity(f.now()); err != nil {
		return nil, fmt.Errorf("%w: %w", certificate.ErrExpired, err)
	}

	tlsCert, err := material.TLSCertificate()
	if err != nil {
		return nil, fmt.Errorf("falha ao montar certificado TLS: %w", err)
	}
	key, err := material.RSAKey()
	if err != nil {
		return nil, err
	}

	log := f.log.With("company_id", companyID)
	transport, err := soap.NewTransport(tlsCert, f.opts, log)
	if err != nil {
		return nil, fmt.Errorf("falha ao criar transporte SOAP: %w", err)
	}

	certUF := material.StateCode()
	dist := dfe.NewClient(transport, dfe.Identity{
		Environment: f.env,
		CNPJ:        cert.CNPJ,
		UFCode:      sefaz.ResolveUFCode(cert.CompanyUF, certUF),
	}, f.distURLs, log)

	uf := cert.CompanyUF
	if sefaz.UFCode(uf) == "" {
		uf = certUF
	}
	events := evento.NewClient(transport, evento.Issuer{
		Environment: f.env,
		CNPJ:        cert.CNPJ,
		UF:          uf,
	}, evento.NewSigner(key, material.Certificate.Raw), log)

	return New(cert, dist, events, transport.Close), nil
}
