package evento

import (
	"context"
	"fmt"

	"github.com/hugohenrick/dfe-sync/internal/sefaz"
	"github.com/hugohenrick/dfe-sync/internal/sefaz/soap"
	"github.com/hugohenrick/dfe-sync/pkg/logger"
	"github.com/hugohenrick/dfe-sync/pkg/nfekey"
)

// Poster envia um envelope SOAP aos endpoints em ordem
type Poster interface {
	Post(ctx context.Context, endpoints []string, req soap.Request) ([]byte, error)
}

// Client envia eventos de manifestação ao autorizador da UF da empresa
type Client struct {
	poster   Poster
	issuer   Issuer
	signer   *Signer
	endpoint string
	log      logger.Logger
}

// NewClient resolve o endpoint pela UF; UFs sem serviço próprio usam o SVRS
func NewClient(poster Poster, issuer Issuer, signer *Signer, log logger.Logger) *Client {
	log = log.With("cnpj", nfekey.MaskCNPJ(nfekey.OnlyDigits(issuer.CNPJ)), "uf", issuer.UF)
	endpoint, fallback := sefaz.EventEndpoint(issuer.Environment, issuer.UF)
	if fallback {
		log.Warn("UF sem endpoint de evento registrado, usando SVRS", "endpoint", endpoint)
	}
	return &Client{
		poster:   poster,
		issuer:   issuer,
		signer:   signer,
		endpoint: endpoint,
		log:      log,
	}
}

// Endpoint retorna a URL de destino dos eventos
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Send assina e envia o evento. Rejeição da SEFAZ não é erro: o cStat vai no Result.
func (c *Client) Send(ctx context.Context, ev Event) (*Result, error) {
	payload, err := BuildSigned(c.issuer, ev, c.signer)
	if err != nil {
		return nil, err
	}

	c.log.Info("enviando evento de manifestação", "chave", ev.AccessKey, "tpEvento", ev.Type)
	body, err := c.poster.Post(ctx, []string{c.endpoint}, soap.Request{
		Version:   soap.SOAP12,
		Action:    sefaz.ActionRecepcaoEvto,
		Namespace: sefaz.NamespaceEvento,
		Payload:   payload,
	})
	if err != nil {
		return nil, fmt.Errorf("falha no envio do evento: %w", err)
	}

	res, err := ParseResponse(body)
	if err != nil {
		return nil, err
	}
	c.log.Info("resposta do evento",
		"chave", ev.AccessKey,
		"tpEvento", ev.Type,
		"cStat", res.Status,
		"xMotivo", res.Motivo,
		"cStatEvento", res.EventCStat(),
		"nProt", res.Protocol())
	return res, nil
}
