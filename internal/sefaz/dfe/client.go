package dfe

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

// Client consulta o NFeDistribuicaoDFe para uma empresa
type Client struct {
	poster    Poster
	identity  Identity
	endpoints []string
	log       logger.Logger
}

// NewClient cria o cliente; sem endpoints usa os nacionais do ambiente
func NewClient(poster Poster, id Identity, endpoints []string, log logger.Logger) *Client {
	if len(endpoints) == 0 {
		endpoints = sefaz.DistributionEndpoints(id.Environment)
	}
	return &Client{
		poster:    poster,
		identity:  id,
		endpoints: endpoints,
		log:       log.With("cnpj", nfekey.MaskCNPJ(nfekey.OnlyDigits(id.CNPJ)), "cUFAutor", id.UFCode),
	}
}

// QueryByNSU consulta os documentos posteriores ao último NSU
func (c *Client) QueryByNSU(ctx context.Context, lastNSU string) (*Result, error) {
	payload, err := BuildNSURequest(c.identity, lastNSU)
	if err != nil {
		return nil, err
	}
	c.log.Info("consultando DF-e", "ultNSU", lastNSU, "tpAmb", c.identity.Environment.TpAmb())
	return c.exchange(ctx, payload)
}

// QueryByKey consulta um documento pela chave de acesso
func (c *Client) QueryByKey(ctx context.Context, accessKey string) (*Result, error) {
	payload, err := BuildKeyRequest(c.identity, accessKey)
	if err != nil {
		return nil, err
	}
	c.log.Info("consultando NF-e por chave", "chave", accessKey)
	return c.exchange(ctx, payload)
}

func (c *Client) exchange(ctx context.Context, payload []byte) (*Result, error) {
	body, err := c.poster.Post(ctx, c.endpoints, soap.Request{
		Version:   soap.SOAP11,
		Action:    sefaz.ActionDistDFe,
		Namespace: sefaz.NamespaceDistDFe,
		Operation: "nfeDistDFeInteresse",
		Payload:   payload,
	})
	if err != nil {
		return nil, fmt.Errorf("falha na consulta de distribuição: %w", err)
	}

	res, err := ParseResponse(body, c.log)
	if err != nil {
		return nil, err
	}

	c.log.Info("resposta da distribuição",
		"cStat", res.CStat,
		"xMotivo", res.Motivo,
		"maxNSU", res.MaxNSU,
		"ultNSU", res.UltNSU,
		"docs", len(res.Documents))
	return res, nil
}
