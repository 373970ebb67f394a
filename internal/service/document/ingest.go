// Package document grava os XMLs recebidos da distribuição: blob no storage
// e registro fiscal.Document, respeitando a regra resumo -> completo.
package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hugohenrick/dfe-sync/internal/domain/fiscal"
	"github.com/hugohenrick/dfe-sync/internal/infrastructure/storage"
	"github.com/hugohenrick/dfe-sync/internal/parser"
	"github.com/hugohenrick/dfe-sync/internal/sefaz/dfe"
	"github.com/hugohenrick/dfe-sync/pkg/logger"
	"github.com/hugohenrick/dfe-sync/pkg/nfekey"
)

// Outcome é o efeito de uma ingestão
type Outcome int

const (
	// Ignored: documento sem chave, de tipo desconhecido ou evento sem efeito
	Ignored Outcome = iota
	// Skipped: a chave já existe e nada mudou
	Skipped
	Created
	Upgraded
	// Refreshed: resumo existente atualizado por um resNFe diferente
	Refreshed
	Canceled
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Created:
		return "created"
	case Upgraded:
		return "upgraded"
	case Refreshed:
		return "refreshed"
	case Canceled:
		return "canceled"
	default:
		return "ignored"
	}
}

// Imported indica se a ingestão gravou um XML novo
func (o Outcome) Imported() bool {
	return o == Created || o == Upgraded
}

// Writer grava blobs no storage
type Writer interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Ingester persiste documentos da distribuição
type Ingester struct {
	docs  fiscal.DocumentRepository
	blobs Writer
	log   logger.Logger
	now   func() time.Time
}

// NewIngester cria o Ingester
func NewIngester(docs fiscal.DocumentRepository, blobs Writer, log logger.Logger) *Ingester {
	return &Ingester{docs: docs, blobs: blobs, log: log, now: time.Now}
}

// Ingest grava o documento para a empresa. companyCNPJ é o CNPJ do certificado,
// usado para a direção da nota e no caminho do storage.
func (i *Ingester) Ingest(ctx context.Context, companyID int64, companyCNPJ string, d dfe.Document) (Outcome, error) {
	rec := parser.Parse(d.XML, companyCNPJ)
	key := d.AccessKey
	if key == "" {
		key = rec.AccessKey
	}
	if !nfekey.IsKey(key) {
		i.log.Debug("documento sem chave de acesso ignorado", "nsu", d.NSU, "schema", d.Schema)
		return Ignored, nil
	}

	switch d.Type {
	case dfe.TypeEvent, dfe.TypeCancellation:
		if rec.Status != fiscal.StatusCanceled {
			return Ignored, nil
		}
		return i.cancel(ctx, key)
	case dfe.TypeSummary, dfe.TypeFull:
	default:
		i.log.Debug("schema não tratado", "nsu", d.NSU, "schema", d.Schema)
		return Ignored, nil
	}

	kind := fiscal.KindSummary
	if d.Type == dfe.TypeFull {
		kind = fiscal.KindFull
	}

	existing, err := i.docs.FindByKey(ctx, key)
	switch {
	case errors.Is(err, fiscal.ErrNotFound):
		outcome, err := i.create(ctx, companyID, companyCNPJ, key, kind, d, rec)
		if !errors.Is(err, fiscal.ErrDuplicate) {
			return outcome, err
		}
		// outra execução inseriu a mesma chave; segue como atualização
		if existing, err = i.docs.FindByKey(ctx, key); err != nil {
			return Ignored, fmt.Errorf("falha ao buscar documento %s: %w", key, err)
		}
	case err != nil:
		return Ignored, fmt.Errorf("falha ao buscar documento %s: %w", key, err)
	}

	return i.merge(ctx, existing, companyCNPJ, key, kind, d, rec)
}

func (i *Ingester) create(ctx context.Context, companyID int64, cnpj, key string, kind fiscal.XMLKind, d dfe.Document, rec parser.Record) (Outcome, error) {
	doc, err := fiscal.NewDocument(companyID, key, d.NSU, kind)
	if err != nil {
		return Ignored, err
	}
	apply(doc, rec)
	if err := i.store(ctx, doc, cnpj, d.XML); err != nil {
		return Ignored, err
	}
	if err := i.docs.Create(ctx, doc); err != nil {
		if errors.Is(err, fiscal.ErrDuplicate) {
			return Ignored, err
		}
		return Ignored, fmt.Errorf("falha ao criar documento %s: %w", key, err)
	}

	i.log.Info("documento importado", "chave", key, "xml_kind", kind, "nsu", d.NSU)
	return Created, nil
}

func (i *Ingester) merge(ctx context.Context, existing *fiscal.Document, cnpj, key string, kind fiscal.XMLKind, d dfe.Document, rec parser.Record) (Outcome, error) {
	if existing.XMLKind == fiscal.KindSummary && kind == fiscal.KindFull {
		incoming, err := fiscal.NewDocument(existing.CompanyID, key, d.NSU, kind)
		if err != nil {
			return Ignored, err
		}
		apply(incoming, rec)
		if err := i.store(ctx, incoming, cnpj, d.XML); err != nil {
			return Ignored, err
		}
		existing.Merge(incoming)
		if err := i.docs.Update(ctx, existing); err != nil {
			return Ignored, fmt.Errorf("falha ao atualizar documento %s: %w", key, err)
		}
		i.log.Info("XML completo atualizado", "chave", key, "nsu", d.NSU)
		return Upgraded, nil
	}

	if !existing.IsFull() && kind == fiscal.KindSummary && storage.SHA256(d.XML) != existing.SHA256 {
		incoming, err := fiscal.NewDocument(existing.CompanyID, key, d.NSU, kind)
		if err != nil {
			return Ignored, err
		}
		apply(incoming, rec)
		if err := i.store(ctx, incoming, cnpj, d.XML); err != nil {
			return Ignored, err
		}
		existing.Refresh(incoming)
		if err := i.docs.Update(ctx, existing); err != nil {
			return Ignored, fmt.Errorf("falha ao atualizar documento %s: %w", key, err)
		}
		i.log.Debug("resumo atualizado", "chave", key, "nsu", d.NSU)
		return Refreshed, nil
	}

	if rec.Status == fiscal.StatusCanceled && existing.MarkCanceled() {
		if err := i.docs.Update(ctx, existing); err != nil {
			return Ignored, fmt.Errorf("falha ao atualizar documento %s: %w", key, err)
		}
		return Canceled, nil
	}

	i.log.Debug("documento já existe, pulando", "chave", key)
	return Skipped, nil
}

func (i *Ingester) cancel(ctx context.Context, key string) (Outcome, error) {
	doc, err := i.docs.FindByKey(ctx, key)
	if errors.Is(err, fiscal.ErrNotFound) {
		return Ignored, nil
	}
	if err != nil {
		return Ignored, fmt.Errorf("falha ao buscar documento %s: %w", key, err)
	}
	if !doc.MarkCanceled() {
		return Skipped, nil
	}
	if err := i.docs.Update(ctx, doc); err != nil {
		return Ignored, fmt.Errorf("falha ao cancelar documento %s: %w", key, err)
	}
	i.log.Info("documento cancelado", "chave", key)
	return Canceled, nil
}

func (i *Ingester) store(ctx context.Context, doc *fiscal.Document, cnpj string, xml []byte) error {
	key := storage.BuildXMLKey(doc.CompanyID, nfekey.OnlyDigits(cnpj), i.now(), doc.AccessKey)
	if err := i.blobs.Put(ctx, key, xml, storage.ContentTypeXML); err != nil {
		return fmt.Errorf("falha ao gravar XML %s: %w", doc.AccessKey, err)
	}
	doc.StorageKey = key
	doc.SHA256 = storage.SHA256(xml)
	return nil
}

func apply(doc *fiscal.Document, rec parser.Record) {
	doc.Direction = rec.Direction
	if rec.Status != fiscal.StatusUnknown {
		doc.Status = rec.Status
	}
	doc.Number = rec.Number
	doc.Series = rec.Series
	doc.IssuedAt = rec.IssuedAt
	doc.IssuerCNPJ = rec.IssuerCNPJ
	doc.IssuerName = rec.IssuerName
	doc.RecipientCNPJ = rec.RecipientCNPJ
	doc.RecipientName = rec.RecipientName
	doc.TotalValue = rec.TotalValue
}
