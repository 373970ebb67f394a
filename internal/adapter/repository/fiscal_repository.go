package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/hugohenrick/dfe-sync/internal/domain/fiscal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DocumentRepository implementa a interface fiscal.DocumentRepository
type DocumentRepository struct {
	db *pgxpool.Pool
}

// NewDocumentRepository cria uma nova instância de DocumentRepository
func NewDocumentRepository(db *pgxpool.Pool) fiscal.DocumentRepository {
	return &DocumentRepository{
		db: db,
	}
}

const documentColumns = `
	id, company_id, chave, nsu, tipo, situacao, xml_kind,
	COALESCE(numero, ''), COALESCE(serie, ''), data_emissao,
	COALESCE(cnpj_emitente, ''), COALESCE(emitente_nome, ''),
	COALESCE(cnpj_destinatario, ''), COALESCE(destinatario_nome, ''),
	valor_total, xml_storage_key, COALESCE(xml_sha256, ''), created_at, updated_at`

func scanDocument(row pgx.Row) (*fiscal.Document, error) {
	var doc fiscal.Document
	err := row.Scan(
		&doc.ID, &doc.CompanyID, &doc.AccessKey, &doc.NSU, &doc.Direction, &doc.Status, &doc.XMLKind,
		&doc.Number, &doc.Series, &doc.IssuedAt,
		&doc.IssuerCNPJ, &doc.IssuerName,
		&doc.RecipientCNPJ, &doc.RecipientName,
		&doc.TotalValue, &doc.StorageKey, &doc.SHA256, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindByKey busca o documento pela chave de acesso
func (r *DocumentRepository) FindByKey(ctx context.Context, accessKey string) (*fiscal.Document, error) {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("falha ao adquirir conexão: %w", err)
	}
	defer conn.Release()

	doc, err := scanDocument(conn.QueryRow(ctx, `SELECT `+documentColumns+` FROM nfe_documents WHERE chave = $1`, accessKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fiscal.ErrNotFound
		}
		return nil, fmt.Errorf("falha ao buscar documento: %w", err)
	}

	return doc, nil
}

// Create insere o documento; a unicidade da chave é garantida pela constraint
func (r *DocumentRepository) Create(ctx context.Context, doc *fiscal.Document) error {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("falha ao adquirir conexão: %w", err)
	}
	defer conn.Release()

	query := `
		INSERT INTO nfe_documents (
			id, company_id, chave, nsu, tipo, situacao, xml_kind, numero, serie, data_emissao,
			cnpj_emitente, emitente_nome, cnpj_destinatario, destinatario_nome, valor_total,
			xml_storage_key, xml_sha256, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10,
			NULLIF($11, ''), NULLIF($12, ''), NULLIF($13, ''), NULLIF($14, ''), $15,
			$16, NULLIF($17, ''), $18, $19
		)
		ON CONFLICT (chave) DO NOTHING
	`

	tag, err := conn.Exec(ctx, query,
		doc.ID, doc.CompanyID, doc.AccessKey, doc.NSU, doc.Direction, doc.Status, doc.XMLKind,
		doc.Number, doc.Series, doc.IssuedAt,
		doc.IssuerCNPJ, doc.IssuerName, doc.RecipientCNPJ, doc.RecipientName, doc.TotalValue,
		doc.StorageKey, doc.SHA256, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("falha ao inserir documento: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fiscal.ErrDuplicate
	}

	return nil
}

// Update grava o documento. O filtro de xml_kind impede que um registro
// completo volte a ser resumo mesmo com gravações concorrentes.
func (r *DocumentRepository) Update(ctx context.Context, doc *fiscal.Document) error {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("falha ao adquirir conexão: %w", err)
	}
	defer conn.Release()

	query := `
		UPDATE nfe_documents SET
			nsu = $2, tipo = $3, situacao = $4, xml_kind = $5,
			numero = NULLIF($6, ''), serie = NULLIF($7, ''), data_emissao = $8,
			cnpj_emitente = NULLIF($9, ''), emitente_nome = NULLIF($10, ''),
			cnpj_destinatario = NULLIF($11, ''), destinatario_nome = NULLIF($12, ''),
			valor_total = $13, xml_storage_key = $14, xml_sha256 = NULLIF($15, ''),
			updated_at = $16
		WHERE chave = $1 AND NOT (xml_kind = $17 AND $5 = $18)
	`

	tag, err := conn.Exec(ctx, query,
		doc.AccessKey, doc.NSU, doc.Direction, doc.Status, doc.XMLKind,
		doc.Number, doc.Series, doc.IssuedAt,
		doc.IssuerCNPJ, doc.IssuerName,
		doc.RecipientCNPJ, doc.RecipientName,
		doc.TotalValue, doc.StorageKey, doc.SHA256,
		doc.UpdatedAt, fiscal.KindFull, fiscal.KindSummary)
	if err != nil {
		return fmt.Errorf("falha ao atualizar documento: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: documento %s não atualizado", fiscal.ErrNotFound, doc.AccessKey)
	}

	return nil
}

// ListSummaries lista documentos da empresa que ainda não têm o XML completo
func (r *DocumentRepository) ListSummaries(ctx context.Context, companyID int64, limit int) ([]*fiscal.Document, error) {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("falha ao adquirir conexão: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
		SELECT `+documentColumns+`
		FROM nfe_documents
		WHERE company_id = $1 AND xml_kind = $2
		ORDER BY created_at
		LIMIT $3
	`, companyID, fiscal.KindSummary, limit)
	if err != nil {
		return nil, fmt.Errorf("falha ao listar documentos resumidos: %w", err)
	}
	defer rows.Close()

	var docs []*fiscal.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("falha ao ler documento: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("falha ao iterar documentos: %w", err)
	}

	return docs, nil
}
