// Package syncer conduz a sincronização incremental do NFeDistribuicaoDFe
// por empresa: cursor NSU, guarda anti-bloqueio, ingestão e logs de execução.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hugohenrick/dfe-sync/internal/domain/certificate"
	"github.com/hugohenrick/dfe-sync/internal/domain/fiscal"
	"github.com/hugohenrick/dfe-sync/internal/infrastructure/lock"
	"github.com/hugohenrick/dfe-sync/internal/sefaz/dfe"
	"github.com/hugohenrick/dfe-sync/internal/service/document"
	"github.com/hugohenrick/dfe-sync/internal/service/session"
	"github.com/hugohenrick/dfe-sync/pkg/logger"
	"github.com/hugohenrick/dfe-sync/pkg/nfekey"
)

const (
	msgBusy            = "sincronização já em andamento"
	msgCertificate     = "Certificado não encontrado ou inativo"
	msgReblocked       = "Último cStat=137 há menos de 1h"
	defaultCooldown    = time.Hour
	releaseLockTimeout = 5 * time.Second
)

// Result é o desfecho de uma execução. Erros de negócio vão em Error, nunca como error.
type Result struct {
	CompanyID    int64            `json:"company_id"`
	Status       fiscal.RunStatus `json:"status"`
	DocsFound    int              `json:"docs_found"`
	DocsImported int              `json:"docs_imported"`
	LastNSU      string           `json:"last_nsu,omitempty"`
	Error        string           `json:"error_message,omitempty"`
}

// Options ajusta o comportamento do Syncer
type Options struct {
	// ReblockCooldown é o intervalo mínimo após um cStat 137 (padrão 1h)
	ReblockCooldown time.Duration
}

// Syncer executa a sincronização de uma empresa por vez; empresas diferentes
// podem ser sincronizadas em paralelo, a mesma empresa é serializada pelo locker.
type Syncer struct {
	opener   session.Opener
	states   fiscal.StateRepository
	logs     fiscal.SyncLogRepository
	ingester *document.Ingester
	locker   lock.Locker
	log      logger.Logger
	opts     Options
	now      func() time.Time
}

// NewSyncer cria o orquestrador de sincronização
func NewSyncer(opener session.Opener, states fiscal.StateRepository, logs fiscal.SyncLogRepository, ingester *document.Ingester, locker lock.Locker, log logger.Logger, opts Options) *Syncer {
	if opts.ReblockCooldown <= 0 {
		opts.ReblockCooldown = defaultCooldown
	}
	return &Syncer{
		opener:   opener,
		states:   states,
		logs:     logs,
		ingester: ingester,
		locker:   locker,
		log:      log,
		opts:     opts,
		now:      time.Now,
	}
}

// SyncCompany consulta a distribuição a partir do último NSU da empresa
func (s *Syncer) SyncCompany(ctx context.Context, companyID int64, syncType fiscal.SyncType) Result {
	log := s.log.With("company_id", companyID, "run_id", uuid.New().String(), "sync_type", syncType)
	res := Result{CompanyID: companyID}

	release, err := s.acquire(ctx, companyID)
	if err != nil {
		res.Status = fiscal.RunError
		res.Error = err.Error()
		log.Warn("sincronização não iniciada", "error", err)
		return res
	}
	defer release()

	sess, err := s.opener.Open(ctx, companyID)
	if err != nil {
		res.Status = fiscal.RunError
		res.Error = certificateMessage(err)
		log.Error("falha ao abrir sessão SEFAZ", "error", err)
		return res
	}
	defer sess.Close()

	runLog, err := fiscal.NewSyncLog(companyID, syncType)
	if err != nil {
		res.Status = fiscal.RunError
		res.Error = err.Error()
		return res
	}
	if err := s.logs.Create(ctx, runLog); err != nil {
		res.Status = fiscal.RunError
		res.Error = fmt.Sprintf("falha ao criar log de sincronização: %v", err)
		log.Error("falha ao criar log de sincronização", "error", err)
		return res
	}

	state, err := s.run(ctx, log, sess, companyID, &res)
	if err != nil {
		res.Status = fiscal.RunError
		res.Error = err.Error()
		res.DocsFound, res.DocsImported = 0, 0
		res.LastNSU = s.lastKnownNSU(ctx, companyID, state)
		log.Error("erro na sincronização", "error", err, "last_nsu", res.LastNSU)
	}

	runLog.Finish(res.Status, res.DocsFound, res.DocsImported, res.Error)
	if err := s.logs.Update(ctx, runLog); err != nil {
		log.Error("falha ao finalizar log de sincronização", "error", err)
	}
	return res
}

func (s *Syncer) run(ctx context.Context, log logger.Logger, sess *session.Session, companyID int64, res *Result) (*fiscal.SyncState, error) {
	state, err := s.loadState(ctx, companyID)
	if err != nil {
		return nil, err
	}
	res.LastNSU = state.LastNSU

	if state.Reblocked(s.now(), s.opts.ReblockCooldown) {
		log.Info("consulta ignorada: cStat 137 recente", "last_sync_at", state.LastSyncAt)
		res.Status = fiscal.RunPartial
		res.Error = msgReblocked
		return state, nil
	}

	resp, err := sess.Distribution.QueryByNSU(ctx, state.LastNSU)
	if err != nil {
		return state, fmt.Errorf("falha na consulta de distribuição: %w", err)
	}
	log.Info("resposta da distribuição",
		"cstat", resp.CStat,
		"motivo", resp.Motivo,
		"max_nsu", resp.MaxNSU,
		"ult_nsu", resp.UltNSU,
		"docs", len(resp.Documents),
	)

	switch resp.Kind {
	case dfe.KindDocuments:
		res.DocsFound = len(resp.Documents)
		res.DocsImported = s.ingestBatch(ctx, log, sess, companyID, resp.Documents)
		res.Status = fiscal.RunSuccess
	case dfe.KindNoDocuments:
		res.Status = fiscal.RunPartial
	case dfe.KindApplicationError:
		res.Status = fiscal.RunPartial
		res.Error = fmt.Sprintf("cStat %s: %s", resp.CStat, resp.Motivo)
	default:
		return state, fmt.Errorf("resposta de distribuição inválida: %s", resp.Kind)
	}

	state.ApplyResponse(resp.CStat, resp.MaxNSU, resp.Motivo, s.now())
	if err := s.states.Save(ctx, state); err != nil {
		return state, fmt.Errorf("falha ao salvar estado de sincronização: %w", err)
	}
	res.LastNSU = state.LastNSU

	log.Info("sincronização concluída",
		"status", res.Status,
		"docs_found", res.DocsFound,
		"docs_imported", res.DocsImported,
		"last_nsu", state.LastNSU,
	)
	return state, nil
}

// ingestBatch grava os documentos da página. Falhas por documento são
// registradas e não interrompem o lote.
func (s *Syncer) ingestBatch(ctx context.Context, log logger.Logger, sess *session.Session, companyID int64, docs []dfe.Document) int {
	cnpj := sess.Certificate.CNPJ
	cache := make(map[string]dfe.Document)
	imported := 0

	for _, d := range docs {
		resolved := s.resolveFull(ctx, log, sess.Distribution, d, cache)
		outcome, err := s.ingester.Ingest(ctx, companyID, cnpj, resolved)
		if err != nil {
			log.Error("falha ao processar documento", "nsu", d.NSU, "chave", d.AccessKey, "error", err)
			continue
		}
		if outcome.Imported() {
			imported++
		}
	}
	return imported
}

// resolveFull troca um resNFe pelo procNFe quando a consulta por chave já o devolve.
// As consultas são sequenciais e cada chave é consultada uma vez por lote.
func (s *Syncer) resolveFull(ctx context.Context, log logger.Logger, dist session.Distribution, d dfe.Document, cache map[string]dfe.Document) dfe.Document {
	if !d.HasKey() || d.Type != dfe.TypeSummary {
		return d
	}
	if cached, ok := cache[d.AccessKey]; ok {
		return cached
	}

	cache[d.AccessKey] = d
	resp, err := dist.QueryByKey(ctx, d.AccessKey)
	if err != nil {
		log.Warn("falha ao buscar XML completo", "chave", d.AccessKey, "error", err)
		return d
	}
	if full, ok := resp.FirstOfType(dfe.TypeFull); ok {
		log.Info("XML completo encontrado", "chave", d.AccessKey)
		cache[d.AccessKey] = full
		return full
	}
	return d
}

// ImportByKey importa os documentos devolvidos pela consulta de uma chave
func (s *Syncer) ImportByKey(ctx context.Context, companyID int64, accessKey string) Result {
	log := s.log.With("company_id", companyID, "run_id", uuid.New().String(), "sync_type", fiscal.SyncByKey)
	res := Result{CompanyID: companyID}

	if err := nfekey.Validate(accessKey); err != nil {
		res.Status = fiscal.RunError
		res.Error = err.Error()
		return res
	}

	release, err := s.acquire(ctx, companyID)
	if err != nil {
		res.Status = fiscal.RunError
		res.Error = err.Error()
		return res
	}
	defer release()

	sess, err := s.opener.Open(ctx, companyID)
	if err != nil {
		res.Status = fiscal.RunError
		res.Error = certificateMessage(err)
		log.Error("falha ao abrir sessão SEFAZ", "error", err)
		return res
	}
	defer sess.Close()

	runLog, err := fiscal.NewSyncLog(companyID, fiscal.SyncByKey)
	if err != nil {
		res.Status = fiscal.RunError
		res.Error = err.Error()
		return res
	}
	if err := s.logs.Create(ctx, runLog); err != nil {
		log.Error("falha ao criar log de sincronização", "error", err)
		runLog = nil
	}

	resp, err := sess.Distribution.QueryByKey(ctx, accessKey)
	switch {
	case err != nil:
		res.Status = fiscal.RunError
		res.Error = fmt.Sprintf("falha na consulta por chave: %v", err)
	case resp.Kind == dfe.KindApplicationError:
		res.Status = fiscal.RunError
		res.Error = fmt.Sprintf("cStat %s: %s", resp.CStat, resp.Motivo)
	default:
		res.Status = fiscal.RunSuccess
		res.DocsFound = len(resp.Documents)
		for _, d := range resp.Documents {
			outcome, err := s.ingester.Ingest(ctx, companyID, sess.Certificate.CNPJ, d)
			if err != nil {
				log.Error("falha ao processar documento", "chave", d.AccessKey, "error", err)
				continue
			}
			if outcome.Imported() {
				res.DocsImported++
			}
		}
	}

	log.Info("importação por chave concluída", "chave", accessKey, "status", res.Status, "docs_imported", res.DocsImported)
	if runLog != nil {
		runLog.Finish(res.Status, res.DocsFound, res.DocsImported, res.Error)
		if err := s.logs.Update(ctx, runLog); err != nil {
			log.Error("falha ao finalizar log de sincronização", "error", err)
		}
	}
	return res
}

// acquire obtém o lock da empresa; a função retornada o libera
func (s *Syncer) acquire(ctx context.Context, companyID int64) (func(), error) {
	lk, err := s.locker.Obtain(ctx, lock.CompanyKey(companyID))
	if errors.Is(err, lock.ErrBusy) {
		return nil, errors.New(msgBusy)
	}
	if err != nil {
		return nil, err
	}
	return func() {
		// o ctx da execução pode já estar cancelado
		rctx, cancel := context.WithTimeout(context.Background(), releaseLockTimeout)
		defer cancel()
		if err := lk.Release(rctx); err != nil {
			s.log.Warn("falha ao liberar lock", "company_id", companyID, "error", err)
		}
	}, nil
}

func (s *Syncer) loadState(ctx context.Context, companyID int64) (*fiscal.SyncState, error) {
	state, err := s.states.Get(ctx, companyID)
	if errors.Is(err, fiscal.ErrNotFound) {
		return fiscal.NewSyncState(companyID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("falha ao carregar estado de sincronização: %w", err)
	}
	return state, nil
}

func (s *Syncer) lastKnownNSU(ctx context.Context, companyID int64, state *fiscal.SyncState) string {
	if stored, err := s.states.Get(ctx, companyID); err == nil {
		return stored.LastNSU
	}
	if state != nil {
		return state.LastNSU
	}
	return "0"
}

func certificateMessage(err error) string {
	switch {
	case errors.Is(err, certificate.ErrNotFound), errors.Is(err, certificate.ErrInactive):
		return msgCertificate
	case errors.Is(err, certificate.ErrExpired):
		return "Certificado expirado"
	case errors.Is(err, certificate.ErrUndecryptable):
		return "Não foi possível descriptografar o certificado"
	}
	return fmt.Sprintf("falha ao preparar certificado: %v", err)
}
