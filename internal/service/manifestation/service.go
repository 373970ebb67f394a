// Package manifestation resolve NF-e que só existem como resumo: tenta obter o
// procNFe, manifesta ciência da operação e reconsulta por um número fixo de vezes.
package manifestation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hugohenrick/dfe-sync/internal/domain/fiscal"
	"github.com/hugohenrick/dfe-sync/internal/infrastructure/lock"
	"github.com/hugohenrick/dfe-sync/internal/sefaz/dfe"
	"github.com/hugohenrick/dfe-sync/internal/sefaz/evento"
	"github.com/hugohenrick/dfe-sync/internal/service/document"
	"github.com/hugohenrick/dfe-sync/internal/service/session"
	"github.com/hugohenrick/dfe-sync/pkg/logger"
)

// DefaultAcceptedCodes são os cStat que contam como manifestação aceita
var DefaultAcceptedCodes = []int{evento.CStatRegistered, evento.CStatBatchProcessed}

const (
	defaultPollAttempts = 3
	defaultPollDelay    = 2 * time.Second
	defaultResolveLimit = 50

	msgStillSummary = "Ainda não retornou procNFe"
)

// Status é o desfecho da resolução de uma chave
type Status string

const (
	StatusFull    Status = "full"
	StatusSummary Status = "summary"
	StatusError   Status = "error"
)

// DocumentResult é o resultado de ResolveDocument
type DocumentResult struct {
	AccessKey     string                      `json:"chave"`
	Status        Status                      `json:"status"`
	Manifestation *fiscal.ManifestationStatus `json:"manifestation_status,omitempty"`
	Error         string                      `json:"error,omitempty"`
}

// CompanyResult agrega a resolução dos resumos de uma empresa
type CompanyResult struct {
	CompanyID    int64  `json:"company_id"`
	Attempted    int    `json:"attempted"`
	Resolved     int    `json:"resolved"`
	StillSummary int    `json:"still_summary"`
	Errors       string `json:"errors,omitempty"`
}

// Options ajusta a resolução. Valores zero usam os padrões.
type Options struct {
	EventType     evento.Type
	AcceptedCodes []int
	PollAttempts  int
	PollDelay     time.Duration
	ResolveLimit  int
}

func (o Options) withDefaults() Options {
	if o.EventType == "" {
		o.EventType = evento.Awareness
	}
	if len(o.AcceptedCodes) == 0 {
		o.AcceptedCodes = DefaultAcceptedCodes
	}
	if o.PollAttempts <= 0 {
		o.PollAttempts = defaultPollAttempts
	}
	if o.PollDelay < 0 {
		o.PollDelay = 0
	} else if o.PollDelay == 0 {
		o.PollDelay = defaultPollDelay
	}
	if o.ResolveLimit <= 0 {
		o.ResolveLimit = defaultResolveLimit
	}
	return o
}

// Service é o orquestrador de manifestação e resolução
type Service struct {
	opener    session.Opener
	docs      fiscal.DocumentRepository
	manifests fiscal.ManifestationRepository
	ingester  *document.Ingester
	locker    lock.Locker
	log       logger.Logger
	opts      Options
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewService cria o serviço de manifestação
func NewService(opener session.Opener, docs fiscal.DocumentRepository, manifests fiscal.ManifestationRepository, ingester *document.Ingester, locker lock.Locker, log logger.Logger, opts Options) *Service {
	return &Service{
		opener:    opener,
		docs:      docs,
		manifests: manifests,
		ingester:  ingester,
		locker:    locker,
		log:       log,
		opts:      opts.withDefaults(),
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// ResolveDocument tenta obter o XML completo de uma chave, manifestando quando necessário
func (s *Service) ResolveDocument(ctx context.Context, companyID int64, accessKey string) DocumentResult {
	res := DocumentResult{AccessKey: accessKey}

	sess, release, err := s.open(ctx, companyID)
	if err != nil {
		res.Status = StatusError
		res.Error = err.Error()
		return res
	}
	defer release()

	return s.resolve(ctx, sess, companyID, accessKey)
}

// ResolveCompany resolve até ResolveLimit documentos em resumo da empresa, em sequência
func (s *Service) ResolveCompany(ctx context.Context, companyID int64) CompanyResult {
	res := CompanyResult{CompanyID: companyID}

	sess, release, err := s.open(ctx, companyID)
	if err != nil {
		res.Errors = err.Error()
		return res
	}
	defer release()

	docs, err := s.docs.ListSummaries(ctx, companyID, s.opts.ResolveLimit)
	if err != nil {
		res.Errors = fmt.Sprintf("falha ao listar resumos: %v", err)
		return res
	}

	var errs []string
	for _, doc := range docs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err().Error())
			break
		}
		res.Attempted++
		out := s.resolve(ctx, sess, companyID, doc.AccessKey)
		switch out.Status {
		case StatusFull:
			res.Resolved++
		case StatusError:
			errs = append(errs, fmt.Sprintf("%s: %s", doc.AccessKey, out.Error))
		}
	}
	res.StillSummary = res.Attempted - res.Resolved
	res.Errors = strings.Join(errs, "; ")

	s.log.Info("resolução de resumos concluída",
		"company_id", companyID,
		"attempted", res.Attempted,
		"resolved", res.Resolved,
		"still_summary", res.StillSummary,
	)
	return res
}

func (s *Service) resolve(ctx context.Context, sess *session.Session, companyID int64, key string) DocumentResult {
	log := s.log.With("company_id", companyID, "chave", key)
	res := DocumentResult{AccessKey: key}

	full, err := s.tryFetchFull(ctx, sess, companyID, key)
	if err != nil {
		res.Status = StatusError
		res.Error = err.Error()
		log.Error("falha na consulta por chave", "error", err)
		return res
	}
	if full {
		log.Info("XML completo já disponível")
		res.Status = StatusFull
		return res
	}

	m, err := s.manifests.RegisterAttempt(ctx, companyID, key, string(s.opts.EventType), s.now())
	if err != nil {
		res.Status = StatusError
		res.Error = fmt.Sprintf("falha ao registrar manifestação: %v", err)
		return res
	}

	s.manifest(ctx, log, sess, m)

	for attempt := 1; attempt <= s.opts.PollAttempts; attempt++ {
		if err := s.sleep(ctx, s.opts.PollDelay); err != nil {
			res.Status = StatusError
			res.Error = err.Error()
			return res
		}
		full, err := s.tryFetchFull(ctx, sess, companyID, key)
		if err != nil {
			log.Warn("falha ao reconsultar chave", "attempt", attempt, "error", err)
			continue
		}
		if full {
			log.Info("XML completo obtido após manifestação", "attempt", attempt)
			res.Status = StatusFull
			res.Manifestation = &m.Status
			return res
		}
	}

	m.MarkPending(msgStillSummary)
	if err := s.manifests.Update(ctx, m); err != nil {
		log.Error("falha ao atualizar manifestação", "error", err)
	}
	log.Info("documento continua em resumo", "tentativas", m.Attempts)
	res.Status = StatusSummary
	res.Manifestation = &m.Status
	return res
}

// manifest envia o evento e grava o desfecho. Rejeição da SEFAZ não é erro.
func (s *Service) manifest(ctx context.Context, log logger.Logger, sess *session.Session, m *fiscal.Manifestation) {
	at := s.now()
	result, err := sess.Events.Send(ctx, evento.Event{Type: s.opts.EventType, AccessKey: m.AccessKey, At: at})
	if err != nil {
		log.Error("erro na manifestação", "tp_evento", m.EventType, "error", err)
		m.RecordError(err)
	} else {
		accepted := s.accepted(result)
		motivo := result.Motivo
		if result.Event != nil && result.Event.Motivo != "" {
			motivo = result.Event.Motivo
		}
		m.RecordSent(accepted, result.Protocol(), motivo, at)
		log.Info("manifestação enviada",
			"tp_evento", m.EventType,
			"cstat", result.EventCStat(),
			"accepted", accepted,
			"protocolo", result.Protocol(),
		)
	}

	if err := s.manifests.Update(ctx, m); err != nil {
		log.Error("falha ao atualizar manifestação", "error", err)
	}
}

// accepted olha só o cStat do retEvento; lote sem retEvento fica como enviado
func (s *Service) accepted(r *evento.Result) bool {
	if r.Event == nil {
		return false
	}
	code, err := strconv.Atoi(strings.TrimSpace(r.Event.CStat))
	if err != nil {
		return false
	}
	for _, c := range s.opts.AcceptedCodes {
		if c == code {
			return true
		}
	}
	return false
}

// tryFetchFull consulta a chave e grava o procNFe (true) ou o resNFe (false)
func (s *Service) tryFetchFull(ctx context.Context, sess *session.Session, companyID int64, key string) (bool, error) {
	resp, err := sess.Distribution.QueryByKey(ctx, key)
	if err != nil {
		return false, fmt.Errorf("falha na consulta por chave: %w", err)
	}

	cnpj := sess.Certificate.CNPJ
	if full, ok := resp.FirstOfType(dfe.TypeFull); ok {
		if _, err := s.ingester.Ingest(ctx, companyID, cnpj, withKey(full, key)); err != nil {
			return false, err
		}
		return true, nil
	}
	if summary, ok := resp.FirstOfType(dfe.TypeSummary); ok {
		if _, err := s.ingester.Ingest(ctx, companyID, cnpj, withKey(summary, key)); err != nil {
			return false, err
		}
	}
	return false, nil
}

// open obtém o lock da empresa e abre a sessão; release desfaz os dois
func (s *Service) open(ctx context.Context, companyID int64) (*session.Session, func(), error) {
	lk, err := s.locker.Obtain(ctx, lock.CompanyKey(companyID))
	if errors.Is(err, lock.ErrBusy) {
		return nil, nil, errors.New("resolução já em andamento para a empresa")
	}
	if err != nil {
		return nil, nil, err
	}
	unlock := func() {
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lk.Release(rctx); err != nil {
			s.log.Warn("falha ao liberar lock", "company_id", companyID, "error", err)
		}
	}

	sess, err := s.opener.Open(ctx, companyID)
	if err != nil {
		unlock()
		return nil, nil, fmt.Errorf("falha ao preparar certificado: %w", err)
	}
	return sess, func() {
		sess.Close()
		unlock()
	}, nil
}

func withKey(d dfe.Document, key string) dfe.Document {
	if d.AccessKey == "" {
		d.AccessKey = key
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
