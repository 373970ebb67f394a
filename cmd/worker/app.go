package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/hugohenrick/dfe-sync/internal/adapter/repository"
	"github.com/hugohenrick/dfe-sync/internal/config"
	"github.com/hugohenrick/dfe-sync/internal/domain/certificate"
	"github.com/hugohenrick/dfe-sync/internal/domain/fiscal"
	"github.com/hugohenrick/dfe-sync/internal/infrastructure/database"
	"github.com/hugohenrick/dfe-sync/internal/infrastructure/lock"
	"github.com/hugohenrick/dfe-sync/internal/infrastructure/storage"
	"github.com/hugohenrick/dfe-sync/internal/sefaz"
	"github.com/hugohenrick/dfe-sync/internal/sefaz/soap"
	certservice "github.com/hugohenrick/dfe-sync/internal/service/certificate"
	"github.com/hugohenrick/dfe-sync/internal/service/document"
	"github.com/hugohenrick/dfe-sync/internal/service/manifestation"
	"github.com/hugohenrick/dfe-sync/internal/service/session"
	"github.com/hugohenrick/dfe-sync/internal/service/syncer"
	"github.com/hugohenrick/dfe-sync/pkg/crypto"
	"github.com/hugohenrick/dfe-sync/pkg/logger"
)

// App representa o worker e suas dependências
type App struct {
	cfg           *config.Config
	log           logger.Logger
	pool          *pgxpool.Pool
	redis         *redis.Client
	closers       []func() error
	certRepo      certificate.Repository
	certificates  *certservice.Service
	syncer        *syncer.Syncer
	manifestation *manifestation.Service
}

// RunOptions seleciona o que uma passada executa
type RunOptions struct {
	CompanyID int64
	AccessKey string
	Resolve   bool
}

// NewApp cria uma nova instância do worker
func NewApp(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	app := &App{cfg: cfg, log: log}

	// Configurar banco de dados
	pc := database.DefaultPoolConfig()
	if n := int32(cfg.Workers * 2); n > pc.MaxConns {
		pc.MaxConns = n
	}
	pool, err := database.NewPostgresDB(ctx, cfg.DatabaseURL, pc)
	if err != nil {
		return nil, err
	}
	app.pool = pool

	blobs, err := app.newStorage(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	locker, err := app.newLocker(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	cipher, err := crypto.NewService(cfg.CertMasterKey)
	if err != nil {
		app.Close()
		return nil, err
	}

	// Criar repositórios
	app.certRepo = repository.NewCertificateRepository(pool)
	docs := repository.NewDocumentRepository(pool)
	states := repository.NewStateRepository(pool)
	syncLogs := repository.NewSyncLogRepository(pool)
	manifests := repository.NewManifestationRepository(pool)

	// Criar serviços
	app.certificates = certservice.NewService(app.certRepo, blobs, cipher, log.With("component", "certificate"))

	env := sefaz.Homologation
	if cfg.IsProduction() {
		env = sefaz.Production
	}
	opener := session.NewFactory(app.certificates, env, soap.Options{
		Timeout: cfg.SefazTimeout,
		CADir:   cfg.SefazCADir,
	}, cfg.SefazDistURLs, log.With("component", "sefaz"))

	ingester := document.NewIngester(docs, blobs, log.With("component", "document"))

	app.syncer = syncer.NewSyncer(opener, states, syncLogs, ingester, locker, log.With("component", "syncer"), syncer.Options{
		ReblockCooldown: cfg.ReblockCooldown,
	})
	app.manifestation = manifestation.NewService(opener, docs, manifests, ingester, locker, log.With("component", "manifestation"), manifestation.Options{
		PollAttempts: cfg.PollAttempts,
		PollDelay:    cfg.PollDelay,
		ResolveLimit: cfg.ResolveLimit,
	})

	log.Info("worker configurado",
		"ambiente", env,
		"storage", cfg.StorageDriver,
		"redis", cfg.RedisAddr != "",
		"workers", cfg.Workers,
	)
	return app, nil
}

func (a *App) newStorage(ctx context.Context) (storage.ObjectStorage, error) {
	switch a.cfg.StorageDriver {
	case "gcs":
		s, err := storage.NewGCSStorage(ctx, a.cfg.GCSBucket, a.cfg.GCSCredentialsJSON)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	default:
		s, err := storage.NewLocalStorage(a.cfg.StorageLocalDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func (a *App) newLocker(ctx context.Context) (lock.Locker, error) {
	if a.cfg.RedisAddr == "" {
		a.log.Warn("REDIS_ADDR não configurado, usando lock em memória")
		return lock.NewMemoryLocker(), nil
	}
	rdb, err := lock.NewRedisClient(ctx, a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB)
	if err != nil {
		return nil, err
	}
	a.redis = rdb
	return lock.NewRedisLocker(rdb, a.cfg.LockTTL), nil
}

// ImportCertificate cadastra o .pfx em path como certificado ativo da empresa
func (a *App) ImportCertificate(ctx context.Context, companyID int64, path, password string) error {
	if companyID == 0 {
		return errors.New("-cert exige -company")
	}
	pfx, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("falha ao ler certificado: %w", err)
	}
	cert, err := a.certificates.Register(ctx, companyID, pfx, password)
	if err != nil {
		return fmt.Errorf("certificado rejeitado: %w", err)
	}
	a.log.Info("certificado importado", "company_id", companyID, "cnpj", cert.CNPJ, "valid_to", cert.ValidTo)
	return nil
}

// Run executa uma passada imediata e, se every > 0, repete até o ctx ser cancelado
func (a *App) Run(ctx context.Context, every time.Duration, opts RunOptions) error {
	if err := a.RunOnce(ctx, opts); err != nil {
		return err
	}
	if every <= 0 {
		return nil
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.log.Info("worker encerrado")
			return nil
		case <-ticker.C:
			if err := a.RunOnce(ctx, opts); err != nil {
				a.log.Error("falha na passada de sincronização", "error", err)
			}
		}
	}
}

// RunOnce verifica certificados vencidos e sincroniza as empresas selecionadas
func (a *App) RunOnce(ctx context.Context, opts RunOptions) error {
	if n, err := a.certificates.CheckExpired(ctx); err != nil {
		a.log.Error("falha ao verificar certificados expirados", "error", err)
	} else if n > 0 {
		a.log.Info("certificados marcados como expirados", "total", n)
	}

	if opts.AccessKey != "" {
		if opts.CompanyID == 0 {
			return errors.New("-key exige -company")
		}
		res := a.syncer.ImportByKey(ctx, opts.CompanyID, opts.AccessKey)
		a.log.Info("importação por chave", "company_id", res.CompanyID, "status", res.Status,
			"docs_found", res.DocsFound, "docs_imported", res.DocsImported, "error", res.Error)
		return nil
	}

	companies := []int64{opts.CompanyID}
	syncType := fiscal.SyncManual
	if opts.CompanyID == 0 {
		ids, err := a.certRepo.ListActiveCompanies(ctx)
		if err != nil {
			return err
		}
		companies = ids
		syncType = fiscal.SyncIncremental
	}

	start := time.Now()
	var g errgroup.Group
	g.SetLimit(a.cfg.Workers)
	for _, id := range companies {
		id := id
		g.Go(func() error {
			res := a.syncer.SyncCompany(ctx, id, syncType)
			a.log.Info("sincronização", "company_id", id, "status", res.Status,
				"docs_found", res.DocsFound, "docs_imported", res.DocsImported,
				"last_nsu", res.LastNSU, "error", res.Error)

			if opts.Resolve && res.Status != fiscal.RunError {
				r := a.manifestation.ResolveCompany(ctx, id)
				a.log.Info("resolução de resumos", "company_id", id, "attempted", r.Attempted,
					"resolved", r.Resolved, "still_summary", r.StillSummary, "errors", r.Errors)
			}
			return nil
		})
	}
	err := g.Wait()

	a.log.Info("passada concluída", "empresas", len(companies), "duracao", time.Since(start).String())
	return err
}

// Close libera os recursos do worker
func (a *App) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.Warn("falha ao fechar recurso", "error", err)
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
