package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hugohenrick/dfe-sync/internal/config"
	"github.com/hugohenrick/dfe-sync/internal/infrastructure/database"
	"github.com/hugohenrick/dfe-sync/pkg/logger"
)

type flags struct {
	once      bool
	companyID int64
	accessKey string
	resolve   bool
	migrate   bool
	certPath  string
}

func main() {
	var f flags
	flag.BoolVar(&f.once, "once", false, "executa uma única passada e encerra")
	flag.Int64Var(&f.companyID, "company", 0, "limita a passada a uma empresa")
	flag.StringVar(&f.accessKey, "key", "", "importa uma única chave de acesso (exige -company)")
	flag.BoolVar(&f.resolve, "resolve", false, "após sincronizar, tenta resolver os documentos em resumo")
	flag.BoolVar(&f.migrate, "migrate", false, "aplica as migrações antes de iniciar")
	flag.StringVar(&f.certPath, "cert", "", "cadastra o .pfx informado para a empresa (senha em DFE_CERT_PASSWORD) e encerra")
	flag.Parse()

	// Carregar variáveis de ambiente
	if err := godotenv.Load(); err != nil {
		log.Printf("Aviso: Arquivo .env não encontrado: %v", err)
	}

	if err := run(f); err != nil {
		log.Printf("Erro: %v", err)
		os.Exit(1)
	}
}

// run concentra o ciclo de vida do worker para que os defers executem antes do exit
func run(f flags) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	lg := logger.NewLogger(cfg.LogLevel)

	if f.migrate {
		version, err := database.RunMigrations(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		lg.Info("migrações aplicadas", "version", version)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer app.Close()

	if f.certPath != "" {
		return app.ImportCertificate(ctx, f.companyID, f.certPath, os.Getenv("DFE_CERT_PASSWORD"))
	}

	interval := cfg.SyncInterval
	if f.once || f.accessKey != "" {
		interval = 0
	}

	opts := RunOptions{CompanyID: f.companyID, AccessKey: f.accessKey, Resolve: f.resolve}
	if err := app.Run(ctx, interval, opts); err != nil {
		lg.Error("worker finalizado com erro", "error", err)
		return err
	}
	return nil
}
