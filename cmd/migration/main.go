package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/hugohenrick/dfe-sync/internal/config"
	"github.com/hugohenrick/dfe-sync/internal/infrastructure/database"
)

func main() {
	// Carregar variáveis de ambiente
	if err := godotenv.Load(); err != nil {
		log.Printf("Aviso: Arquivo .env não encontrado: %v", err)
	}

	// Executar as migrações
	version, err := database.RunMigrations(config.ResolveDatabaseURL())
	if err != nil {
		log.Fatalf("Erro ao executar migrações: %v", err)
	}

	log.Printf("Migrações executadas com sucesso! Versão atual: %d", version)
}
