package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment define o ambiente da SEFAZ
type Environment string

const (
	Production   Environment = "production"
	Homologation Environment = "homologation"
)

// Config reúne as configurações do worker de DF-e
type Config struct {
	Environment Environment
	LogLevel    string

	DatabaseURL string

	StorageDriver      string
	GCSBucket          string
	GCSCredentialsJSON string
	StorageLocalDir    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LockTTL       time.Duration

	CertMasterKey string

	SefazTimeout  time.Duration
	SefazCADir    string
	SefazDistURLs []string

	ReblockCooldown time.Duration
	PollAttempts    int
	PollDelay       time.Duration
	ResolveLimit    int
	SyncInterval    time.Duration
	Workers         int
}

// Load monta a configuração a partir das variáveis de ambiente
func Load() (*Config, error) {
	cfg := &Config{
		Environment:        Environment(strings.ToLower(getEnv("NFE_AMBIENTE", string(Homologation)))),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        ResolveDatabaseURL(),
		StorageDriver:      strings.ToLower(getEnv("STORAGE_DRIVER", "local")),
		GCSBucket:          os.Getenv("GCS_BUCKET"),
		GCSCredentialsJSON: os.Getenv("GCS_CREDENTIALS_JSON"),
		StorageLocalDir:    getEnv("STORAGE_LOCAL_DIR", "./data"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		CertMasterKey:      os.Getenv("CERT_MASTER_KEY"),
		SefazCADir:         os.Getenv("SEFAZ_CA_DIR"),
		SefazDistURLs:      splitList(os.Getenv("SEFAZ_DIST_URLS")),
	}

	var err error
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.LockTTL, err = getDuration("DFE_LOCK_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SefazTimeout, err = getDuration("SEFAZ_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.ReblockCooldown, err = getDuration("DFE_REBLOCK_COOLDOWN", time.Hour); err != nil {
		return nil, err
	}
	if cfg.PollAttempts, err = getInt("DFE_POLL_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.PollDelay, err = getDuration("DFE_POLL_DELAY", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.ResolveLimit, err = getInt("DFE_RESOLVE_LIMIT", 50); err != nil {
		return nil, err
	}
	if cfg.SyncInterval, err = getDuration("DFE_SYNC_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.Workers, err = getInt("DFE_WORKERS", 4); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate verifica a consistência da configuração
func (c *Config) Validate() error {
	switch c.Environment {
	case Production, Homologation:
	default:
		return fmt.Errorf("NFE_AMBIENTE inválido: %q", c.Environment)
	}

	switch c.StorageDriver {
	case "gcs":
		if c.GCSBucket == "" {
			return errors.New("GCS_BUCKET é obrigatório para o driver gcs")
		}
	case "local":
		if c.StorageLocalDir == "" {
			return errors.New("STORAGE_LOCAL_DIR é obrigatório para o driver local")
		}
	default:
		return fmt.Errorf("STORAGE_DRIVER inválido: %q", c.StorageDriver)
	}

	if c.CertMasterKey == "" {
		return errors.New("CERT_MASTER_KEY não configurada")
	}
	if c.PollAttempts < 0 {
		return errors.New("DFE_POLL_ATTEMPTS não pode ser negativo")
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	return nil
}

// IsProduction indica se o ambiente é de produção
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// ResolveDatabaseURL usa DATABASE_URL ou monta a URL a partir de DB_HOST, DB_PORT e demais variáveis
func ResolveDatabaseURL() string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}
	// formato URL para servir tanto ao pgxpool quanto ao golang-migrate
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(getEnv("DB_USER", "postgres"), getEnv("DB_PASSWORD", "postgres")),
		Host:     getEnv("DB_HOST", "localhost") + ":" + getEnv("DB_PORT", "5432"),
		Path:     "/" + getEnv("DB_NAME", "dfe_sync"),
		RawQuery: "sslmode=" + getEnv("DB_SSL_MODE", "disable"),
	}
	return u.String()
}

// getEnv retorna o valor de uma variável de ambiente ou um valor padrão
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s inválido: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s inválido: %w", key, err)
	}
	return d, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
