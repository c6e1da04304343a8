package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Backend selects the document store implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendMongo    Backend = "mongo"
	BackendPostgres Backend = "postgres"
)

type Config struct {
	App struct {
		Name string `envconfig:"APP_NAME" default:"Till"`
		Port int    `envconfig:"PORT" default:"8080"`
	}

	Store struct {
		Backend    Backend `envconfig:"STORE_BACKEND" default:"memory"`
		TenantRoot string  `envconfig:"TENANT_ROOT" default:"businesses"`
		BatchSize  int     `envconfig:"BATCH_SIZE" default:"450"`
		// Keep reading the flat collections until every tenant has been migrated.
		LegacyReads bool `envconfig:"LEGACY_READS" default:"true"`
	}

	Mongo struct {
		URI      string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017/?replicaSet=rs0"`
		Database string `envconfig:"MONGO_DB" default:"till"`
	}

	DB struct {
		Host     string `envconfig:"DB_HOST" default:"localhost"`
		Port     int    `envconfig:"DB_PORT" default:"5432"`
		User     string `envconfig:"DB_USER" default:"postgres"`
		Password string `envconfig:"DB_PASSWORD" default:""`
		Name     string `envconfig:"DB_NAME" default:"till"`
	}

	Log struct {
		Level      string `envconfig:"LOG_LEVEL" default:"info"`
		File       string `envconfig:"LOG_FILE"`
		MaxSizeMB  int    `envconfig:"LOG_MAX_SIZE_MB" default:"50"`
		MaxBackups int    `envconfig:"LOG_MAX_BACKUPS" default:"3"`
	}

	Auth struct {
		JWTSecret string `envconfig:"JWT_SECRET"`
	}

	CORS struct {
		Origins []string `envconfig:"CORS_ORIGINS" default:"*"`
	}

	Server struct {
		Timeout time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
	}

	// Console is the tenant the operator console attaches to.
	Console struct {
		TenantID string `envconfig:"TENANT_ID"`
	}
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name)
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	switch cfg.Store.Backend {
	case BackendMemory, BackendMongo, BackendPostgres:
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	return &cfg, nil
}
