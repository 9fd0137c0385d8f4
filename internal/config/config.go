package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds service configuration.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`
	Postgres    PostgresConfig

	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
	SQLitePath  string `env:"SQLITE_PATH"  envDefault:"accord.db"`

	ServerAddr     string        `env:"SERVER_ADDR"     envDefault:"0.0.0.0:8080"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	IdentityHeader string        `env:"IDENTITY_HEADER" envDefault:"X-User-ID"`

	RedisURL    string `env:"REDIS_URL"`
	EventStream string `env:"EVENT_STREAM" envDefault:"accord:events"`

	MaxCounterOptions int `env:"MAX_COUNTER_OPTIONS" envDefault:"5"`
	MaxCreateOptions  int `env:"MAX_CREATE_OPTIONS"  envDefault:"10"`
	MaxParticipants   int `env:"MAX_PARTICIPANTS"    envDefault:"50"`
	MaxTxRetries      int `env:"MAX_TX_RETRIES"      envDefault:"3"`

	SweepInterval  time.Duration `env:"SWEEP_INTERVAL"   envDefault:"1m"`
	SweepBatchSize int           `env:"SWEEP_BATCH_SIZE" envDefault:"100"`
}

// PostgresConfig assembles a DSN when DATABASE_URL is unset.
type PostgresConfig struct {
	User     string `env:"POSTGRES_USER"     envDefault:"accord"`
	Password string `env:"POSTGRES_PASSWORD" envDefault:"accord_pass"`
	DB       string `env:"POSTGRES_DB"       envDefault:"accord"`
	Host     string `env:"POSTGRES_HOST"     envDefault:"localhost"`
	Port     string `env:"POSTGRES_PORT"     envDefault:"5432"`
	SSLMode  string `env:"DATABASE_SSLMODE"  envDefault:"disable"`
}

func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, p.Port, p.DB, p.SSLMode)
}

// Load reads configuration from environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = cfg.Postgres.DSN()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.StoreDriver)
	}
	if c.StoreDriver == DriverSQLite && c.SQLitePath == "" {
		return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
	}
	if c.IdentityHeader == "" {
		return fmt.Errorf("IDENTITY_HEADER must not be empty")
	}
	if c.MaxCounterOptions < 1 || c.MaxCreateOptions < 1 {
		return fmt.Errorf("option limits must be positive")
	}
	if c.MaxParticipants < 2 {
		return fmt.Errorf("MAX_PARTICIPANTS must allow an organizer and one invitee")
	}
	if c.MaxTxRetries < 0 {
		return fmt.Errorf("MAX_TX_RETRIES must not be negative")
	}
	if c.SweepInterval <= 0 || c.SweepBatchSize < 1 {
		return fmt.Errorf("sweep interval and batch size must be positive")
	}
	return nil
}
