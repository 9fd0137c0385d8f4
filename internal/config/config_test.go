package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRES_HOST", "db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "postgres://accord:accord_pass@db:5432/accord?sslmode=disable", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:8080", cfg.ServerAddr)
	assert.Equal(t, "X-User-ID", cfg.IdentityHeader)
	assert.Equal(t, 5, cfg.MaxCounterOptions)
	assert.Equal(t, 3, cfg.MaxTxRetries)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@h/d")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/accord.db")
	t.Setenv("MAX_PARTICIPANTS", "12")
	t.Setenv("SWEEP_INTERVAL", "15s")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@h/d", cfg.DatabaseURL)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, "/tmp/accord.db", cfg.SQLitePath)
	assert.Equal(t, 12, cfg.MaxParticipants)
	assert.Equal(t, 15*time.Second, cfg.SweepInterval)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown driver", key: "STORE_DRIVER", value: "mysql"},
		{name: "no participants", key: "MAX_PARTICIPANTS", value: "1"},
		{name: "negative retries", key: "MAX_TX_RETRIES", value: "-1"},
		{name: "zero batch", key: "SWEEP_BATCH_SIZE", value: "0"},
		{name: "malformed duration", key: "SWEEP_INTERVAL", value: "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
		})
	}
}
