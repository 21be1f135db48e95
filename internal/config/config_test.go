package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8085", cfg.Port)
	assert.Equal(t, "refund.state.changed", cfg.KafkaTopic)
	assert.Equal(t, "ledger.transaction.get", cfg.LedgerSubject)
	assert.Equal(t, 5*time.Second, cfg.LedgerTimeout)
	assert.Equal(t, 4, cfg.DispatchWorkers)
	assert.False(t, cfg.IntakeEnabled)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://refunds@localhost/refunds?sslmode=disable")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PORT", "9090")
	t.Setenv("GATEWAY_TIMEOUT", "3s")
	t.Setenv("DISPATCH_MAX_ATTEMPTS", "8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 3*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, 8, cfg.DispatchMaxAttempts)
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("LEDGER_TIMEOUT", "soon")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{
		StorageDriver:       DriverMemory,
		JWTSecret:           "s3cret",
		DispatchWorkers:     1,
		DispatchMaxAttempts: 1,
		ShutdownTimeout:     time.Second,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"postgres without url", func(c *Config) { c.StorageDriver = DriverPostgres }, "DATABASE_URL"},
		{"bolt without path", func(c *Config) { c.StorageDriver = DriverBolt }, "BOLT_PATH"},
		{"unknown driver", func(c *Config) { c.StorageDriver = "mongo" }, "STORAGE_DRIVER"},
		{"no secret", func(c *Config) { c.JWTSecret = "" }, "JWT_SECRET"},
		{"intake without brokers", func(c *Config) { c.IntakeEnabled = true }, "KAFKA_BROKERS"},
		{"no workers", func(c *Config) { c.DispatchWorkers = 0 }, "DISPATCH_WORKERS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
