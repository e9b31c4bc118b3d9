package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  dsn: postgres://localhost/fxrates
import:
  fred:
    api_key: test-key
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "0 0 23 * * ?", cfg.Import.Cron)
	assert.Equal(t, "https://api.stlouisfed.org/fred", cfg.Import.Fred.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.FredTimeout())
	assert.Equal(t, 3, cfg.Import.Retry.MaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.RetryDelay())
	assert.Equal(t, int64(300*1024), cfg.Import.Sanity.MaxPayloadBytes)
	assert.Equal(t, 10*time.Second, cfg.Outbox.PollInterval)
	assert.Equal(t, "fxrates", cfg.Redis.Namespace)
	assert.Equal(t, "currency-enabled", cfg.Broker.Stream)
	assert.Equal(t, "fxrates-importers", cfg.Broker.Group)
	assert.Equal(t, 3, cfg.Broker.MaxDeliveries)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFileValuesWin(t *testing.T) {
	path := writeConfig(t, `
http:
  port: 9090
database:
  dsn: postgres://localhost/fxrates
import:
  cron: "0 30 6 * * ?"
  fred:
    api_key: test-key
    timeout_seconds: 10
broker:
  max_deliveries: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "0 30 6 * * ?", cfg.Import.Cron)
	assert.Equal(t, 10*time.Second, cfg.FredTimeout())
	assert.Equal(t, 5, cfg.Broker.MaxDeliveries)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  dsn: postgres://file/db
import:
  fred:
    api_key: file-key
`)

	t.Setenv("PG_DSN", "postgres://env/db")
	t.Setenv("FRED_API_KEY", "env-key")
	t.Setenv("HTTP_PORT", "7070")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/db", cfg.Database.DSN)
	assert.Equal(t, "env-key", cfg.Import.Fred.APIKey)
	assert.Equal(t, 7070, cfg.HTTP.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadMissingFileUsesEnv(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://env/db")
	t.Setenv("FRED_API_KEY", "env-key")

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/db", cfg.Database.DSN)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		cfg.Database.DSN = "postgres://localhost/fxrates"
		cfg.Import.Fred.APIKey = "key"
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "missing_dsn",
			mutate:  func(c *Config) { c.Database.DSN = "" },
			wantErr: "database.dsn",
		},
		{
			name:    "missing_api_key",
			mutate:  func(c *Config) { c.Import.Fred.APIKey = "" },
			wantErr: "api_key",
		},
		{
			name:    "timeout_out_of_range",
			mutate:  func(c *Config) { c.Import.Fred.TimeoutSeconds = 500 },
			wantErr: "timeout_seconds",
		},
		{
			name:    "retry_attempts_out_of_range",
			mutate:  func(c *Config) { c.Import.Retry.MaxAttempts = 11 },
			wantErr: "max_attempts",
		},
		{
			name:    "tolerance_below_one",
			mutate:  func(c *Config) { c.Import.Sanity.Tolerance = 0.5 },
			wantErr: "tolerance",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
