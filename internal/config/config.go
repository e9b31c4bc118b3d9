package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration tree, loaded from YAML with
// environment variable overrides applied afterwards.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Import   ImportConfig   `yaml:"import"`
	Outbox   OutboxConfig   `yaml:"outbox"`
	Broker   BrokerConfig   `yaml:"broker"`
	LogLevel string         `yaml:"log_level"`
}

// HTTPConfig holds API server settings.
type HTTPConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

// RedisConfig holds cache and broker stream settings. Namespace prefixes every
// key the service touches so replicas of other services can share the instance.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	Namespace string `yaml:"namespace"`
	CacheNils bool   `yaml:"cache_nils"`
}

// FredConfig holds upstream provider settings. APIKey is secret and comes from
// the environment in any non-local deployment.
type FredConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// RetryConfig bounds the scheduled import retry schedule.
type RetryConfig struct {
	MaxAttempts  int `yaml:"max_attempts"`
	DelayMinutes int `yaml:"delay_minutes"`
}

// SanityConfig caps incremental import payload sizes.
type SanityConfig struct {
	MaxPayloadBytes     int64   `yaml:"max_payload_bytes"`
	ExpectedBytesPerDay int64   `yaml:"expected_bytes_per_day"`
	Tolerance           float64 `yaml:"tolerance"`
}

// ImportConfig drives the scheduled import pipeline.
type ImportConfig struct {
	Cron            string       `yaml:"cron"`
	ImportOnStartup bool         `yaml:"import_on_startup"`
	Fred            FredConfig   `yaml:"fred"`
	Retry           RetryConfig  `yaml:"retry"`
	Sanity          SanityConfig `yaml:"sanity"`
}

// OutboxConfig drives the outbox poller.
type OutboxConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval"`
	Workers       int           `yaml:"workers"`
	RetentionDays int           `yaml:"retention_days"`
}

// BrokerConfig names the Redis stream used as the currency-enabled topic.
type BrokerConfig struct {
	Stream        string `yaml:"stream"`
	Group         string `yaml:"group"`
	MaxDeliveries int    `yaml:"max_deliveries"`
}

// Load reads the YAML config at path (if it exists), applies env overrides,
// fills defaults, and validates ranges.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PG_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("FRED_BASE_URL"); v != "" {
		cfg.Import.Fred.BaseURL = v
	}
	if v := os.Getenv("FRED_API_KEY"); v != "" {
		cfg.Import.Fred.APIKey = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Port = p
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 10 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}

	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 5 * time.Minute
	}
	if cfg.Database.QueryTimeout == 0 {
		cfg.Database.QueryTimeout = 30 * time.Second
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.Namespace == "" {
		cfg.Redis.Namespace = "fxrates"
	}

	if cfg.Import.Cron == "" {
		cfg.Import.Cron = "0 0 23 * * ?"
	}
	if cfg.Import.Fred.BaseURL == "" {
		cfg.Import.Fred.BaseURL = "https://api.stlouisfed.org/fred"
	}
	if cfg.Import.Fred.TimeoutSeconds == 0 {
		cfg.Import.Fred.TimeoutSeconds = 30
	}
	if cfg.Import.Retry.MaxAttempts == 0 {
		cfg.Import.Retry.MaxAttempts = 3
	}
	if cfg.Import.Retry.DelayMinutes == 0 {
		cfg.Import.Retry.DelayMinutes = 5
	}
	if cfg.Import.Sanity.MaxPayloadBytes == 0 {
		cfg.Import.Sanity.MaxPayloadBytes = 300 * 1024
	}
	if cfg.Import.Sanity.ExpectedBytesPerDay == 0 {
		cfg.Import.Sanity.ExpectedBytesPerDay = 20
	}
	if cfg.Import.Sanity.Tolerance == 0 {
		cfg.Import.Sanity.Tolerance = 4.0
	}

	if cfg.Outbox.PollInterval == 0 {
		cfg.Outbox.PollInterval = 10 * time.Second
	}
	if cfg.Outbox.Workers == 0 {
		cfg.Outbox.Workers = 4
	}
	if cfg.Outbox.RetentionDays == 0 {
		cfg.Outbox.RetentionDays = 30
	}

	if cfg.Broker.Stream == "" {
		cfg.Broker.Stream = "currency-enabled"
	}
	if cfg.Broker.Group == "" {
		cfg.Broker.Group = "fxrates-importers"
	}
	if cfg.Broker.MaxDeliveries == 0 {
		cfg.Broker.MaxDeliveries = 3
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// Validate enforces option ranges.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required (or set PG_DSN)")
	}
	if c.Import.Fred.APIKey == "" {
		return fmt.Errorf("import.fred.api_key is required (or set FRED_API_KEY)")
	}
	if t := c.Import.Fred.TimeoutSeconds; t < 1 || t > 120 {
		return fmt.Errorf("import.fred.timeout_seconds must be in [1,120], got %d", t)
	}
	if a := c.Import.Retry.MaxAttempts; a < 1 || a > 10 {
		return fmt.Errorf("import.retry.max_attempts must be in [1,10], got %d", a)
	}
	if d := c.Import.Retry.DelayMinutes; d < 1 || d > 60 {
		return fmt.Errorf("import.retry.delay_minutes must be in [1,60], got %d", d)
	}
	if c.Import.Sanity.Tolerance < 1 {
		return fmt.Errorf("import.sanity.tolerance must be >= 1, got %v", c.Import.Sanity.Tolerance)
	}
	if c.Outbox.RetentionDays < 0 {
		return fmt.Errorf("outbox.retention_days must be >= 0, got %d", c.Outbox.RetentionDays)
	}
	return nil
}

// FredTimeout returns the per-request observation deadline.
func (c *Config) FredTimeout() time.Duration {
	return time.Duration(c.Import.Fred.TimeoutSeconds) * time.Second
}

// RetryDelay returns the fixed delay between scheduled import attempts.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Import.Retry.DelayMinutes) * time.Minute
}
