package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Lifecycle  LifecycleConfig  `yaml:"lifecycle" mapstructure:"lifecycle"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Paging     PagingConfig     `yaml:"paging" mapstructure:"paging"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" mapstructure:"embeddings"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LifecycleConfig configures the cleanup sweep.
type LifecycleConfig struct {
	URLDenylist  []string `yaml:"url_denylist" mapstructure:"url_denylist"`
	DetailsLimit int      `yaml:"details_limit" mapstructure:"details_limit"`
	// Timezone names the IANA zone used to decide which calendar day "today" is.
	Timezone string `yaml:"timezone" mapstructure:"timezone"`
}

// Location resolves Timezone, falling back to UTC when unset.
func (c LifecycleConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, eris.Wrapf(err, "config: load timezone %q", c.Timezone)
	}
	return loc, nil
}

// IngestConfig configures lead ingestion.
type IngestConfig struct {
	DefaultRegion string `yaml:"default_region" mapstructure:"default_region"`
	DetailsLimit  int    `yaml:"details_limit" mapstructure:"details_limit"`
}

// PagingConfig configures keyset pagination.
type PagingConfig struct {
	DefaultLimit int `yaml:"default_limit" mapstructure:"default_limit"`
	MaxLimit     int `yaml:"max_limit" mapstructure:"max_limit"`
}

// EmbeddingsConfig configures the embedding clear job.
type EmbeddingsConfig struct {
	BatchSize            int `yaml:"batch_size" mapstructure:"batch_size"`
	MaxBatches           int `yaml:"max_batches" mapstructure:"max_batches"`
	ExecutionCeilingSecs int `yaml:"execution_ceiling_secs" mapstructure:"execution_ceiling_secs"`
	SafetyMarginSecs     int `yaml:"safety_margin_secs" mapstructure:"safety_margin_secs"`
}

// AnthropicConfig holds Anthropic API settings for lead hunting.
type AnthropicConfig struct {
	Key               string `yaml:"key" mapstructure:"key"`
	Model             string `yaml:"model" mapstructure:"model"`
	MaxTokens         int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerMinute int    `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// RetryConfig configures retries of external calls.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("lifecycle.url_denylist", []string{})
	v.SetDefault("lifecycle.details_limit", 100)
	v.SetDefault("lifecycle.timezone", "UTC")
	v.SetDefault("ingest.default_region", "Texas")
	v.SetDefault("ingest.details_limit", 100)
	v.SetDefault("paging.default_limit", 50)
	v.SetDefault("paging.max_limit", 500)
	v.SetDefault("embeddings.batch_size", 100)
	v.SetDefault("embeddings.max_batches", 50)
	v.SetDefault("embeddings.execution_ceiling_secs", 600)
	v.SetDefault("embeddings.safety_margin_secs", 60)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("anthropic.requests_per_minute", 50)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
	case "sqlite":
	default:
		errs = append(errs, "store.driver must be postgres or sqlite")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "hunt":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
		if c.Anthropic.RequestsPerMinute <= 0 {
			errs = append(errs, "anthropic.requests_per_minute must be > 0")
		}
	case "cli":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Paging.MaxLimit < 1 {
		errs = append(errs, "paging.max_limit must be >= 1")
	}
	if c.Paging.DefaultLimit < 1 || c.Paging.DefaultLimit > c.Paging.MaxLimit {
		errs = append(errs, "paging.default_limit must be between 1 and paging.max_limit")
	}
	if c.Embeddings.SafetyMarginSecs >= c.Embeddings.ExecutionCeilingSecs {
		errs = append(errs, "embeddings.safety_margin_secs must be below execution_ceiling_secs")
	}
	if _, err := c.Lifecycle.Location(); err != nil {
		errs = append(errs, "lifecycle.timezone is not a known zone")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
