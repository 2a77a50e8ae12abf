// Package config loads the stategate configuration from file and
// environment and owns the global logger setup.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/reconai/stategate/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Backend BackendConfig `yaml:"backend" mapstructure:"backend"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Refresh RefreshConfig `yaml:"refresh" mapstructure:"refresh"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// BackendConfig points at the ReconAI backend's envelope endpoints.
type BackendConfig struct {
	BaseURL     string          `yaml:"base_url" mapstructure:"base_url"`
	APIKey      string          `yaml:"api_key" mapstructure:"api_key"`
	TimeoutSecs int             `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Endpoints   EndpointConfig  `yaml:"endpoints" mapstructure:"endpoints"`
	Retry       RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Breaker     BreakerConfig   `yaml:"breaker" mapstructure:"breaker"`
}

// EndpointConfig overrides per-domain endpoint paths; empty values keep
// the client defaults.
type EndpointConfig struct {
	Core         string `yaml:"core" mapstructure:"core"`
	CFO          string `yaml:"cfo" mapstructure:"cfo"`
	Intelligence string `yaml:"intelligence" mapstructure:"intelligence"`
}

// RetryConfig bounds retries of transient fetch failures.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
}

// BreakerConfig tunes the per-domain circuit breaker.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ServerConfig configures the local state API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// StoreConfig configures the fetch audit store.
type StoreConfig struct {
	Driver string           `yaml:"driver" mapstructure:"driver"`
	DSN    string           `yaml:"dsn" mapstructure:"dsn"`
	Pool   store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// RefreshConfig rate-limits manual panel refreshes.
type RefreshConfig struct {
	MinIntervalSecs int `yaml:"min_interval_secs" mapstructure:"min_interval_secs"`
	Burst           int `yaml:"burst" mapstructure:"burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Timeout returns the backend fetch deadline.
func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSecs) * time.Second
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("STATEGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("backend.base_url", "http://localhost:9000")
	v.SetDefault("backend.timeout_secs", 15)
	v.SetDefault("backend.retry.max_attempts", 3)
	v.SetDefault("backend.retry.initial_backoff_ms", 500)
	v.SetDefault("backend.breaker.failure_threshold", 5)
	v.SetDefault("backend.breaker.reset_timeout_secs", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "stategate.db")
	v.SetDefault("refresh.min_interval_secs", 5)
	v.SetDefault("refresh.burst", 3)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
