package config

import (
	"fmt"
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
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Scanner    ScannerConfig    `yaml:"scanner" mapstructure:"scanner"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite or postgres
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds vision model settings.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	CacheTTL    string  `yaml:"cache_ttl" mapstructure:"cache_ttl"` // prompt cache: "5m" or "1h"
}

// ScannerConfig configures label scanning and equipment analysis.
type ScannerConfig struct {
	ConfidenceThreshold  float64     `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	PersistLowConfidence bool        `yaml:"persist_low_confidence" mapstructure:"persist_low_confidence"`
	MaxImageBytes        int64       `yaml:"max_image_bytes" mapstructure:"max_image_bytes"`
	MaxImages            int         `yaml:"max_images" mapstructure:"max_images"`
	DedupeTTLSecs        int         `yaml:"dedupe_ttl_secs" mapstructure:"dedupe_ttl_secs"`
	TimeoutSecs          int         `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retry                RetryConfig `yaml:"retry" mapstructure:"retry"`
	BreakerThreshold     int         `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs  int         `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// DedupeTTL returns the duplicate-submission window.
func (c ScannerConfig) DedupeTTL() time.Duration {
	return time.Duration(c.DedupeTTLSecs) * time.Second
}

// Timeout returns the per-call deadline for the vision model.
func (c ScannerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// RetryConfig controls retries of vision model calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// BatchConfig configures the batch scan command.
type BatchConfig struct {
	MaxConcurrentScans int `yaml:"max_concurrent_scans" mapstructure:"max_concurrent_scans"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port            int      `yaml:"port" mapstructure:"port"`
	CORSOrigins     []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min" mapstructure:"rate_limit_per_min"` // model-backed endpoints, per client
	RateLimitBurst  int      `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
	MaxUploadBytes  int64    `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
}

// MonitoringConfig configures background alerting on report outcomes.
type MonitoringConfig struct {
	Enabled                bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL             string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs      int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours    int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold   float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	LowConfidenceThreshold float64 `yaml:"low_confidence_rate_threshold" mapstructure:"low_confidence_rate_threshold"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HVAC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key needs one so AutomaticEnv picks it up on Unmarshal.
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "hvac-scanner.db")
	v.SetDefault("store.max_conns", 0)
	v.SetDefault("store.min_conns", 0)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.temperature", 0.0)
	v.SetDefault("anthropic.cache_ttl", "1h")
	v.SetDefault("scanner.confidence_threshold", 0.7)
	v.SetDefault("scanner.persist_low_confidence", false)
	v.SetDefault("scanner.max_image_bytes", 5*1024*1024)
	v.SetDefault("scanner.max_images", 5)
	v.SetDefault("scanner.dedupe_ttl_secs", 600)
	v.SetDefault("scanner.timeout_secs", 90)
	v.SetDefault("scanner.retry.max_attempts", 3)
	v.SetDefault("scanner.retry.initial_backoff_ms", 1000)
	v.SetDefault("scanner.retry.max_backoff_ms", 20000)
	v.SetDefault("scanner.retry.multiplier", 2.0)
	v.SetDefault("scanner.retry.jitter_fraction", 0.2)
	v.SetDefault("scanner.breaker_threshold", 5)
	v.SetDefault("scanner.breaker_cooldown_secs", 30)
	v.SetDefault("batch.max_concurrent_scans", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit_per_min", 20)
	v.SetDefault("server.rate_limit_burst", 5)
	v.SetDefault("server.max_upload_bytes", 32*1024*1024)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.low_confidence_rate_threshold", 0.5)
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

// Validate checks the settings a command mode depends on. Modes: "serve",
// "scan" (model calls only), "store" (database-only commands).
func (c *Config) Validate(mode string) error {
	var problems []string
	require := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	checkStore := func() {
		require(c.Store.Driver == "sqlite" || c.Store.Driver == "postgres",
			"store.driver must be sqlite or postgres, got %q", c.Store.Driver)
		require(c.Store.DatabaseURL != "", "store.database_url is required")
	}
	checkModel := func() {
		require(c.Anthropic.Key != "", "anthropic.key is required")
		require(c.Anthropic.Model != "", "anthropic.model is required")
		require(c.Anthropic.MaxTokens > 0, "anthropic.max_tokens must be > 0")
		require(c.Scanner.ConfidenceThreshold >= 0 && c.Scanner.ConfidenceThreshold <= 1,
			"scanner.confidence_threshold must be between 0 and 1")
		require(c.Scanner.MaxImageBytes > 0, "scanner.max_image_bytes must be > 0")
		require(c.Scanner.MaxImages > 0, "scanner.max_images must be > 0")
	}

	switch mode {
	case "serve":
		checkStore()
		checkModel()
		require(c.Server.Port > 0, "server.port must be > 0")
		require(c.Server.RateLimitPerMin > 0, "server.rate_limit_per_min must be > 0")
		if c.Monitoring.Enabled {
			require(c.Monitoring.WebhookURL != "", "monitoring.webhook_url is required when monitoring is enabled")
		}
	case "scan":
		checkModel()
		require(c.Batch.MaxConcurrentScans >= 1 && c.Batch.MaxConcurrentScans <= 32,
			"batch.max_concurrent_scans must be between 1 and 32")
	case "process":
		checkStore()
		checkModel()
	case "store":
		checkStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
