package config

import (
	"bufio"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Cache     CacheConfig     `mapstructure:"cache"`
	History   HistoryConfig   `mapstructure:"history"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	Environment    string        `mapstructure:"environment"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// PipelineConfig holds the resolution pipeline settings
type PipelineConfig struct {
	AlertThreshold             float64       `mapstructure:"alert_threshold"`
	ExchangeRate               float64       `mapstructure:"exchange_rate"`
	PriceFloor                 float64       `mapstructure:"price_floor"`
	DefaultTolerance           float64       `mapstructure:"default_tolerance"`
	LexicalTolerance           float64       `mapstructure:"lexical_tolerance"`
	ConfirmThreshold           float64       `mapstructure:"confirm_threshold"`
	VisualSampleSize           int           `mapstructure:"visual_sample_size"`
	DegradedRetryMinCandidates int           `mapstructure:"degraded_retry_min_candidates"`
	AdapterTimeout             time.Duration `mapstructure:"adapter_timeout"`
	Concurrency                int           `mapstructure:"concurrency"`
	WindowBefore               int           `mapstructure:"window_before"`
	WindowAfter                int           `mapstructure:"window_after"`
	FuzzyMatching              bool          `mapstructure:"fuzzy_matching"`
	FuzzyEditDistance          int           `mapstructure:"fuzzy_edit_distance"`
	DebugLogging               bool          `mapstructure:"debug_logging"`
}

// AnthropicConfig holds the model API configuration. Without an API key only
// the lexical stage runs.
type AnthropicConfig struct {
	APIKey            string `mapstructure:"api_key"`
	BaseURL           string `mapstructure:"base_url"`
	PrimaryModel      string `mapstructure:"primary_model"`
	DegradedModel     string `mapstructure:"degraded_model"`
	VisionModel       string `mapstructure:"vision_model"`
	MaxTokens         int64  `mapstructure:"max_tokens"`
	VisionMaxTokens   int64  `mapstructure:"vision_max_tokens"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
}

// Enabled reports whether the model-backed stages can run
func (a AnthropicConfig) Enabled() bool {
	return a.APIKey != ""
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	Type            string        `mapstructure:"type"` // "memory" or "sqlite"
	Path            string        `mapstructure:"path"`
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// HistoryConfig holds run history configuration. An empty path disables history.
type HistoryConfig struct {
	Path string `mapstructure:"path"`
}

// CatalogConfig points at the catalog file. An empty path uses the built-in catalog.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "console" or "json"
}

// Load loads configuration from a .env file, environment variables and config files
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads configuration like Load, reading path instead of searching
// the default locations when path is set.
func LoadFile(path string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, eris.Wrap(err, "error reading .env file")
	}

	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/pricelens/")
	}

	v.SetEnvPrefix("PRICELENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "error reading config file")
		}
		// Config file not found; using environment variables and defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, eris.Wrap(err, "unable to decode config")
	}

	if err := validate(&config); err != nil {
		return nil, eris.Wrap(err, "invalid configuration")
	}

	return &config, nil
}

// setDefaults sets default configuration values. Every key is registered so
// that environment variables can override it.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:*"})
	v.SetDefault("server.request_timeout", "5m")

	// Pipeline defaults
	v.SetDefault("pipeline.alert_threshold", 10.0)
	v.SetDefault("pipeline.exchange_rate", 1.95583)
	v.SetDefault("pipeline.price_floor", 0.5)
	v.SetDefault("pipeline.default_tolerance", 0.5)
	v.SetDefault("pipeline.lexical_tolerance", 0.5)
	v.SetDefault("pipeline.confirm_threshold", 0.05)
	v.SetDefault("pipeline.visual_sample_size", 5)
	v.SetDefault("pipeline.degraded_retry_min_candidates", 5)
	v.SetDefault("pipeline.adapter_timeout", "60s")
	v.SetDefault("pipeline.concurrency", 1)
	v.SetDefault("pipeline.window_before", 80)
	v.SetDefault("pipeline.window_after", 240)
	v.SetDefault("pipeline.fuzzy_matching", true)
	v.SetDefault("pipeline.fuzzy_edit_distance", 1)
	v.SetDefault("pipeline.debug_logging", false)

	// Anthropic defaults
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.primary_model", "claude-sonnet-4-5")
	v.SetDefault("anthropic.degraded_model", "claude-haiku-4-5")
	v.SetDefault("anthropic.vision_model", "claude-sonnet-4-5")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.vision_max_tokens", 512)
	v.SetDefault("anthropic.requests_per_minute", 50)

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.path", "")
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.cleanup_interval", "10m")

	v.SetDefault("history.path", "")
	v.SetDefault("catalog.path", "")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Port == "" {
		return eris.New("server port is required")
	}

	p := config.Pipeline
	if p.AlertThreshold <= 0 {
		return eris.Errorf("alert threshold must be positive, got: %v", p.AlertThreshold)
	}
	if p.ExchangeRate <= 0 {
		return eris.Errorf("exchange rate must be positive, got: %v", p.ExchangeRate)
	}
	if p.DefaultTolerance <= 0 || p.DefaultTolerance > 1 {
		return eris.Errorf("default tolerance must be in (0, 1], got: %v", p.DefaultTolerance)
	}
	if p.LexicalTolerance <= 0 || p.LexicalTolerance > 1 {
		return eris.Errorf("lexical tolerance must be in (0, 1], got: %v", p.LexicalTolerance)
	}
	if p.Concurrency < 1 {
		return eris.Errorf("pipeline concurrency must be at least 1, got: %d", p.Concurrency)
	}

	if config.Anthropic.Enabled() && (config.Anthropic.PrimaryModel == "" || config.Anthropic.VisionModel == "") {
		return eris.New("primary and vision models are required when an Anthropic API key is set")
	}

	if config.Cache.Type != "memory" && config.Cache.Type != "sqlite" {
		return eris.Errorf("cache type must be 'memory' or 'sqlite', got: %s", config.Cache.Type)
	}
	if config.Cache.Type == "sqlite" && config.Cache.Path == "" {
		return eris.New("cache path is required when cache type is 'sqlite'")
	}

	if config.Log.Format != "console" && config.Log.Format != "json" {
		return eris.Errorf("log format must be 'console' or 'json', got: %s", config.Log.Format)
	}
	if _, err := zapcore.ParseLevel(config.Log.Level); err != nil {
		return eris.Wrapf(err, "log level %q", config.Log.Level)
	}

	return nil
}

// loadEnvFile reads KEY=VALUE lines from ./.env into the environment.
// Variables that are already set are left untouched.
func loadEnvFile() error {
	f, err := os.Open(".env")
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// InitLogger builds the process logger and installs it as the zap global.
func InitLogger(cfg LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return logger, nil
}
