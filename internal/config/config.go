// Package config provides configuration management for caresight.
// It loads settings from environment variables with the CARESIGHT_ prefix
// and provides sensible defaults for all configuration options. A .env file
// may be loaded first with LoadDotEnv; real environment variables win.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration settings for the caresight application.
type Config struct {
	Server      ServerConfig
	Storage     StorageConfig
	LLM         LLMConfig
	Cache       CacheConfig
	Correlation CorrelationConfig
	Summary     SummaryConfig
	Security    SecurityConfig
	Logging     LoggingConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port          int    // Server port (default: 6464)
	Host          string // Server host (default: 127.0.0.1)
	EnableMetrics bool   // Expose /metrics (default: true)
	WatchEvents   bool   // Watch {data}/events for sync_complete (default: true)
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	StorageEngine string // sqlite or postgres (default: sqlite)
	DataPath      string // Data directory; holds caresight.db and events/ (default: ./data)
	PostgresDSN   string // Required when StorageEngine is postgres
}

// SQLitePath returns the database file inside DataPath.
func (s StorageConfig) SQLitePath() string {
	return filepath.Join(s.DataPath, "caresight.db")
}

// LLMConfig contains text-generation provider configuration.
type LLMConfig struct {
	LLMProvider     string        // gemini, anthropic, openai, ollama (default: gemini)
	GeminiAPIKey    string        // Gemini API key
	GeminiModel     string        // default: gemini-2.5-flash
	AnthropicAPIKey string        // Anthropic API key
	AnthropicModel  string        // default: claude-sonnet-4-5
	OpenAIAPIKey    string        // OpenAI API key
	OpenAIModel     string        // default: gpt-4o-mini
	OllamaURL       string        // default: http://localhost:11434
	OllamaModel     string        // default: qwen2.5:7b
	Timeout         time.Duration // Per-call timeout (default: 60s)
}

// CacheConfig controls the in-process record cache and summary read cache.
type CacheConfig struct {
	RecordTTL       time.Duration // default: 5m
	MaxFetch        int           // Upper bound per refill (default: 2000)
	FetchTimeout    time.Duration // Bound on one store refill (default: 30s)
	SummaryCacheTTL time.Duration // default: 10m
}

// CorrelationConfig holds the confidence tiering parameters.
type CorrelationConfig struct {
	HighThreshold   float64 // default: 0.8
	MediumThreshold float64 // default: 0.5
	MinEvents       int     // Minimum trigger events before a result is surfaced (default: 2)
	LagWindowDays   int     // default: 2
}

// SummaryConfig controls summary generation.
type SummaryConfig struct {
	MaxRecords int    // Cap on records fetched per period (default: 2000)
	Schedule   string // Optional cron spec for a nightly post-sync run in serve mode
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	SecurityMode   string  // development or production (default: development)
	APIToken       string  // Bearer token required in production
	RateLimitRPS   float64 // default: 10
	RateLimitBurst int     // default: 20
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Environment string // "production" selects JSON output (default: development)
	Level       string // debug, info, warn, error (default: info)
}

// LoadDotEnv loads variables from the given .env files (default ".env").
// Missing files are ignored; variables already set in the environment are
// never overridden.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("config: failed to load .env: %w", err)
	}
	return nil
}

// LoadConfig loads configuration from environment variables with sensible
// defaults and validates it.
func LoadConfig() (*Config, error) {
	cfg := buildBaseConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Server.Port))
	}

	switch c.Storage.StorageEngine {
	case "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("CARESIGHT_POSTGRES_DSN is required for the postgres engine"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage engine %q", c.Storage.StorageEngine))
	}

	switch c.LLM.LLMProvider {
	case "gemini", "anthropic", "openai", "ollama":
	default:
		errs = append(errs, fmt.Errorf("unknown LLM provider %q", c.LLM.LLMProvider))
	}

	if c.Cache.RecordTTL <= 0 {
		errs = append(errs, errors.New("record cache TTL must be positive"))
	}
	if c.Cache.MaxFetch <= 0 {
		errs = append(errs, errors.New("cache max fetch must be positive"))
	}

	if c.Correlation.MediumThreshold < 0 || c.Correlation.HighThreshold > 1 ||
		c.Correlation.MediumThreshold > c.Correlation.HighThreshold {
		errs = append(errs, fmt.Errorf("correlation thresholds must satisfy 0 <= medium (%.2f) <= high (%.2f) <= 1",
			c.Correlation.MediumThreshold, c.Correlation.HighThreshold))
	}
	if c.Correlation.MinEvents < 1 {
		errs = append(errs, errors.New("correlation min events must be at least 1"))
	}
	if c.Correlation.LagWindowDays < 0 {
		errs = append(errs, errors.New("correlation lag window must not be negative"))
	}

	if c.Security.SecurityMode == "production" && c.Security.APIToken == "" {
		errs = append(errs, errors.New("CARESIGHT_API_TOKEN is required in production mode"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// buildBaseConfig constructs a Config with values from environment variables
// and defaults.
func buildBaseConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          getEnvInt("CARESIGHT_PORT", 6464),
			Host:          getEnv("CARESIGHT_HOST", "127.0.0.1"),
			EnableMetrics: getEnvBool("CARESIGHT_ENABLE_METRICS", true),
			WatchEvents:   getEnvBool("CARESIGHT_WATCH_EVENTS", true),
		},
		Storage: StorageConfig{
			StorageEngine: getEnv("CARESIGHT_STORAGE_ENGINE", "sqlite"),
			DataPath:      getEnv("CARESIGHT_DATA_PATH", "./data"),
			PostgresDSN:   getEnv("CARESIGHT_POSTGRES_DSN", ""),
		},
		LLM: LLMConfig{
			LLMProvider:     getEnv("CARESIGHT_LLM_PROVIDER", "gemini"),
			GeminiAPIKey:    getEnv("CARESIGHT_GEMINI_API_KEY", ""),
			GeminiModel:     getEnv("CARESIGHT_GEMINI_MODEL", "gemini-2.5-flash"),
			AnthropicAPIKey: getEnv("CARESIGHT_ANTHROPIC_API_KEY", ""),
			AnthropicModel:  getEnv("CARESIGHT_ANTHROPIC_MODEL", "claude-sonnet-4-5"),
			OpenAIAPIKey:    getEnv("CARESIGHT_OPENAI_API_KEY", ""),
			OpenAIModel:     getEnv("CARESIGHT_OPENAI_MODEL", "gpt-4o-mini"),
			OllamaURL:       getEnv("CARESIGHT_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:     getEnv("CARESIGHT_OLLAMA_MODEL", "qwen2.5:7b"),
			Timeout:         getEnvDuration("CARESIGHT_LLM_TIMEOUT", 60*time.Second),
		},
		Cache: CacheConfig{
			RecordTTL:       getEnvDuration("CARESIGHT_CACHE_TTL", 5*time.Minute),
			MaxFetch:        getEnvInt("CARESIGHT_CACHE_MAX_FETCH", 2000),
			FetchTimeout:    getEnvDuration("CARESIGHT_CACHE_FETCH_TIMEOUT", 30*time.Second),
			SummaryCacheTTL: getEnvDuration("CARESIGHT_SUMMARY_CACHE_TTL", 10*time.Minute),
		},
		Correlation: CorrelationConfig{
			HighThreshold:   getEnvFloat("CARESIGHT_CORRELATION_HIGH", 0.8),
			MediumThreshold: getEnvFloat("CARESIGHT_CORRELATION_MEDIUM", 0.5),
			MinEvents:       getEnvInt("CARESIGHT_CORRELATION_MIN_EVENTS", 2),
			LagWindowDays:   getEnvInt("CARESIGHT_CORRELATION_LAG_DAYS", 2),
		},
		Summary: SummaryConfig{
			MaxRecords: getEnvInt("CARESIGHT_SUMMARY_MAX_RECORDS", 2000),
			Schedule:   getEnv("CARESIGHT_SUMMARY_SCHEDULE", ""),
		},
		Security: SecurityConfig{
			SecurityMode:   getEnv("CARESIGHT_SECURITY_MODE", "development"),
			APIToken:       getEnv("CARESIGHT_API_TOKEN", ""),
			RateLimitRPS:   getEnvFloat("CARESIGHT_RATE_LIMIT_RPS", 10),
			RateLimitBurst: getEnvInt("CARESIGHT_RATE_LIMIT_BURST", 20),
		},
		Logging: LoggingConfig{
			Environment: getEnv("CARESIGHT_ENV", "development"),
			Level:       getEnv("CARESIGHT_LOG_LEVEL", "info"),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("90s", "5m").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBool recognizes true/1/yes and false/0/no, case-insensitively.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}
