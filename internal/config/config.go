package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port            string   `mapstructure:"PORT"`
	Env             string   `mapstructure:"ENV"`
	LogLevel        string   `mapstructure:"LOG_LEVEL"`
	StorePath       string   `mapstructure:"STORE_PATH"`
	LockPath        string   `mapstructure:"LOCK_PATH"`
	VocabularyPath  string   `mapstructure:"VOCABULARY_PATH"`
	SourcesPath     string   `mapstructure:"SOURCES_PATH"`
	ReferencePath   string   `mapstructure:"REFERENCE_PATH"`
	ParseWorkers    int      `mapstructure:"PARSE_WORKERS"`
	CacheTTLSeconds int      `mapstructure:"CACHE_TTL_SECONDS"`
	TimeoutSeconds  int      `mapstructure:"HTTP_TIMEOUT_SECONDS"`
	CORSOrigins     []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS    float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst  int      `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_PATH", "data/consolidated.csv")
	v.SetDefault("VOCABULARY_PATH", "config/vocabulary.yaml")
	v.SetDefault("SOURCES_PATH", "config/sources.yaml")
	v.SetDefault("REFERENCE_PATH", "config/reference_ranges.csv")
	v.SetDefault("PARSE_WORKERS", 4)
	v.SetDefault("CACHE_TTL_SECONDS", 60)
	v.SetDefault("HTTP_TIMEOUT_SECONDS", 30)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("STORE_PATH")
	v.BindEnv("LOCK_PATH")
	v.BindEnv("VOCABULARY_PATH")
	v.BindEnv("SOURCES_PATH")
	v.BindEnv("REFERENCE_PATH")
	v.BindEnv("PARSE_WORKERS")
	v.BindEnv("CACHE_TTL_SECONDS")
	v.BindEnv("HTTP_TIMEOUT_SECONDS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// LockFile returns the advisory lock path, derived from the store path
// unless LOCK_PATH overrides it.
func (c *Config) LockFile() string {
	if c.LockPath != "" {
		return c.LockPath
	}
	return c.StorePath + ".lock"
}

// CacheTTL returns the query cache lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// HTTPTimeout returns the per-request deadline for the API server.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate checks that the configuration can actually drive a run.
func (c *Config) Validate() error {
	if c.StorePath == "" {
		return fmt.Errorf("STORE_PATH must not be empty")
	}
	if c.VocabularyPath == "" {
		return fmt.Errorf("VOCABULARY_PATH must not be empty")
	}
	if c.SourcesPath == "" {
		return fmt.Errorf("SOURCES_PATH must not be empty")
	}
	if c.ParseWorkers < 1 {
		return fmt.Errorf("PARSE_WORKERS must be at least 1, got %d", c.ParseWorkers)
	}
	if c.CacheTTLSeconds < 1 {
		return fmt.Errorf("CACHE_TTL_SECONDS must be at least 1, got %d", c.CacheTTLSeconds)
	}
	if c.TimeoutSeconds < 1 {
		return fmt.Errorf("HTTP_TIMEOUT_SECONDS must be at least 1, got %d", c.TimeoutSeconds)
	}
	return nil
}
