// Package config loads the process configuration from environment
// variables. Config loading itself is intentionally simple — no file
// layering, no remote providers — so this stays a flat struct plus a
// single Load function.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every setting the service reads at startup.
type Config struct {
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	MasterAPIKey      string
	LogRetentionDays  int

	EmbeddingModel      string
	EmbeddingDimensions int
	EmbeddingDailyCap   int
	ArtemisURL          string
	ArtemisAPIKey       string

	RateLimitRequests      int
	RateLimitWindowSeconds int

	MaxRequestBytes int64

	HTTPPort int

	LogLevel string
	LogFile  string

	TracingEnabled  bool
	TracingEndpoint string
}

// Load reads Config from the environment, applying defaults for
// anything not set, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		DBMaxConns:             int32(envInt("DB_MAX_CONNS", 15)),
		DBMinConns:             int32(envInt("DB_MIN_CONNS", 5)),
		MasterAPIKey:           os.Getenv("MASTER_API_KEY"),
		LogRetentionDays:       envInt("LOG_RETENTION_DAYS", 90),
		EmbeddingModel:         envString("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimensions:    envInt("EMBEDDING_DIMENSIONS", 1536),
		EmbeddingDailyCap:      envInt("EMBEDDING_DAILY_CAP", 50000),
		ArtemisURL:             os.Getenv("ARTEMIS_URL"),
		ArtemisAPIKey:          os.Getenv("ARTEMIS_API_KEY"),
		RateLimitRequests:      envInt("RATE_LIMIT_REQUESTS", 1000),
		RateLimitWindowSeconds: envInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		MaxRequestBytes:        envInt64("MAX_REQUEST_BYTES", 10485760),
		HTTPPort:               envInt("HTTP_PORT", 8080),
		LogLevel:               envString("LOG_LEVEL", "info"),
		LogFile:                os.Getenv("LOG_FILE"),
		TracingEnabled:         envBool("TRACING_ENABLED", false),
		TracingEndpoint:        envString("TRACING_ENDPOINT", "localhost:4317"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the handful of settings that must be present for the
// service to start at all.
func (c *Config) Validate() error {
	var errs []string

	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Sprintf("HTTP_PORT must be between 1 and 65535, got %d", c.HTTPPort))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL must be one of debug, info, warn, error, got %q", c.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// RateLimitWindow is RateLimitWindowSeconds as a time.Duration.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
