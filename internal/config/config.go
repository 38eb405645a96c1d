// Package config loads action guard settings from defaults, an optional YAML
// file named by ACTION_GUARD_CONFIG, and environment overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every runtime setting of the action guard server.
type Config struct {
	GRPCPort string `yaml:"grpc_port"`
	HTTPPort string `yaml:"http_port"`
	LogLevel string `yaml:"log_level"`

	VerifyTimeoutMs int `yaml:"verify_timeout_ms"`
	MaxConcurrency  int `yaml:"max_concurrency"`

	LargeInvoiceThreshold float64 `yaml:"large_invoice_threshold"`
	DefaultCurrency       string  `yaml:"default_currency"`

	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"`

	AuthCacheTTLSeconds    int  `yaml:"auth_cache_ttl_s"`
	AuthFailOpen           bool `yaml:"auth_fail_open"`
	AdapterCacheTTLSeconds int  `yaml:"adapter_cache_ttl_s"`
	MaxAdapters            int  `yaml:"max_adapters"`

	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		GRPCPort:               "50054",
		HTTPPort:               "8084",
		LogLevel:               "info",
		VerifyTimeoutMs:        5000,
		MaxConcurrency:         8,
		LargeInvoiceThreshold:  1_000_000,
		DefaultCurrency:        "₽",
		AuthCacheTTLSeconds:    30,
		AuthFailOpen:           true,
		AdapterCacheTTLSeconds: 60,
		MaxAdapters:            32,
	}
}

// Load builds the effective configuration and validates it.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("ACTION_GUARD_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.GRPCPort = envOrDefault("ACTION_GUARD_GRPC_PORT", c.GRPCPort)
	c.HTTPPort = envOrDefault("ACTION_GUARD_HTTP_PORT", c.HTTPPort)
	c.LogLevel = envOrDefault("ACTION_GUARD_LOG_LEVEL", c.LogLevel)
	c.VerifyTimeoutMs = envOrDefaultInt("ACTION_GUARD_VERIFY_TIMEOUT_MS", c.VerifyTimeoutMs)
	c.MaxConcurrency = envOrDefaultInt("ACTION_GUARD_MAX_CONCURRENCY", c.MaxConcurrency)
	c.LargeInvoiceThreshold = envOrDefaultFloat("ACTION_GUARD_LARGE_INVOICE_THRESHOLD", c.LargeInvoiceThreshold)
	c.DefaultCurrency = envOrDefault("ACTION_GUARD_DEFAULT_CURRENCY", c.DefaultCurrency)
	c.PostgresDSN = envOrDefault("POSTGRES_DSN", c.PostgresDSN)
	c.ClickHouseDSN = envOrDefault("CLICKHOUSE_DSN", c.ClickHouseDSN)
	c.AuthCacheTTLSeconds = envOrDefaultInt("ACTION_GUARD_AUTH_CACHE_TTL_S", c.AuthCacheTTLSeconds)
	c.AuthFailOpen = envOrDefaultBool("ACTION_GUARD_AUTH_FAIL_OPEN", c.AuthFailOpen)
	c.AdapterCacheTTLSeconds = envOrDefaultInt("ACTION_GUARD_ADAPTER_CACHE_TTL_S", c.AdapterCacheTTLSeconds)
	c.MaxAdapters = envOrDefaultInt("ACTION_GUARD_MAX_ADAPTERS", c.MaxAdapters)
	c.OTLPEndpoint = envOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", c.OTLPEndpoint)
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.GRPCPort == "" && c.HTTPPort == "" {
		errs = append(errs, errors.New("at least one of grpc_port and http_port must be set"))
	}
	if c.VerifyTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("verify_timeout_ms must be positive, got %d", c.VerifyTimeoutMs))
	}
	if c.MaxConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("max_concurrency must be positive, got %d", c.MaxConcurrency))
	}
	if c.MaxAdapters <= 0 {
		errs = append(errs, fmt.Errorf("max_adapters must be positive, got %d", c.MaxAdapters))
	}
	if c.LargeInvoiceThreshold <= 0 {
		errs = append(errs, fmt.Errorf("large_invoice_threshold must be positive, got %v", c.LargeInvoiceThreshold))
	}
	if c.AuthCacheTTLSeconds < 0 || c.AdapterCacheTTLSeconds < 0 {
		errs = append(errs, errors.New("cache TTLs cannot be negative"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	return errors.Join(errs...)
}

// VerifyTimeout returns the per-read verification timeout.
func (c Config) VerifyTimeout() time.Duration {
	return time.Duration(c.VerifyTimeoutMs) * time.Millisecond
}

// AuthCacheTTL returns the API key cache TTL.
func (c Config) AuthCacheTTL() time.Duration {
	return time.Duration(c.AuthCacheTTLSeconds) * time.Second
}

// AdapterCacheTTL returns the ERP adapter cache TTL.
func (c Config) AdapterCacheTTL() time.Duration {
	return time.Duration(c.AdapterCacheTTLSeconds) * time.Second
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envOrDefaultFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envOrDefaultBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
