package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestLoadDefaults verifies a missing config file falls back to defaults
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load with defaults failed: %v", err)
	}

	if cfg.Solana.RPCEndpoint != "https://api.mainnet-beta.solana.com" {
		t.Errorf("unexpected default RPC endpoint: %s", cfg.Solana.RPCEndpoint)
	}
	if cfg.Solana.MaxConcurrent != 8 {
		t.Errorf("expected max_concurrent 8, got %d", cfg.Solana.MaxConcurrent)
	}
	if cfg.Cache.TokenPrices.TTL != 30*time.Second {
		t.Errorf("expected token_prices ttl 30s, got %v", cfg.Cache.TokenPrices.TTL)
	}
	if cfg.Cache.JupiterQuotes.TTL != 5*time.Second {
		t.Errorf("expected jupiter_quotes ttl 5s, got %v", cfg.Cache.JupiterQuotes.TTL)
	}
	if cfg.Cache.RiskReports.TTL != 5*time.Minute {
		t.Errorf("expected risk_reports ttl 5m, got %v", cfg.Cache.RiskReports.TTL)
	}
	if cfg.RateLimits.Trading.RequestsPerMinute != 5 || cfg.RateLimits.Trading.BurstCapacity != 2 {
		t.Errorf("unexpected trading limits: %+v", cfg.RateLimits.Trading)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("expected 3 retry attempts, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Monitor.HitRateThreshold != 50.0 {
		t.Errorf("expected hit rate threshold 50, got %.1f", cfg.Monitor.HitRateThreshold)
	}
	if cfg.Redis.Enabled {
		t.Error("expected redis disabled by default")
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.HTTP.Port)
	}

	t.Log("✓ Defaults provide a complete, valid configuration")
}

// TestLoadFromFile verifies file values override defaults
func TestLoadFromFile(t *testing.T) {
	content := `
solana:
  rpc_endpoint: "https://rpc.example.com"
  max_concurrent: 4
cache:
  token_prices:
    ttl: 45s
redis:
  enabled: true
  address: "redis.example.com:6379"
http:
  port: 9090
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Solana.RPCEndpoint != "https://rpc.example.com" {
		t.Errorf("file value not applied: %s", cfg.Solana.RPCEndpoint)
	}
	if cfg.Solana.MaxConcurrent != 4 {
		t.Errorf("expected max_concurrent 4, got %d", cfg.Solana.MaxConcurrent)
	}
	if cfg.Cache.TokenPrices.TTL != 45*time.Second {
		t.Errorf("expected ttl 45s, got %v", cfg.Cache.TokenPrices.TTL)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Address != "redis.example.com:6379" {
		t.Errorf("redis config not applied: %+v", cfg.Redis)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.HTTP.Port)
	}

	// Untouched sections keep their defaults
	if cfg.Jupiter.PriceBaseURL == "" {
		t.Error("expected default jupiter base URL to survive")
	}

	t.Log("✓ File values override defaults, the rest stays default")
}

func validTestConfig() *Config {
	cfg, _ := Load("")
	return cfg
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		errPart string
	}{
		{"missing rpc endpoint", func(c *Config) { c.Solana.RPCEndpoint = "" }, "RPC endpoint"},
		{"zero concurrency", func(c *Config) { c.Solana.MaxConcurrent = 0 }, "max_concurrent"},
		{"missing jupiter url", func(c *Config) { c.Jupiter.PriceBaseURL = "" }, "jupiter"},
		{"zero rpm", func(c *Config) { c.RateLimits.Trading.RequestsPerMinute = 0 }, "requests_per_minute"},
		{"zero burst", func(c *Config) { c.RateLimits.Portfolio.BurstCapacity = 0 }, "burst_capacity"},
		{"zero retry attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "max_attempts"},
		{"sub-1 multiplier", func(c *Config) { c.Retry.Multiplier = 0.5 }, "multiplier"},
		{"redis enabled without address", func(c *Config) { c.Redis.Enabled = true; c.Redis.Address = "" }, "redis address"},
		{"zero cache ttl", func(c *Config) { c.Cache.Balances.TTL = 0 }, "ttl"},
		{"zero cache capacity", func(c *Config) { c.Cache.Positions.MaxCapacity = 0 }, "max_capacity"},
		{"bad log level", func(c *Config) { c.Observability.Logging.Level = "verbose" }, "log level"},
		{"bad log format", func(c *Config) { c.Observability.Logging.Format = "xml" }, "log format"},
		{"tracing without endpoint", func(c *Config) { c.Observability.Tracing.Enabled = true; c.Observability.Tracing.Endpoint = "" }, "tracing endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.errPart) {
				t.Errorf("expected error mentioning %q, got %v", tt.errPart, err)
			}
		})
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := validTestConfig().Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}
