package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the trading bot
type Config struct {
	Solana        SolanaConfig        `mapstructure:"solana"`
	Jupiter       JupiterConfig       `mapstructure:"jupiter"`
	Security      SecurityConfig      `mapstructure:"security"`
	RateLimits    RateLimitsConfig    `mapstructure:"rate_limits"`
	Retry         RetryConfig         `mapstructure:"retry"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Monitor       MonitorConfig       `mapstructure:"monitor"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	HTTP          HTTPConfig          `mapstructure:"http"`
}

// SolanaConfig holds Solana RPC connection configuration
type SolanaConfig struct {
	RPCEndpoint   string `mapstructure:"rpc_endpoint"`
	Commitment    string `mapstructure:"commitment"`
	MaxConcurrent int64  `mapstructure:"max_concurrent"`
}

// JupiterConfig holds Jupiter API configuration
type JupiterConfig struct {
	PriceBaseURL string        `mapstructure:"price_base_url"`
	QuoteBaseURL string        `mapstructure:"quote_base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// SecurityConfig holds token risk provider configuration
type SecurityConfig struct {
	GoPlusBaseURL   string        `mapstructure:"goplus_base_url"`
	RugCheckBaseURL string        `mapstructure:"rugcheck_base_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// RateLimitsConfig holds per-operation-class rate limit settings
type RateLimitsConfig struct {
	Trading    RateLimitClassConfig `mapstructure:"trading"`
	Portfolio  RateLimitClassConfig `mapstructure:"portfolio"`
	MarketData RateLimitClassConfig `mapstructure:"market_data"`
}

// RateLimitClassConfig holds one operation class's limits
type RateLimitClassConfig struct {
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	RequestsPerHour   int           `mapstructure:"requests_per_hour"`
	RequestsPerDay    int           `mapstructure:"requests_per_day"`
	BurstCapacity     int           `mapstructure:"burst_capacity"`
	Cooldown          time.Duration `mapstructure:"cooldown"`
}

// RetryConfig holds upstream retry settings
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Multiplier  float64       `mapstructure:"multiplier"`
	Jitter      float64       `mapstructure:"jitter"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig holds per-layer cache configuration
type CacheConfig struct {
	TokenPrices   CacheLayerConfig `mapstructure:"token_prices"`
	Balances      CacheLayerConfig `mapstructure:"balances"`
	Positions     CacheLayerConfig `mapstructure:"positions"`
	JupiterQuotes CacheLayerConfig `mapstructure:"jupiter_quotes"`
	UserRebates   CacheLayerConfig `mapstructure:"user_rebates"`
	RiskReports   CacheLayerConfig `mapstructure:"risk_reports"`
}

// CacheLayerConfig holds one cache layer's settings
type CacheLayerConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	MaxCapacity     int           `mapstructure:"max_capacity"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// MonitorConfig holds health monitoring settings
type MonitorConfig struct {
	SampleInterval   time.Duration `mapstructure:"sample_interval"`
	HitRateThreshold float64       `mapstructure:"hit_rate_threshold"`
	MinSamples       int64         `mapstructure:"min_samples"`
	UtilizationHigh  float64       `mapstructure:"utilization_high"`
	BlockRateWarn    float64       `mapstructure:"block_rate_warn"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// MetricsConfig holds metrics settings
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// TracingConfig holds tracing settings
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port int `mapstructure:"port"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not fatal if env vars are set
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Solana defaults
	v.SetDefault("solana.rpc_endpoint", "https://api.mainnet-beta.solana.com")
	v.SetDefault("solana.commitment", "confirmed")
	v.SetDefault("solana.max_concurrent", 8)

	// Jupiter defaults
	v.SetDefault("jupiter.price_base_url", "https://lite-api.jup.ag/price/v3")
	v.SetDefault("jupiter.quote_base_url", "https://quote-api.jup.ag/v6")
	v.SetDefault("jupiter.timeout", "10s")

	// Security provider defaults
	v.SetDefault("security.goplus_base_url", "https://api.gopluslabs.io/api/v1")
	v.SetDefault("security.rugcheck_base_url", "https://api.rugcheck.xyz/v1")
	v.SetDefault("security.timeout", "15s")

	// Rate limit defaults mirror the operation classes
	v.SetDefault("rate_limits.trading.requests_per_minute", 5)
	v.SetDefault("rate_limits.trading.requests_per_hour", 50)
	v.SetDefault("rate_limits.trading.requests_per_day", 200)
	v.SetDefault("rate_limits.trading.burst_capacity", 2)
	v.SetDefault("rate_limits.trading.cooldown", "10m")

	v.SetDefault("rate_limits.portfolio.requests_per_minute", 20)
	v.SetDefault("rate_limits.portfolio.requests_per_hour", 200)
	v.SetDefault("rate_limits.portfolio.requests_per_day", 2000)
	v.SetDefault("rate_limits.portfolio.burst_capacity", 5)
	v.SetDefault("rate_limits.portfolio.cooldown", "2m")

	v.SetDefault("rate_limits.market_data.requests_per_minute", 30)
	v.SetDefault("rate_limits.market_data.requests_per_hour", 500)
	v.SetDefault("rate_limits.market_data.requests_per_day", 5000)
	v.SetDefault("rate_limits.market_data.burst_capacity", 10)
	v.SetDefault("rate_limits.market_data.cooldown", "1m")

	// Retry defaults
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", "200ms")
	v.SetDefault("retry.max_delay", "5s")
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter", 0.1)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Cache layer defaults
	v.SetDefault("cache.token_prices.ttl", "30s")
	v.SetDefault("cache.token_prices.max_capacity", 10000)
	v.SetDefault("cache.token_prices.cleanup_interval", "60s")

	v.SetDefault("cache.balances.ttl", "10s")
	v.SetDefault("cache.balances.max_capacity", 10000)
	v.SetDefault("cache.balances.cleanup_interval", "60s")

	v.SetDefault("cache.positions.ttl", "15s")
	v.SetDefault("cache.positions.max_capacity", 10000)
	v.SetDefault("cache.positions.cleanup_interval", "60s")

	v.SetDefault("cache.jupiter_quotes.ttl", "5s")
	v.SetDefault("cache.jupiter_quotes.max_capacity", 2500)
	v.SetDefault("cache.jupiter_quotes.cleanup_interval", "30s")

	v.SetDefault("cache.user_rebates.ttl", "60s")
	v.SetDefault("cache.user_rebates.max_capacity", 10000)
	v.SetDefault("cache.user_rebates.cleanup_interval", "120s")

	v.SetDefault("cache.risk_reports.ttl", "5m")
	v.SetDefault("cache.risk_reports.max_capacity", 5000)
	v.SetDefault("cache.risk_reports.cleanup_interval", "120s")

	// Monitor defaults
	v.SetDefault("monitor.sample_interval", "30s")
	v.SetDefault("monitor.hit_rate_threshold", 50.0)
	v.SetDefault("monitor.min_samples", 100)
	v.SetDefault("monitor.utilization_high", 80.0)
	v.SetDefault("monitor.block_rate_warn", 25.0)

	// Observability defaults
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")

	// HTTP defaults
	v.SetDefault("http.port", 8080)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Solana.RPCEndpoint == "" {
		return fmt.Errorf("solana RPC endpoint is required")
	}

	if c.Solana.MaxConcurrent <= 0 {
		return fmt.Errorf("solana max_concurrent must be > 0")
	}

	if c.Jupiter.PriceBaseURL == "" || c.Jupiter.QuoteBaseURL == "" {
		return fmt.Errorf("jupiter base URLs are required")
	}

	for name, rl := range map[string]RateLimitClassConfig{
		"trading":     c.RateLimits.Trading,
		"portfolio":   c.RateLimits.Portfolio,
		"market_data": c.RateLimits.MarketData,
	} {
		if rl.RequestsPerMinute <= 0 {
			return fmt.Errorf("rate_limits.%s.requests_per_minute must be > 0", name)
		}
		if rl.BurstCapacity <= 0 {
			return fmt.Errorf("rate_limits.%s.burst_capacity must be > 0", name)
		}
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max_attempts must be >= 1")
	}

	if c.Retry.Multiplier < 1.0 {
		return fmt.Errorf("retry multiplier must be >= 1.0")
	}

	if c.Redis.Enabled && c.Redis.Address == "" {
		return fmt.Errorf("redis address is required when redis is enabled")
	}

	for name, layer := range map[string]CacheLayerConfig{
		"token_prices":   c.Cache.TokenPrices,
		"balances":       c.Cache.Balances,
		"positions":      c.Cache.Positions,
		"jupiter_quotes": c.Cache.JupiterQuotes,
		"user_rebates":   c.Cache.UserRebates,
		"risk_reports":   c.Cache.RiskReports,
	} {
		if layer.TTL <= 0 {
			return fmt.Errorf("cache.%s.ttl must be > 0", name)
		}
		if layer.MaxCapacity <= 0 {
			return fmt.Errorf("cache.%s.max_capacity must be > 0", name)
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Observability.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Observability.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Observability.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Observability.Logging.Format)
	}

	if c.Observability.Tracing.Enabled && c.Observability.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}

	return nil
}
