package config

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/chiefduck/hellbound-sauces-sub000/pkg/config"
	"github.com/chiefduck/hellbound-sauces-sub000/pkg/database"
	"github.com/chiefduck/hellbound-sauces-sub000/pkg/httpclient"
	"github.com/chiefduck/hellbound-sauces-sub000/pkg/logger"
)

// Signal backends for lifecycle visibility changes.
const (
	SignalBackendMemory = "memory"
	SignalBackendRedis  = "redis"
)

// Config holds all configuration for the storefront service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"STOREFRONT_HTTP_PORT" envDefault:"8080"`

	// Shopify Storefront API
	ShopifyDomain     string `env:"SHOPIFY_STORE_DOMAIN"`
	ShopifyToken      string `env:"SHOPIFY_STOREFRONT_TOKEN"`
	ShopifyAPIVersion string `env:"SHOPIFY_API_VERSION" envDefault:"2024-10"`
	ShopifyEndpoint   string `env:"SHOPIFY_GRAPHQL_ENDPOINT"`

	// Checkout hand-off. The timeout bounds the wait for the remote cart,
	// not the shopper's time on the hosted checkout.
	CheckoutTimeoutSecs int `env:"CHECKOUT_TIMEOUT_SECONDS" envDefault:"10"`
	NoticeLimit         int `env:"NOTICE_LIMIT" envDefault:"20"`

	// Sessions
	SessionIdleTTLMins int `env:"SESSION_IDLE_TTL_MINUTES" envDefault:"30"`
	SessionSweepSecs   int `env:"SESSION_SWEEP_INTERVAL_SECONDS" envDefault:"60"`
	MaxSessions        int `env:"MAX_SESSIONS" envDefault:"10000"`

	// Lifecycle signals
	SignalBackend string `env:"LIFECYCLE_SIGNAL_BACKEND" envDefault:"memory"`
	SignalPrefix  string `env:"LIFECYCLE_CHANNEL_PREFIX" envDefault:"storefront:lifecycle"`

	// Redis
	RedisHost string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Checkout attempt audit (PostgreSQL)
	AuditEnabled bool   `env:"CHECKOUT_AUDIT_ENABLED" envDefault:"false"`
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"storefront"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"storefront_secret"`
	PostgresDB   string `env:"STOREFRONT_DB_NAME" envDefault:"storefront_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`
	DBSlowQueryMillis     int   `env:"DB_SLOW_QUERY_MS" envDefault:"250"`

	// Kafka
	EventsEnabled bool     `env:"EVENTS_ENABLED" envDefault:"false"`
	KafkaBrokers  []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Outbound HTTP to Shopify
	HTTPClientRetries int `env:"SHOPIFY_MAX_RETRIES" envDefault:"1"`

	// Circuit breaker settings for the Shopify endpoint
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// Per-session checkout rate limit
	CheckoutRPS   float64 `env:"CHECKOUT_RATE_LIMIT_RPS" envDefault:"1"`
	CheckoutBurst int     `env:"CHECKOUT_RATE_LIMIT_BURST" envDefault:"3"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return load(nil)
}

func load(vars map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadWithEnvironment(cfg, vars); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if !logger.ValidLevel(c.LogLevel) {
		return fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel)
	}
	if c.ShopifyDomain == "" && c.ShopifyEndpoint == "" {
		return fmt.Errorf("SHOPIFY_STORE_DOMAIN is required")
	}
	if c.ShopifyEndpoint != "" {
		if _, err := url.ParseRequestURI(c.ShopifyEndpoint); err != nil {
			return fmt.Errorf("invalid SHOPIFY_GRAPHQL_ENDPOINT %q: %w", c.ShopifyEndpoint, err)
		}
	}
	if c.CheckoutTimeoutSecs < 1 {
		return fmt.Errorf("CHECKOUT_TIMEOUT_SECONDS must be positive, got %d", c.CheckoutTimeoutSecs)
	}
	switch c.SignalBackend {
	case SignalBackendMemory, SignalBackendRedis:
	default:
		return fmt.Errorf("LIFECYCLE_SIGNAL_BACKEND must be %q or %q, got %q", SignalBackendMemory, SignalBackendRedis, c.SignalBackend)
	}
	if c.AuditEnabled && c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required when CHECKOUT_AUDIT_ENABLED is set")
	}
	if c.EventsEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when EVENTS_ENABLED is set")
	}
	if c.CheckoutRPS <= 0 || c.CheckoutBurst < 1 {
		return fmt.Errorf("checkout rate limit must be positive, got %.2f rps burst %d", c.CheckoutRPS, c.CheckoutBurst)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// CheckoutTimeout is the longest ProceedToCheckout waits for the remote cart.
func (c *Config) CheckoutTimeout() time.Duration {
	return time.Duration(c.CheckoutTimeoutSecs) * time.Second
}

// RequestTimeout bounds one API request. It always leaves room for a
// checkout attempt to hit its own timeout first.
func (c *Config) RequestTimeout() time.Duration {
	const floor, margin = 30 * time.Second, 10 * time.Second
	if t := c.CheckoutTimeout() + margin; t > floor {
		return t
	}
	return floor
}

// SessionIdleTTL is how long an untouched session stays mounted.
func (c *Config) SessionIdleTTL() time.Duration {
	return time.Duration(c.SessionIdleTTLMins) * time.Minute
}

// SessionSweepInterval is how often idle sessions are evicted.
func (c *Config) SessionSweepInterval() time.Duration {
	if c.SessionSweepSecs < 1 {
		return time.Minute
	}
	return time.Duration(c.SessionSweepSecs) * time.Second
}

// Postgres returns the pool configuration for the audit database.
func (c *Config) Postgres() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		ApplicationName: "storefront",
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Duration(c.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute,
	}
}

// SlowQueryThreshold is the duration above which audit queries are logged.
// Zero or negative disables the log.
func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.DBSlowQueryMillis) * time.Millisecond
}

// Redis returns the connection configuration for the signal bus.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPass,
		DB:       c.RedisDB,
	}
}

// CircuitBreaker returns the breaker settings for the Shopify endpoint.
func (c *Config) CircuitBreaker() httpclient.CircuitBreakerConfig {
	return httpclient.CircuitBreakerConfig{
		Name:         "shopify",
		MaxRequests:  c.CBMaxRequests,
		Interval:     time.Duration(c.CBInterval) * time.Second,
		Timeout:      time.Duration(c.CBTimeout) * time.Second,
		FailureRatio: c.CBFailureRatio,
		MinRequests:  c.CBMinRequests,
	}
}

// HTTPClient returns the retrying client settings for Shopify calls. The
// per-request timeout never exceeds the checkout timeout.
func (c *Config) HTTPClient() httpclient.Config {
	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = c.HTTPClientRetries
	if t := c.CheckoutTimeout(); t < cfg.Timeout {
		cfg.Timeout = t
	}
	return cfg
}
