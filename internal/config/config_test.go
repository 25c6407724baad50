package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{"SHOPIFY_STORE_DOMAIN": "hellbound.myshopify.com"}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(baseEnv())

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "2024-10", cfg.ShopifyAPIVersion)
	assert.Equal(t, 10*time.Second, cfg.CheckoutTimeout())
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTTL())
	assert.Equal(t, time.Minute, cfg.SessionSweepInterval())
	assert.Equal(t, SignalBackendMemory, cfg.SignalBackend)
	assert.False(t, cfg.AuditEnabled)
	assert.False(t, cfg.EventsEnabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
}

func TestLoad_FromProcessEnvironment(t *testing.T) {
	t.Setenv("SHOPIFY_STORE_DOMAIN", "hellbound.myshopify.com")
	t.Setenv("STOREFRONT_HTTP_PORT", "9090")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTPPort)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing shop", map[string]string{}, "SHOPIFY_STORE_DOMAIN is required"},
		{"port", map[string]string{"STOREFRONT_HTTP_PORT": "0"}, "invalid HTTP port"},
		{"timeout", map[string]string{"CHECKOUT_TIMEOUT_SECONDS": "0"}, "CHECKOUT_TIMEOUT_SECONDS"},
		{"backend", map[string]string{"LIFECYCLE_SIGNAL_BACKEND": "carrier-pigeon"}, "LIFECYCLE_SIGNAL_BACKEND"},
		{"endpoint", map[string]string{"SHOPIFY_GRAPHQL_ENDPOINT": "not a url"}, "SHOPIFY_GRAPHQL_ENDPOINT"},
		{"sample rate", map[string]string{"OTEL_SAMPLE_RATE": "1.5"}, "OTEL_SAMPLE_RATE"},
		{"rate limit", map[string]string{"CHECKOUT_RATE_LIMIT_BURST": "0"}, "rate limit"},
		{"log level", map[string]string{"LOG_LEVEL": "loud"}, "LOG_LEVEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := tt.env
			if tt.name != "missing shop" {
				for k, v := range baseEnv() {
					env[k] = v
				}
			}

			cfg, err := load(env)

			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_EndpointWithoutDomain(t *testing.T) {
	cfg, err := load(map[string]string{"SHOPIFY_GRAPHQL_ENDPOINT": "http://localhost:9999/graphql.json"})

	require.NoError(t, err)
	assert.Empty(t, cfg.ShopifyDomain)
}

func TestDerivedConfigs(t *testing.T) {
	env := baseEnv()
	env["CHECKOUT_TIMEOUT_SECONDS"] = "4"
	env["CB_TIMEOUT_SECONDS"] = "15"
	env["POSTGRES_HOST"] = "db"
	env["DB_MAX_CONN_LIFETIME_MINUTES"] = "5"
	env["REDIS_HOST"] = "cache"

	cfg, err := load(env)
	require.NoError(t, err)

	assert.Equal(t, 4*time.Second, cfg.HTTPClient().Timeout)
	assert.Equal(t, 15*time.Second, cfg.CircuitBreaker().Timeout)
	assert.Equal(t, "shopify", cfg.CircuitBreaker().Name)
	assert.Equal(t, "postgres://storefront:storefront_secret@db:5432/storefront_db?application_name=storefront&sslmode=disable", cfg.Postgres().DSN())
	assert.Equal(t, 5*time.Minute, cfg.Postgres().MaxConnLifetime)
	assert.Equal(t, "cache:6379", cfg.Redis().Addr())
}

func TestRequestTimeout_OutlastsCheckoutTimeout(t *testing.T) {
	tests := []struct {
		checkout string
		want     time.Duration
	}{
		{"10", 30 * time.Second},
		{"20", 30 * time.Second},
		{"30", 40 * time.Second},
		{"45", 55 * time.Second},
	}
	for _, tt := range tests {
		env := baseEnv()
		env["CHECKOUT_TIMEOUT_SECONDS"] = tt.checkout

		cfg, err := load(env)
		require.NoError(t, err)
		assert.Equal(t, tt.want, cfg.RequestTimeout(), tt.checkout)
		assert.Greater(t, cfg.RequestTimeout(), cfg.CheckoutTimeout())
	}
}
