package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chiefduck/hellbound-sauces-sub000/internal/domain"
	"github.com/chiefduck/hellbound-sauces-sub000/pkg/httpclient"
)

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

var testLines = []domain.CheckoutLine{
	{MerchandiseID: "gid://shopify/ProductVariant/101", Quantity: 2},
	{MerchandiseID: "gid://shopify/ProductVariant/202", Quantity: 1},
}

func noRetryClient() *httpclient.Client {
	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = 0
	cfg.Timeout = 2 * time.Second
	return httpclient.New(cfg)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{Endpoint: srv.URL, Token: "public-token"}, noRetryClient(), newTestLogger())
}

func respondJSON(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}
}

func requireKind(t *testing.T, err error, kind domain.FailureKind) *domain.CheckoutError {
	t.Helper()
	require.Error(t, err)
	var ce *domain.CheckoutError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, kind, ce.Kind, "error: %v", err)
	return ce
}

// --- Tests ---

func TestNewClient_Endpoint(t *testing.T) {
	c := NewClient(Config{Domain: "hellbound.myshopify.com"}, noRetryClient(), newTestLogger())
	assert.Equal(t, "https://hellbound.myshopify.com/api/2024-10/graphql.json", c.Endpoint())

	c = NewClient(Config{Domain: "hellbound.myshopify.com", APIVersion: "2025-01"}, noRetryClient(), newTestLogger())
	assert.Equal(t, "https://hellbound.myshopify.com/api/2025-01/graphql.json", c.Endpoint())
}

func TestCreateCheckout_RequestBody(t *testing.T) {
	var captured []byte
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "public-token", r.Header.Get(TokenHeader))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		captured, _ = io.ReadAll(r.Body)
		respondJSON(`{"data":{"cartCreate":{"cart":{"id":"gid://shopify/Cart/1","checkoutUrl":"https://hellbound.myshopify.com/cart/c/1"},"userErrors":[]}}}`)(w, r)
	})

	_, err := c.CreateCheckout(context.Background(), testLines)
	require.NoError(t, err)

	var pretty bytes.Buffer
	require.NoError(t, json.Indent(&pretty, captured, "", "  "))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "cart_create_request", pretty.Bytes())
}

func TestCreateCheckout_Success(t *testing.T) {
	c := newTestClient(t, respondJSON(`{
		"data": {"cartCreate": {
			"cart": {
				"id": "gid://shopify/Cart/c1",
				"checkoutUrl": "https://hellbound.myshopify.com/cart/c/c1?key=abc",
				"cost": {"totalAmount": {"amount": "39.97", "currencyCode": "USD"}}
			},
			"userErrors": []
		}}
	}`))

	session, err := c.CreateCheckout(context.Background(), testLines)

	require.NoError(t, err)
	assert.Equal(t, "gid://shopify/Cart/c1", session.ID)
	assert.Equal(t, "https://hellbound.myshopify.com/cart/c/c1?key=abc", session.RedirectURL)
	assert.Equal(t, domain.Money{Amount: "39.97", CurrencyCode: "USD"}, session.Total)
}

func TestCreateCheckout_UserErrors(t *testing.T) {
	c := newTestClient(t, respondJSON(`{"data":{"cartCreate":{"cart":null,"userErrors":[
		{"field":["input","lines","0","merchandiseId"],"message":"The merchandise with id gid://shopify/ProductVariant/101 does not exist."},
		{"field":["input"],"message":"second"}
	]}}}`))

	_, err := c.CreateCheckout(context.Background(), testLines)

	ce := requireKind(t, err, domain.KindCreation)
	assert.Equal(t, "The merchandise with id gid://shopify/ProductVariant/101 does not exist.", ce.UserMessage())
	assert.ErrorIs(t, err, domain.ErrCheckoutCreation)
}

func TestCreateCheckout_GraphQLErrors(t *testing.T) {
	c := newTestClient(t, respondJSON(`{"errors":[{"message":"Variable $input of type CartInput! was provided invalid value"}]}`))

	_, err := c.CreateCheckout(context.Background(), testLines)

	ce := requireKind(t, err, domain.KindCreation)
	assert.Contains(t, ce.Reason, "invalid value")
}

func TestCreateCheckout_MissingCheckoutURL(t *testing.T) {
	for name, body := range map[string]string{
		"no data":    `{}`,
		"no payload": `{"data":{"cartCreate":null}}`,
		"no cart":    `{"data":{"cartCreate":{"cart":null,"userErrors":[]}}}`,
		"empty url":  `{"data":{"cartCreate":{"cart":{"id":"gid://shopify/Cart/1","checkoutUrl":""},"userErrors":[]}}}`,
	} {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, respondJSON(body))
			_, err := c.CreateCheckout(context.Background(), testLines)
			requireKind(t, err, domain.KindResponse)
			assert.ErrorIs(t, err, domain.ErrCheckoutResponse)
		})
	}
}

func TestCreateCheckout_UndecodableBody(t *testing.T) {
	c := newTestClient(t, respondJSON(`<html>maintenance</html>`))

	_, err := c.CreateCheckout(context.Background(), testLines)
	requireKind(t, err, domain.KindNetwork)
}

func TestCreateCheckout_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		kind   domain.FailureKind
	}{
		{http.StatusUnauthorized, domain.KindCreation},
		{http.StatusBadRequest, domain.KindCreation},
		{http.StatusTooManyRequests, domain.KindNetwork},
		{http.StatusInternalServerError, domain.KindNetwork},
		{http.StatusServiceUnavailable, domain.KindNetwork},
		{http.StatusGatewayTimeout, domain.KindTimeout},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			})
			_, err := c.CreateCheckout(context.Background(), testLines)
			requireKind(t, err, tt.kind)
		})
	}
}

func TestCreateCheckout_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(Config{Endpoint: url}, noRetryClient(), newTestLogger())
	_, err := c.CreateCheckout(context.Background(), testLines)

	requireKind(t, err, domain.KindNetwork)
	assert.ErrorIs(t, err, domain.ErrNetwork)
}

func TestCreateCheckout_ThroughCircuitBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	cbCfg := httpclient.DefaultCircuitBreakerConfig("shopify-test")
	cbCfg.MinRequests = 2
	cbCfg.FailureRatio = 0.5
	cbCfg.Timeout = time.Minute
	cb := httpclient.NewCircuitBreakerClient(noRetryClient(), cbCfg, newTestLogger())
	c := NewClient(Config{Endpoint: srv.URL}, cb, newTestLogger())

	for range 2 {
		_, err := c.CreateCheckout(context.Background(), testLines)
		ce := requireKind(t, err, domain.KindNetwork)
		assert.Contains(t, ce.Reason, "500")
	}

	_, err := c.CreateCheckout(context.Background(), testLines)
	ce := requireKind(t, err, domain.KindNetwork)
	assert.Equal(t, "checkout temporarily unavailable", ce.Reason)
	assert.ErrorIs(t, err, httpclient.ErrCircuitOpen)
	assert.Equal(t, int32(2), hits.Load())
}

func TestCreateCheckout_ContextDeadline(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.CreateCheckout(ctx, testLines)
	requireKind(t, err, domain.KindTimeout)
}
