// Package storefront talks to the Shopify Storefront GraphQL API.
package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chiefduck/hellbound-sauces-sub000/internal/domain"
	"github.com/chiefduck/hellbound-sauces-sub000/pkg/httpclient"
)

const (
	tracerName = "github.com/chiefduck/hellbound-sauces-sub000/internal/storefront"

	// TokenHeader carries the public Storefront API access token.
	TokenHeader = "X-Shopify-Storefront-Access-Token"

	// DefaultAPIVersion is the Storefront API version requests target.
	DefaultAPIVersion = "2024-10"

	maxResponseBytes = 1 << 20
)

const cartCreateMutation = `mutation cartCreate($input: CartInput!) {
  cartCreate(input: $input) {
    cart {
      id
      checkoutUrl
      cost {
        totalAmount {
          amount
          currencyCode
        }
      }
    }
    userErrors {
      field
      message
    }
  }
}`

var requestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "storefront_shopify_request_duration_seconds",
		Help:    "Duration of Shopify Storefront API calls.",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	},
	[]string{"operation", "outcome"},
)

// HTTPDoer executes HTTP requests. Both httpclient.Client and
// httpclient.CircuitBreakerClient satisfy it.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Config locates the shop.
type Config struct {
	Domain     string
	Token      string
	APIVersion string

	// Endpoint overrides the URL derived from Domain and APIVersion.
	Endpoint string
}

// Client creates remote carts through cartCreate.
type Client struct {
	endpoint string
	token    string
	http     HTTPDoer
	logger   *slog.Logger
}

// NewClient creates a Storefront API client.
func NewClient(cfg Config, doer HTTPDoer, logger *slog.Logger) *Client {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		version := cfg.APIVersion
		if version == "" {
			version = DefaultAPIVersion
		}
		endpoint = fmt.Sprintf("https://%s/api/%s/graphql.json", cfg.Domain, version)
	}
	return &Client{endpoint: endpoint, token: cfg.Token, http: doer, logger: logger}
}

// Endpoint returns the GraphQL URL requests are sent to.
func (c *Client) Endpoint() string { return c.endpoint }

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type cartLineInput struct {
	MerchandiseID string `json:"merchandiseId"`
	Quantity      int    `json:"quantity"`
}

func newCartCreateRequest(lines []domain.CheckoutLine) graphQLRequest {
	input := make([]cartLineInput, len(lines))
	for i, l := range lines {
		input[i] = cartLineInput{MerchandiseID: l.MerchandiseID, Quantity: l.Quantity}
	}
	return graphQLRequest{
		Query: cartCreateMutation,
		Variables: map[string]any{
			"input": map[string]any{"lines": input},
		},
	}
}

type shopifyMoney struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

type cartCreateResponse struct {
	Data *struct {
		CartCreate *struct {
			Cart *struct {
				ID          string `json:"id"`
				CheckoutURL string `json:"checkoutUrl"`
				Cost        struct {
					TotalAmount shopifyMoney `json:"totalAmount"`
				} `json:"cost"`
			} `json:"cart"`
			UserErrors []struct {
				Field   []string `json:"field"`
				Message string   `json:"message"`
			} `json:"userErrors"`
		} `json:"cartCreate"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// CreateCheckout runs cartCreate for lines and returns the cart's checkout
// URL. Every failure is a *domain.CheckoutError.
func (c *Client) CreateCheckout(ctx context.Context, lines []domain.CheckoutLine) (session *domain.CheckoutSession, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "shopify.cartCreate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int("checkout.lines", len(lines))),
	)
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(domain.AsCheckoutError(err).Kind)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		requestDuration.WithLabelValues("cartCreate", outcome).Observe(time.Since(start).Seconds())
		span.End()
	}()

	body, err := json.Marshal(newCartCreateRequest(lines))
	if err != nil {
		return nil, domain.NewCheckoutError(domain.KindNetwork, "", fmt.Errorf("encode cartCreate: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewCheckoutError(domain.KindNetwork, "", fmt.Errorf("build cartCreate request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(TokenHeader, c.token)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, transportError(err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	defer func() { _ = resp.Body.Close() }()

	var out cartCreateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return nil, domain.NewCheckoutError(domain.KindNetwork, "", fmt.Errorf("decode cartCreate response: %w", err))
	}

	if len(out.Errors) > 0 {
		return nil, domain.NewCheckoutError(domain.KindCreation, out.Errors[0].Message, nil)
	}
	if out.Data == nil || out.Data.CartCreate == nil {
		return nil, domain.NewCheckoutError(domain.KindResponse, "missing cartCreate payload", nil)
	}
	payload := out.Data.CartCreate
	if len(payload.UserErrors) > 0 {
		return nil, domain.NewCheckoutError(domain.KindCreation, payload.UserErrors[0].Message, nil)
	}
	if payload.Cart == nil || payload.Cart.CheckoutURL == "" {
		return nil, domain.NewCheckoutError(domain.KindResponse, "missing checkout url", nil)
	}

	c.logger.DebugContext(ctx, "shopify cart created",
		slog.String("cart_id", payload.Cart.ID),
		slog.Int("lines", len(lines)),
	)

	return &domain.CheckoutSession{
		ID:          payload.Cart.ID,
		RedirectURL: payload.Cart.CheckoutURL,
		Total: domain.Money{
			Amount:       payload.Cart.Cost.TotalAmount.Amount,
			CurrencyCode: payload.Cart.Cost.TotalAmount.CurrencyCode,
		},
	}, nil
}

func transportError(err error) *domain.CheckoutError {
	var se *httpclient.StatusError
	switch {
	case errors.Is(err, httpclient.ErrCircuitOpen):
		return domain.NewCheckoutError(domain.KindNetwork, "checkout temporarily unavailable", err)
	case errors.As(err, &se) && se.StatusCode == http.StatusGatewayTimeout:
		return domain.NewCheckoutError(domain.KindTimeout, "", err)
	case errors.As(err, &se):
		return domain.NewCheckoutError(domain.KindNetwork, fmt.Sprintf("shopify returned status %d", se.StatusCode), err)
	case errors.Is(err, context.DeadlineExceeded):
		return domain.NewCheckoutError(domain.KindTimeout, "", err)
	default:
		return domain.NewCheckoutError(domain.KindNetwork, "", err)
	}
}

// statusError maps a non-200 response. Rate limiting and server errors are
// transient; any other client error means the request itself was refused.
func statusError(resp *http.Response) *domain.CheckoutError {
	status := resp.StatusCode
	cause := httpclient.ParseResponseError(resp, "shopify")
	switch {
	case status == http.StatusTooManyRequests:
		return domain.NewCheckoutError(domain.KindNetwork, "rate limited", cause)
	case status == http.StatusGatewayTimeout:
		return domain.NewCheckoutError(domain.KindTimeout, "", cause)
	case httpclient.IsClientError(status):
		return domain.NewCheckoutError(domain.KindCreation, "", cause)
	default:
		return domain.NewCheckoutError(domain.KindNetwork, "", cause)
	}
}
