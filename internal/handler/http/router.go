package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chiefduck/hellbound-sauces-sub000/internal/service"
	"github.com/chiefduck/hellbound-sauces-sub000/pkg/health"
	"github.com/chiefduck/hellbound-sauces-sub000/pkg/middleware"
)

const serviceName = "storefront"

// RouterConfig holds the knobs the router needs from configuration.
type RouterConfig struct {
	PprofCIDRs     []string
	CheckoutRPS    float64
	CheckoutBurst  int
	RequestTimeout time.Duration
}

// NewRouter creates a chi router with all storefront routes registered.
func NewRouter(
	svc *service.StorefrontService,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.CheckoutRPS <= 0 {
		cfg.CheckoutRPS = 1
	}
	if cfg.CheckoutBurst <= 0 {
		cfg.CheckoutBurst = 3
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	h := NewStorefrontHandler(svc, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/sessions", h.Mount)

		r.Group(func(r chi.Router) {
			r.Use(RequireSession)

			r.Delete("/sessions", h.Unmount)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.GetCart)
				r.Delete("/", h.ClearCart)

				r.Post("/items", h.AddItem)
				r.Put("/items/{productId}", h.UpdateItemQuantity)
				r.Delete("/items/{productId}", h.RemoveItem)

				r.Post("/open", h.OpenCart)
				r.Post("/close", h.CloseCart)
				r.Post("/toggle", h.ToggleCart)

				r.With(middleware.RateLimit(cfg.CheckoutRPS, cfg.CheckoutBurst, middleware.BySession, logger)).
					Post("/checkout", h.Checkout)
			})

			r.Get("/checkout/attempts", h.ListAttempts)
			r.Post("/lifecycle/visibility", h.Visibility)
			r.Get("/notices", h.Notices)
		})
	})

	return r
}
