package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/chiefduck/hellbound-sauces-sub000/internal/config"
	"github.com/chiefduck/hellbound-sauces-sub000/internal/coordinator"
	"github.com/chiefduck/hellbound-sauces-sub000/internal/event"
	handler "github.com/chiefduck/hellbound-sauces-sub000/internal/handler/http"
	"github.com/chiefduck/hellbound-sauces-sub000/internal/repository"
	"github.com/chiefduck/hellbound-sauces-sub000/internal/repository/postgres"
	"github.com/chiefduck/hellbound-sauces-sub000/internal/service"
	"github.com/chiefduck/hellbound-sauces-sub000/internal/session"
	"github.com/chiefduck/hellbound-sauces-sub000/internal/signal"
	"github.com/chiefduck/hellbound-sauces-sub000/internal/signal/memory"
	redissignal "github.com/chiefduck/hellbound-sauces-sub000/internal/signal/redis"
	"github.com/chiefduck/hellbound-sauces-sub000/internal/storefront"
	"github.com/chiefduck/hellbound-sauces-sub000/migrations"
	"github.com/chiefduck/hellbound-sauces-sub000/pkg/database"
	"github.com/chiefduck/hellbound-sauces-sub000/pkg/health"
	"github.com/chiefduck/hellbound-sauces-sub000/pkg/httpclient"
	pkgkafka "github.com/chiefduck/hellbound-sauces-sub000/pkg/kafka"
	"github.com/chiefduck/hellbound-sauces-sub000/pkg/tracing"
)

// Version is stamped into traces. Overridden at link time.
var Version = "dev"

// App wires together all dependencies and runs the storefront service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	svc            *service.StorefrontService
	broker         *memory.Broker
	rdb            *goredis.Client
	pool           *pgxpool.Pool
	producer       *pkgkafka.Producer
	tracerShutdown tracing.ShutdownFunc
	httpServer     *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
// Optional backends (Redis signals, Postgres audit, Kafka events) are only
// connected when configured.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.closeBackends()
		}
	}()

	a.tracerShutdown, err = tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "storefront",
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
		Attributes:     map[string]string{"shop.domain": cfg.ShopifyDomain},
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	healthHandler := health.NewHandler()

	// Lifecycle signals.
	var signals signal.Bus
	switch cfg.SignalBackend {
	case config.SignalBackendRedis:
		a.rdb, err = database.NewRedisClient(ctx, cfg.Redis(), logger)
		if err != nil {
			return nil, fmt.Errorf("lifecycle signals: %w", err)
		}
		logger.Info("connected to Redis",
			slog.String("addr", cfg.Redis().Addr()),
			slog.Int("db", cfg.RedisDB),
		)
		signals = redissignal.NewBus(a.rdb, cfg.SignalPrefix, logger)
		rdb := a.rdb
		healthHandler.Register("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	default:
		a.broker = memory.NewBroker()
		signals = a.broker
	}

	// Checkout attempt audit.
	var attempts repository.AttemptRepository
	if cfg.AuditEnabled {
		a.pool, err = database.NewPostgresPool(ctx, cfg.Postgres(), logger)
		if err != nil {
			return nil, fmt.Errorf("audit database: %w", err)
		}
		database.SetSlowQueryLogging(cfg.SlowQueryThreshold(), logger)
		if err = database.RunMigrations(ctx, a.pool, migrations.FS, logger); err != nil {
			return nil, fmt.Errorf("audit database: %w", err)
		}
		attempts = postgres.NewAttemptRepository(a.pool)
		pool := a.pool
		healthHandler.Register("postgres", pool.Ping)
	}

	// Domain events.
	var events service.EventPublisher
	if cfg.EventsEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		events = event.NewProducer(a.producer, logger)
		healthHandler.Register("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Shopify Storefront API behind retries and a circuit breaker.
	shopifyHTTP := httpclient.NewCircuitBreakerClient(httpclient.New(cfg.HTTPClient()), cfg.CircuitBreaker(), logger)
	shopify := storefront.NewClient(storefront.Config{
		Domain:     cfg.ShopifyDomain,
		Token:      cfg.ShopifyToken,
		APIVersion: cfg.ShopifyAPIVersion,
		Endpoint:   cfg.ShopifyEndpoint,
	}, shopifyHTTP, logger)
	logger.Info("shopify client initialized", slog.String("endpoint", shopify.Endpoint()))

	a.svc = service.NewStorefrontService(service.Deps{
		Creator:  shopify,
		Signals:  signals,
		Attempts: attempts,
		Events:   events,
	}, service.Config{
		Coordinator: coordinator.Config{
			CheckoutTimeout: cfg.CheckoutTimeout(),
			NoticeLimit:     cfg.NoticeLimit,
		},
		Sessions: session.Config{
			IdleTTL:     cfg.SessionIdleTTL(),
			MaxSessions: cfg.MaxSessions,
		},
	}, logger)

	router := handler.NewRouter(a.svc, healthHandler, logger, handler.RouterConfig{
		PprofCIDRs:     cfg.PprofAllowedCIDRs,
		CheckoutRPS:    cfg.CheckoutRPS,
		CheckoutBurst:  cfg.CheckoutBurst,
		RequestTimeout: cfg.RequestTimeout(),
	})

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout() + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return a, nil
}

// Run starts the HTTP server and the idle session sweeper, and blocks until
// the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go a.svc.RunSweeper(sweepCtx, a.cfg.SessionSweepInterval())

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	// Graceful HTTP server shutdown with a 10-second deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	// Stop every session watcher before their signal source goes away.
	a.svc.Close()
	a.closeBackends()

	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(shutdownCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		}
	}

	a.logger.Info("application shutdown complete")
	return nil
}

func (a *App) closeBackends() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.broker != nil {
		_ = a.broker.Close()
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
		}
	}
}
