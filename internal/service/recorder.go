package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chiefduck/hellbound-sauces-sub000/internal/coordinator"
	"github.com/chiefduck/hellbound-sauces-sub000/internal/domain"
	"github.com/chiefduck/hellbound-sauces-sub000/internal/repository"
)

var checkoutAttempts = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_checkout_attempts_total",
		Help: "Checkout attempts by outcome (started, redirected, failed, abandoned, rejected).",
	},
	[]string{"outcome"},
)

var checkoutFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_checkout_failures_total",
		Help: "Failed checkout attempts by failure kind.",
	},
	[]string{"kind"},
)

// recordTimeout bounds the audit write and event publish for one callback.
const recordTimeout = 5 * time.Second

// EventPublisher is the part of event.Producer the service uses.
type EventPublisher interface {
	PublishCartUpdated(ctx context.Context, sessionID string, cart domain.CartState) error
	PublishCheckout(ctx context.Context, attempt *domain.CheckoutAttempt) error
}

// checkoutRecorder audits, publishes and counts checkout attempts. Failures
// to record are logged and never reach the shopper.
type checkoutRecorder struct {
	repo    repository.AttemptRepository
	events  EventPublisher
	logger  *slog.Logger
	timeout time.Duration

	mu       sync.Mutex
	inFlight map[string]*domain.CheckoutAttempt
}

func newCheckoutRecorder(repo repository.AttemptRepository, events EventPublisher, logger *slog.Logger) *checkoutRecorder {
	return &checkoutRecorder{
		repo:     repo,
		events:   events,
		logger:   logger,
		timeout:  recordTimeout,
		inFlight: make(map[string]*domain.CheckoutAttempt),
	}
}

func (r *checkoutRecorder) CheckoutStarted(ctx context.Context, a coordinator.Attempt) {
	ctx, cancel := r.recordContext(ctx)
	defer cancel()
	checkoutAttempts.WithLabelValues("started").Inc()

	record := &domain.CheckoutAttempt{
		ID:        a.ID,
		SessionID: a.SessionID,
		Lines:     domain.AuditLines(a.Items),
		Subtotal:  domain.Subtotal(a.Items),
		Status:    domain.AttemptPending,
		StartedAt: a.StartedAt,
	}
	if len(a.Items) > 0 {
		record.Currency = a.Items[0].Product.Currency
	}

	r.mu.Lock()
	r.inFlight[a.ID] = record
	r.mu.Unlock()

	if r.repo != nil {
		if err := r.repo.Create(ctx, record); err != nil {
			r.logger.ErrorContext(ctx, "failed to record checkout attempt",
				slog.String("attempt_id", a.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	r.publish(ctx, record)
}

func (r *checkoutRecorder) CheckoutSettled(ctx context.Context, a coordinator.Attempt, out coordinator.Outcome) {
	ctx, cancel := r.recordContext(ctx)
	defer cancel()
	checkoutAttempts.WithLabelValues(string(out.Status)).Inc()

	r.mu.Lock()
	record, ok := r.inFlight[a.ID]
	delete(r.inFlight, a.ID)
	r.mu.Unlock()
	if !ok {
		r.logger.WarnContext(ctx, "settled checkout attempt was never started",
			slog.String("attempt_id", a.ID),
		)
		return
	}

	settledAt := out.SettledAt
	record.Status = out.Status
	record.SettledAt = &settledAt
	if out.Session != nil {
		record.RemoteCartID = out.Session.ID
		record.RedirectURL = out.Session.RedirectURL
	}
	if out.Err != nil {
		record.FailureKind = out.Err.Kind
		record.FailureReason = out.Err.Reason
		if record.FailureReason == "" {
			record.FailureReason = out.Err.Error()
		}
		if out.Status == domain.AttemptFailed {
			checkoutFailures.WithLabelValues(string(out.Err.Kind)).Inc()
		}
	}

	if r.repo != nil {
		if err := r.repo.Settle(ctx, record); err != nil {
			r.logger.ErrorContext(ctx, "failed to settle checkout attempt",
				slog.String("attempt_id", a.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	r.publish(ctx, record)
}

// recordContext outlives the shopper's request but not the record timeout.
func (r *checkoutRecorder) recordContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
}

func (r *checkoutRecorder) publish(ctx context.Context, record *domain.CheckoutAttempt) {
	if r.events == nil {
		return
	}
	if err := r.events.PublishCheckout(ctx, record); err != nil {
		r.logger.WarnContext(ctx, "failed to publish checkout event",
			slog.String("attempt_id", record.ID),
			slog.String("status", string(record.Status)),
			slog.String("error", err.Error()),
		)
	}
}

func (r *checkoutRecorder) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inFlight)
}
