package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/chiefduck/hellbound-sauces-sub000/internal/domain"
)

const tracerName = "github.com/chiefduck/hellbound-sauces-sub000/internal/coordinator"

// DefaultCheckoutTimeout bounds how long a checkout attempt may wait on the
// remote system before it is failed locally.
const DefaultCheckoutTimeout = 10 * time.Second

// SessionCreator creates a remote checkout session for the given lines.
// Failures should be *domain.CheckoutError; anything else is treated as a
// network failure.
type SessionCreator interface {
	CreateCheckout(ctx context.Context, lines []domain.CheckoutLine) (*domain.CheckoutSession, error)
}

// Navigator hands the shopper off to the remote checkout page.
type Navigator interface {
	Navigate(ctx context.Context, redirectURL string) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, redirectURL string) error

func (f NavigatorFunc) Navigate(ctx context.Context, redirectURL string) error {
	return f(ctx, redirectURL)
}

// Attempt is one checkout attempt that passed the local guards.
type Attempt struct {
	ID        string
	SessionID string
	Items     []domain.LineItem
	StartedAt time.Time
}

// Outcome is how an attempt ended. Err is nil only for StatusRedirected.
type Outcome struct {
	Status    domain.AttemptStatus
	Session   *domain.CheckoutSession
	Err       *domain.CheckoutError
	SettledAt time.Time
}

// CheckoutObserver is told about every attempt that reaches the remote
// system. CheckoutStarted runs concurrently with the remote call and never
// delays the timeout; CheckoutSettled always follows it.
type CheckoutObserver interface {
	CheckoutStarted(ctx context.Context, attempt Attempt)
	CheckoutSettled(ctx context.Context, attempt Attempt, outcome Outcome)
}

// NopObserver ignores every callback.
type NopObserver struct{}

func (NopObserver) CheckoutStarted(context.Context, Attempt)          {}
func (NopObserver) CheckoutSettled(context.Context, Attempt, Outcome) {}

type createResult struct {
	session *domain.CheckoutSession
	err     error
}

// Bridge turns the cart into a remote checkout session and sends the
// shopper there.
type Bridge struct {
	sessionID string
	store     *Store
	creator   SessionCreator
	notices   *NoticeBoard
	observer  CheckoutObserver
	timeout   time.Duration
	logger    *slog.Logger
}

// NewBridge creates a bridge for one session's store.
func NewBridge(sessionID string, store *Store, creator SessionCreator, notices *NoticeBoard, observer CheckoutObserver, timeout time.Duration, logger *slog.Logger) *Bridge {
	if timeout <= 0 {
		timeout = DefaultCheckoutTimeout
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &Bridge{
		sessionID: sessionID,
		store:     store,
		creator:   creator,
		notices:   notices,
		observer:  observer,
		timeout:   timeout,
		logger:    logger,
	}
}

// run is one attempt between beginCheckout and its settlement.
type run struct {
	ticket
	attempt Attempt
	started <-chan struct{}
}

// ProceedToCheckout creates a remote checkout session from the current
// lines and navigates to it.
//
// On success the in-progress flag stays set until the shopper comes back
// (see Watcher). Every failure clears the flag, posts an error notice and
// leaves the cart untouched. The first of response, timeout, reset or ctx
// cancellation settles the attempt; whatever arrives later is discarded.
func (b *Bridge) ProceedToCheckout(ctx context.Context, nav Navigator) (*domain.CheckoutSession, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "coordinator.ProceedToCheckout")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", b.sessionID))

	t, cerr := b.store.beginCheckout()
	if cerr != nil {
		span.SetAttributes(attribute.String("checkout.rejected", string(cerr.Kind)))
		if cerr.Kind == domain.KindEmptyCart {
			b.postFailure(cerr)
		}
		return nil, cerr
	}

	// The flag is set from here on, so the timeout is armed before anything
	// else can stall.
	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	attempt := Attempt{
		ID:        uuid.New().String(),
		SessionID: b.sessionID,
		Items:     t.items,
		StartedAt: time.Now().UTC(),
	}
	span.SetAttributes(attribute.String("checkout.attempt_id", attempt.ID))

	log := b.logger.With(
		slog.String("session_id", b.sessionID),
		slog.String("attempt_id", attempt.ID),
	)
	log.InfoContext(ctx, "checkout started", slog.Int("lines", len(t.items)))

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan createResult, 1)
	go func() {
		session, err := b.creator.CreateCheckout(callCtx, domain.CheckoutLines(t.items))
		results <- createResult{session: session, err: err}
	}()

	started := make(chan struct{})
	go func() {
		defer close(started)
		b.observer.CheckoutStarted(ctx, attempt)
	}()
	r := run{ticket: t, attempt: attempt, started: started}

	var (
		session *domain.CheckoutSession
		err     error
	)
	select {
	case res := <-results:
		session, err = b.complete(ctx, r, res, nav)
	case <-timer.C:
		go discardLate(log, results)
		err = b.fail(ctx, r, domain.NewCheckoutError(domain.KindTimeout, "", context.DeadlineExceeded))
	case <-t.abandon:
		go discardLate(log, results)
		err = b.abandoned(ctx, r)
	case <-ctx.Done():
		go discardLate(log, results)
		kind := domain.KindNetwork
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = domain.KindTimeout
		}
		err = b.fail(ctx, r, domain.NewCheckoutError(kind, "", ctx.Err()))
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return session, nil
}

// complete settles an attempt whose remote call returned first.
func (b *Bridge) complete(ctx context.Context, r run, res createResult, nav Navigator) (*domain.CheckoutSession, error) {
	if res.err != nil {
		return nil, b.fail(ctx, r, domain.AsCheckoutError(res.err))
	}
	if res.session == nil || !validRedirect(res.session.RedirectURL) {
		return nil, b.fail(ctx, r, domain.NewCheckoutError(domain.KindResponse, "missing checkout url", nil))
	}
	if !b.store.settleCheckout(r.token, true) {
		return nil, b.abandoned(ctx, r)
	}

	if err := nav.Navigate(ctx, res.session.RedirectURL); err != nil {
		cerr := domain.NewCheckoutError(domain.KindNetwork, "navigation failed", err)
		b.store.resetCheckout()
		b.postFailure(cerr)
		b.logger.ErrorContext(ctx, "checkout navigation failed",
			slog.String("session_id", b.sessionID),
			slog.String("attempt_id", r.attempt.ID),
			slog.String("error", err.Error()),
		)
		b.report(ctx, r, Outcome{Status: domain.AttemptFailed, Session: res.session, Err: cerr, SettledAt: time.Now().UTC()})
		return nil, cerr
	}

	b.logger.InfoContext(ctx, "checkout redirected",
		slog.String("session_id", b.sessionID),
		slog.String("attempt_id", r.attempt.ID),
		slog.String("remote_cart_id", res.session.ID),
	)
	b.report(ctx, r, Outcome{Status: domain.AttemptRedirected, Session: res.session, SettledAt: time.Now().UTC()})
	return res.session, nil
}

// fail settles the attempt as failed. If the attempt was already
// invalidated by a reset, it is reported as abandoned instead.
func (b *Bridge) fail(ctx context.Context, r run, cerr *domain.CheckoutError) error {
	if !b.store.settleCheckout(r.token, false) {
		return b.abandoned(ctx, r)
	}
	b.postFailure(cerr)
	b.logger.WarnContext(ctx, "checkout failed",
		slog.String("session_id", b.sessionID),
		slog.String("attempt_id", r.attempt.ID),
		slog.String("kind", string(cerr.Kind)),
		slog.String("error", cerr.Error()),
	)
	b.report(ctx, r, Outcome{Status: domain.AttemptFailed, Err: cerr, SettledAt: time.Now().UTC()})
	return cerr
}

// abandoned reports an attempt that a visibility reset took over. The flag
// is already clear, so no notice is posted.
func (b *Bridge) abandoned(ctx context.Context, r run) error {
	cerr := domain.NewCheckoutError(domain.KindNetwork, "checkout interrupted", nil)
	b.logger.InfoContext(ctx, "checkout abandoned",
		slog.String("session_id", b.sessionID),
		slog.String("attempt_id", r.attempt.ID),
	)
	b.report(ctx, r, Outcome{Status: domain.AttemptAbandoned, Err: cerr, SettledAt: time.Now().UTC()})
	return cerr
}

// report hands the outcome to the observer once it has seen the start. The
// flag is already settled, so a slow observer only delays the return.
func (b *Bridge) report(ctx context.Context, r run, out Outcome) {
	<-r.started
	b.observer.CheckoutSettled(ctx, r.attempt, out)
}

func (b *Bridge) postFailure(cerr *domain.CheckoutError) {
	if b.notices == nil {
		return
	}
	b.notices.Post(domain.Notice{
		Level:   domain.NoticeError,
		Code:    cerr.Kind.Code(),
		Message: cerr.UserMessage(),
	})
}

// discardLate waits for a remote result nobody is listening to any more.
func discardLate(log *slog.Logger, results <-chan createResult) {
	r := <-results
	switch {
	case r.err != nil && errors.Is(r.err, context.Canceled):
		log.Debug("late checkout call cancelled")
	case r.err != nil:
		log.Info("late checkout failure discarded", slog.String("error", r.err.Error()))
	default:
		log.Info("late checkout response discarded")
	}
}

func validRedirect(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
}
