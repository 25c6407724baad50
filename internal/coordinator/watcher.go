package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chiefduck/hellbound-sauces-sub000/internal/signal"
)

// ErrWatcherStarted is returned by Start on a watcher that is already running.
var ErrWatcherStarted = errors.New("lifecycle watcher already started")

// Watcher reconciles the checkout flag with the page lifecycle. A shopper
// who comes back from the remote checkout (back button, tab refocus) lands
// on a page whose flag may still be set; the next visible signal clears it.
type Watcher struct {
	sessionID string
	store     *Store
	source    signal.Source
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	sub    signal.Subscription
	done   chan struct{}
}

// NewWatcher creates a watcher for one session.
func NewWatcher(sessionID string, store *Store, source signal.Source, logger *slog.Logger) *Watcher {
	return &Watcher{
		sessionID: sessionID,
		store:     store,
		source:    source,
		logger:    logger,
	}
}

// Start clears the checkout flag and begins listening for lifecycle
// signals. The listener outlives ctx's cancellation; only Stop ends it.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.done != nil {
		return ErrWatcherStarted
	}

	w.store.resetCheckout()

	sub, err := w.source.Subscribe(ctx, w.sessionID)
	if err != nil {
		return fmt.Errorf("subscribe to lifecycle signals: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.cancel = cancel
	w.sub = sub
	w.done = make(chan struct{})

	go w.run(loopCtx, sub, w.done)
	return nil
}

func (w *Watcher) run(ctx context.Context, sub signal.Subscription, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sub.C():
			if !ok {
				return
			}
			if sig.State != signal.Visible {
				continue
			}
			if w.store.resetCheckout() {
				w.logger.InfoContext(ctx, "checkout flag reset on page visible",
					slog.String("session_id", w.sessionID),
				)
			}
		}
	}
}

// Stop unsubscribes and waits for the listener to exit. It is safe to call
// more than once and before Start.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.done == nil {
		return
	}

	w.cancel()
	if err := w.sub.Close(); err != nil {
		w.logger.Warn("failed to close lifecycle subscription",
			slog.String("session_id", w.sessionID),
			slog.String("error", err.Error()),
		)
	}
	<-w.done

	w.cancel = nil
	w.sub = nil
	w.done = nil
}

// Running reports whether the listener is active.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done != nil
}
