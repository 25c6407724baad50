// Package coordinator owns one shopper session's cart: the line items and
// drawer state, the hand-off to the remote checkout, and the lifecycle
// watcher that clears a stale checkout flag when the shopper returns.
package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/chiefduck/hellbound-sauces-sub000/internal/domain"
	"github.com/chiefduck/hellbound-sauces-sub000/internal/signal"
)

// Config tunes a Coordinator. Zero values fall back to defaults.
type Config struct {
	CheckoutTimeout time.Duration
	NoticeLimit     int
	Observer        CheckoutObserver
}

// Coordinator wires a Store, Bridge and Watcher for one session. Cart
// operations are promoted from the embedded Store.
type Coordinator struct {
	*Store

	id      string
	bridge  *Bridge
	watcher *Watcher
	notices *NoticeBoard
	logger  *slog.Logger
}

// New builds a coordinator for sessionID. Call Start before use and Stop
// when the session ends.
func New(sessionID string, creator SessionCreator, source signal.Source, cfg Config, logger *slog.Logger) *Coordinator {
	store := NewStore()
	notices := NewNoticeBoard(cfg.NoticeLimit)

	return &Coordinator{
		Store:   store,
		id:      sessionID,
		bridge:  NewBridge(sessionID, store, creator, notices, cfg.Observer, cfg.CheckoutTimeout, logger),
		watcher: NewWatcher(sessionID, store, source, logger),
		notices: notices,
		logger:  logger,
	}
}

// ID returns the session ID.
func (c *Coordinator) ID() string { return c.id }

// Start mounts the session.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.watcher.Start(ctx); err != nil {
		return err
	}
	c.logger.DebugContext(ctx, "session mounted", slog.String("session_id", c.id))
	return nil
}

// Stop unmounts the session. It is idempotent.
func (c *Coordinator) Stop() {
	c.watcher.Stop()
}

// Running reports whether the session is mounted.
func (c *Coordinator) Running() bool { return c.watcher.Running() }

// ProceedToCheckout hands the cart to the remote checkout. See
// Bridge.ProceedToCheckout.
func (c *Coordinator) ProceedToCheckout(ctx context.Context, nav Navigator) (*domain.CheckoutSession, error) {
	return c.bridge.ProceedToCheckout(ctx, nav)
}

// Notices drains queued notices.
func (c *Coordinator) Notices() []domain.Notice { return c.notices.Drain() }
