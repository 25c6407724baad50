package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/chiefduck/hellbound-sauces-sub000/internal/coordinator"
	"github.com/chiefduck/hellbound-sauces-sub000/internal/domain"
	"github.com/chiefduck/hellbound-sauces-sub000/internal/repository"
	"github.com/chiefduck/hellbound-sauces-sub000/internal/session"
	"github.com/chiefduck/hellbound-sauces-sub000/internal/signal"
	apperrors "github.com/chiefduck/hellbound-sauces-sub000/pkg/errors"
)

// MaxQuantityPerItem bounds a single add or quantity update.
const MaxQuantityPerItem = 99

// AddItemInput holds the parameters for adding a product to the cart.
// VariantID is optional; the line falls back to DefaultVariantID.
type AddItemInput struct {
	ProductID        string `json:"product_id" validate:"required,max=128"`
	Title            string `json:"title" validate:"required,max=256"`
	Handle           string `json:"handle" validate:"max=256"`
	ImageURL         string `json:"image_url" validate:"omitempty,url"`
	Price            int64  `json:"price" validate:"gte=0"`
	Currency         string `json:"currency" validate:"required,iso4217"`
	DefaultVariantID string `json:"default_variant_id" validate:"required,shopify_gid"`
	VariantID        string `json:"variant_id" validate:"omitempty,shopify_gid"`
	Quantity         int    `json:"quantity" validate:"required,gte=1,lte=99"`
}

func (in AddItemInput) product() domain.Product {
	return domain.Product{
		ID:               in.ProductID,
		Title:            in.Title,
		Handle:           in.Handle,
		ImageURL:         in.ImageURL,
		Price:            in.Price,
		Currency:         in.Currency,
		DefaultVariantID: in.DefaultVariantID,
	}
}

// UpdateQuantityInput holds the parameters for updating a line quantity.
// Zero or less removes the line.
type UpdateQuantityInput struct {
	Quantity int `json:"quantity" validate:"lte=99"`
}

// Deps are the collaborators the service is wired with. Attempts and Events
// are optional.
type Deps struct {
	Creator  coordinator.SessionCreator
	Signals  signal.Bus
	Attempts repository.AttemptRepository
	Events   EventPublisher
}

// Config tunes the service.
type Config struct {
	Coordinator coordinator.Config
	Sessions    session.Config
}

// StorefrontService implements the shopper-facing cart and checkout
// operations on top of the mounted sessions.
type StorefrontService struct {
	sessions *session.Manager
	signals  signal.Publisher
	attempts repository.AttemptRepository
	events   EventPublisher
	recorder *checkoutRecorder
	logger   *slog.Logger
}

// NewStorefrontService creates a service and its session manager.
func NewStorefrontService(deps Deps, cfg Config, logger *slog.Logger) *StorefrontService {
	s := &StorefrontService{
		signals:  deps.Signals,
		attempts: deps.Attempts,
		events:   deps.Events,
		recorder: newCheckoutRecorder(deps.Attempts, deps.Events, logger),
		logger:   logger,
	}

	coordCfg := cfg.Coordinator
	coordCfg.Observer = s.recorder
	s.sessions = session.NewManager(func(id string) *coordinator.Coordinator {
		return coordinator.New(id, deps.Creator, deps.Signals, coordCfg, logger.With(slog.String("session_id", id)))
	}, cfg.Sessions, logger)
	return s
}

// Mount starts a session and returns its id. An empty id is assigned one.
func (s *StorefrontService) Mount(ctx context.Context, id string) (string, domain.CartState, error) {
	coord, err := s.sessions.Mount(ctx, id)
	if err != nil {
		return "", domain.CartState{}, err
	}
	return coord.ID(), coord.Snapshot(), nil
}

// Unmount stops a session.
func (s *StorefrontService) Unmount(_ context.Context, id string) error {
	return s.sessions.Unmount(id)
}

// Cart returns the session's cart.
func (s *StorefrontService) Cart(_ context.Context, id string) (domain.CartState, error) {
	coord, err := s.sessions.Get(id)
	if err != nil {
		return domain.CartState{}, err
	}
	return coord.Snapshot(), nil
}

// AddItem adds a product to the session's cart and opens the drawer.
func (s *StorefrontService) AddItem(ctx context.Context, id string, in AddItemInput) (domain.CartState, error) {
	if in.Quantity > MaxQuantityPerItem {
		return domain.CartState{}, apperrors.InvalidInput(fmt.Sprintf("quantity must be at most %d", MaxQuantityPerItem))
	}
	return s.mutate(ctx, id, func(c *coordinator.Coordinator) error {
		return c.AddItem(in.product(), in.Quantity, in.VariantID)
	})
}

// UpdateQuantity sets a line's quantity. Zero or less removes the line.
func (s *StorefrontService) UpdateQuantity(ctx context.Context, id, productID string, quantity int) (domain.CartState, error) {
	if quantity > MaxQuantityPerItem {
		return domain.CartState{}, apperrors.InvalidInput(fmt.Sprintf("quantity must be at most %d", MaxQuantityPerItem))
	}
	return s.mutate(ctx, id, func(c *coordinator.Coordinator) error {
		c.UpdateQuantity(productID, quantity)
		return nil
	})
}

// RemoveItem drops a line from the cart.
func (s *StorefrontService) RemoveItem(ctx context.Context, id, productID string) (domain.CartState, error) {
	return s.mutate(ctx, id, func(c *coordinator.Coordinator) error {
		c.RemoveItem(productID)
		return nil
	})
}

// Clear empties the cart.
func (s *StorefrontService) Clear(ctx context.Context, id string) (domain.CartState, error) {
	return s.mutate(ctx, id, func(c *coordinator.Coordinator) error {
		c.Clear()
		return nil
	})
}

// OpenCart opens the drawer.
func (s *StorefrontService) OpenCart(_ context.Context, id string) (domain.CartState, error) {
	return s.drawer(id, (*coordinator.Coordinator).OpenCart)
}

// CloseCart closes the drawer.
func (s *StorefrontService) CloseCart(_ context.Context, id string) (domain.CartState, error) {
	return s.drawer(id, (*coordinator.Coordinator).CloseCart)
}

// ToggleCart flips the drawer.
func (s *StorefrontService) ToggleCart(_ context.Context, id string) (domain.CartState, error) {
	return s.drawer(id, (*coordinator.Coordinator).ToggleCart)
}

// drawer changes only the drawer state, which is not a cart change worth
// publishing.
func (s *StorefrontService) drawer(id string, fn func(*coordinator.Coordinator)) (domain.CartState, error) {
	coord, err := s.sessions.Get(id)
	if err != nil {
		return domain.CartState{}, err
	}
	fn(coord)
	return coord.Snapshot(), nil
}

func (s *StorefrontService) mutate(ctx context.Context, id string, fn func(*coordinator.Coordinator) error) (domain.CartState, error) {
	coord, err := s.sessions.Get(id)
	if err != nil {
		return domain.CartState{}, err
	}
	if err := fn(coord); err != nil {
		return domain.CartState{}, err
	}

	cart := coord.Snapshot()
	if s.events != nil {
		if err := s.events.PublishCartUpdated(ctx, id, cart); err != nil {
			s.logger.WarnContext(ctx, "failed to publish cart updated event",
				slog.String("session_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return cart, nil
}

// Checkout runs the checkout flow for the session. Rejections that never
// reach the remote system are counted but not audited.
func (s *StorefrontService) Checkout(ctx context.Context, id string, nav coordinator.Navigator) (*domain.CheckoutSession, error) {
	coord, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}

	checkout, err := coord.ProceedToCheckout(ctx, nav)
	if err != nil {
		if kind := domain.AsCheckoutError(err).Kind; kind == domain.KindEmptyCart || kind == domain.KindInProgress {
			checkoutAttempts.WithLabelValues("rejected").Inc()
		}
		return nil, err
	}
	return checkout, nil
}

// Notices drains the session's pending notices.
func (s *StorefrontService) Notices(_ context.Context, id string) ([]domain.Notice, error) {
	coord, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	return coord.Notices(), nil
}

// Attempts lists the session's audited checkout attempts, newest first.
func (s *StorefrontService) Attempts(ctx context.Context, id string, limit int) ([]domain.CheckoutAttempt, error) {
	if s.attempts == nil {
		return nil, apperrors.ServiceUnavailable("checkout audit is disabled")
	}
	return s.attempts.ListBySession(ctx, id, limit)
}

// PublishVisibility forwards a page visibility change to the session's
// watcher, wherever it is mounted.
func (s *StorefrontService) PublishVisibility(ctx context.Context, id string, state signal.State) error {
	if id == "" {
		return apperrors.InvalidInput("session id is required")
	}
	if err := s.signals.Publish(ctx, id, signal.Signal{State: state, At: time.Now().UTC()}); err != nil {
		return apperrors.New("SIGNAL_UNAVAILABLE", "lifecycle signal could not be delivered", http.StatusServiceUnavailable, err)
	}
	return nil
}

// RunSweeper evicts idle sessions every interval until ctx is done.
func (s *StorefrontService) RunSweeper(ctx context.Context, interval time.Duration) {
	s.sessions.Run(ctx, interval)
}

// ActiveSessions reports how many sessions are mounted.
func (s *StorefrontService) ActiveSessions() int {
	return s.sessions.Len()
}

// Close unmounts every session.
func (s *StorefrontService) Close() {
	s.sessions.Close()
}
