package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chiefduck/hellbound-sauces-sub000/internal/domain"
	pkgkafka "github.com/chiefduck/hellbound-sauces-sub000/pkg/kafka"
	"github.com/chiefduck/hellbound-sauces-sub000/pkg/logger"
)

// Kafka topics for storefront domain events.
const (
	TopicCart     = "storefront.cart"
	TopicCheckout = "storefront.checkout"
)

// Event types.
const (
	TypeCartUpdated        = "cart.updated"
	TypeCheckoutStarted    = "checkout.started"
	TypeCheckoutRedirected = "checkout.redirected"
	TypeCheckoutFailed     = "checkout.failed"
	TypeCheckoutAbandoned  = "checkout.abandoned"
)

// Aggregate types.
const (
	AggregateTypeCart     = "cart"
	AggregateTypeCheckout = "checkout_attempt"
)

// SourceStorefront identifies events published by this service.
const SourceStorefront = "storefront"

// CartUpdatedData is the payload for cart.updated.
type CartUpdatedData struct {
	SessionID string         `json:"session_id"`
	Items     []CartItemData `json:"items"`
	ItemCount int            `json:"item_count"`
	Subtotal  int64          `json:"subtotal"`
	Currency  string         `json:"currency,omitempty"`
}

// CartItemData is one line within cart events.
type CartItemData struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Title     string `json:"title"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

// CheckoutData is the payload for every checkout.* event.
type CheckoutData struct {
	AttemptID     string `json:"attempt_id"`
	SessionID     string `json:"session_id"`
	Status        string `json:"status"`
	ItemCount     int    `json:"item_count"`
	Subtotal      int64  `json:"subtotal"`
	Currency      string `json:"currency,omitempty"`
	RemoteCartID  string `json:"remote_cart_id,omitempty"`
	FailureKind   string `json:"failure_kind,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// Producer publishes storefront domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCartUpdated publishes cart.updated, keyed by session.
func (p *Producer) PublishCartUpdated(ctx context.Context, sessionID string, cart domain.CartState) error {
	items := make([]CartItemData, len(cart.Items))
	for i, li := range cart.Items {
		items[i] = CartItemData{
			ProductID: li.Product.ID,
			VariantID: li.VariantID,
			Title:     li.Product.Title,
			Price:     li.Product.Price,
			Quantity:  li.Quantity,
		}
	}

	data := CartUpdatedData{
		SessionID: sessionID,
		Items:     items,
		ItemCount: cart.ItemCount,
		Subtotal:  cart.Subtotal,
		Currency:  cart.Currency,
	}

	if err := p.publish(ctx, TopicCart, TypeCartUpdated, sessionID, AggregateTypeCart, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published cart.updated event",
		slog.String("session_id", sessionID),
		slog.Int("item_count", cart.ItemCount),
	)
	return nil
}

// PublishCheckout publishes the checkout.* event matching the attempt's
// status. Events are keyed by session so one shopper's attempts stay ordered.
func (p *Producer) PublishCheckout(ctx context.Context, attempt *domain.CheckoutAttempt) error {
	eventType, err := checkoutEventType(attempt.Status)
	if err != nil {
		return err
	}

	var count int
	for _, l := range attempt.Lines {
		count += l.Quantity
	}

	data := CheckoutData{
		AttemptID:     attempt.ID,
		SessionID:     attempt.SessionID,
		Status:        string(attempt.Status),
		ItemCount:     count,
		Subtotal:      attempt.Subtotal,
		Currency:      attempt.Currency,
		RemoteCartID:  attempt.RemoteCartID,
		FailureKind:   string(attempt.FailureKind),
		FailureReason: attempt.FailureReason,
	}

	if err := p.publish(ctx, TopicCheckout, eventType, attempt.SessionID, AggregateTypeCheckout, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published checkout event",
		slog.String("event_type", eventType),
		slog.String("attempt_id", attempt.ID),
	)
	return nil
}

func (p *Producer) publish(ctx context.Context, topic, eventType, key, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(eventType, key, aggregateType, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", eventType, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}
	return nil
}

func checkoutEventType(status domain.AttemptStatus) (string, error) {
	switch status {
	case domain.AttemptPending:
		return TypeCheckoutStarted, nil
	case domain.AttemptRedirected:
		return TypeCheckoutRedirected, nil
	case domain.AttemptFailed:
		return TypeCheckoutFailed, nil
	case domain.AttemptAbandoned:
		return TypeCheckoutAbandoned, nil
	default:
		return "", fmt.Errorf("no checkout event for status %q", status)
	}
}
