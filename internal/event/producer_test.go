package event

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chiefduck/hellbound-sauces-sub000/internal/domain"
	pkgkafka "github.com/chiefduck/hellbound-sauces-sub000/pkg/kafka"
	"github.com/chiefduck/hellbound-sauces-sub000/pkg/logger"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func newTestProducer() (*Producer, *fakeWriter) {
	w := &fakeWriter{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewProducer(pkgkafka.NewProducerWithWriter(w, []string{"localhost:9092"}, log), log), w
}

func decodeEvent(t *testing.T, msg kafka.Message) pkgkafka.Event {
	t.Helper()
	var e pkgkafka.Event
	require.NoError(t, json.Unmarshal(msg.Value, &e))
	return e
}

func TestPublishCartUpdated(t *testing.T) {
	p, w := newTestProducer()
	ctx := logger.WithCorrelationID(context.Background(), "req-42")

	cart := domain.CartState{
		Items: []domain.LineItem{{
			Product:   domain.Product{ID: "prod-reaper", Title: "Reaper's Revenge", Price: 1499, Currency: "USD"},
			Quantity:  2,
			VariantID: "gid://shopify/ProductVariant/101",
		}},
		ItemCount: 2,
		Subtotal:  2998,
		Currency:  "USD",
	}

	require.NoError(t, p.PublishCartUpdated(ctx, "sess-1", cart))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, TopicCart, msg.Topic)
	assert.Equal(t, "sess-1", string(msg.Key))

	e := decodeEvent(t, msg)
	assert.Equal(t, TypeCartUpdated, e.EventType)
	assert.Equal(t, "req-42", e.CorrelationID)
	assert.Equal(t, SourceStorefront, e.Source)

	var data CartUpdatedData
	require.NoError(t, e.UnmarshalData(&data))
	assert.Equal(t, 2, data.ItemCount)
	assert.Equal(t, int64(2998), data.Subtotal)
	require.Len(t, data.Items, 1)
	assert.Equal(t, "gid://shopify/ProductVariant/101", data.Items[0].VariantID)
}

func TestPublishCheckout_TypeFollowsStatus(t *testing.T) {
	tests := map[domain.AttemptStatus]string{
		domain.AttemptPending:    TypeCheckoutStarted,
		domain.AttemptRedirected: TypeCheckoutRedirected,
		domain.AttemptFailed:     TypeCheckoutFailed,
		domain.AttemptAbandoned:  TypeCheckoutAbandoned,
	}
	for status, want := range tests {
		t.Run(string(status), func(t *testing.T) {
			p, w := newTestProducer()
			a := &domain.CheckoutAttempt{
				ID:        "att-1",
				SessionID: "sess-1",
				Lines:     []domain.AuditLine{{Quantity: 2}, {Quantity: 1}},
				Subtotal:  3997,
				Status:    status,
				StartedAt: time.Now().UTC(),
			}
			if status == domain.AttemptFailed {
				a.FailureKind = domain.KindTimeout
			}

			require.NoError(t, p.PublishCheckout(context.Background(), a))
			require.Len(t, w.msgs, 1)
			assert.Equal(t, TopicCheckout, w.msgs[0].Topic)

			e := decodeEvent(t, w.msgs[0])
			assert.Equal(t, want, e.EventType)

			var data CheckoutData
			require.NoError(t, e.UnmarshalData(&data))
			assert.Equal(t, 3, data.ItemCount)
			assert.Equal(t, string(a.FailureKind), data.FailureKind)
		})
	}
}

func TestPublishCheckout_UnknownStatus(t *testing.T) {
	p, w := newTestProducer()
	err := p.PublishCheckout(context.Background(), &domain.CheckoutAttempt{Status: "bogus"})
	require.Error(t, err)
	assert.Empty(t, w.msgs)
}

func TestPublish_WriterError(t *testing.T) {
	p, w := newTestProducer()
	w.err = errors.New("leader not available")

	err := p.PublishCartUpdated(context.Background(), "sess-1", domain.CartState{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish cart.updated event")
}
