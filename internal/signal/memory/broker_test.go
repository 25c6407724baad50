package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chiefduck/hellbound-sauces-sub000/internal/signal"
)

func TestBroker_DeliversToSessionOnly(t *testing.T) {
	b := NewBroker()
	ctx := context.Background()

	a, err := b.Subscribe(ctx, "a")
	require.NoError(t, err)
	other, err := b.Subscribe(ctx, "b")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "a", signal.Signal{State: signal.Visible, At: time.Now()}))

	select {
	case sig := <-a.C():
		assert.Equal(t, signal.Visible, sig.State)
	case <-time.After(time.Second):
		t.Fatal("signal not delivered")
	}
	assert.Empty(t, other.C())
}

func TestBroker_CloseSubscriptionIsIdempotent(t *testing.T) {
	b := NewBroker()
	sub, err := b.Subscribe(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 1, b.Subscribers("a"))

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Equal(t, 0, b.Subscribers("a"))

	_, open := <-sub.C()
	assert.False(t, open)
}

func TestBroker_PublishNeverBlocks(t *testing.T) {
	b := NewBroker()
	_, err := b.Subscribe(context.Background(), "a")
	require.NoError(t, err)

	for i := 0; i < subscriberBuffer*3; i++ {
		require.NoError(t, b.Publish(context.Background(), "a", signal.Signal{State: signal.Visible}))
	}
}

func TestBroker_CloseEndsSubscriptions(t *testing.T) {
	b := NewBroker()
	sub, err := b.Subscribe(context.Background(), "a")
	require.NoError(t, err)

	require.NoError(t, b.Close())
	_, open := <-sub.C()
	assert.False(t, open)
	require.NoError(t, sub.Close())

	late, err := b.Subscribe(context.Background(), "a")
	require.NoError(t, err)
	_, open = <-late.C()
	assert.False(t, open)
}

func TestParseState(t *testing.T) {
	s, err := signal.ParseState("visible")
	require.NoError(t, err)
	assert.Equal(t, signal.Visible, s)

	_, err = signal.ParseState("prerender")
	assert.Error(t, err)
}
