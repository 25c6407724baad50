// Package redis carries lifecycle signals over Redis Pub/Sub so any replica
// (or an edge worker) can deliver a visibility change to the replica that
// owns the session.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/chiefduck/hellbound-sauces-sub000/internal/signal"
)

const defaultPrefix = "storefront:lifecycle"

// Bus publishes and subscribes on one channel per session.
type Bus struct {
	client *goredis.Client
	prefix string
	logger *slog.Logger
}

// NewBus creates a Redis-backed signal bus. An empty prefix uses
// "storefront:lifecycle".
func NewBus(client *goredis.Client, prefix string, logger *slog.Logger) *Bus {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Bus{client: client, prefix: prefix, logger: logger}
}

func (b *Bus) channel(sessionID string) string {
	return b.prefix + ":" + sessionID
}

// Publish sends sig to the session's channel.
func (b *Bus) Publish(ctx context.Context, sessionID string, sig signal.Signal) error {
	if sig.At.IsZero() {
		sig.At = time.Now().UTC()
	}
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(sessionID), payload).Err(); err != nil {
		return fmt.Errorf("publish signal: %w", err)
	}
	return nil
}

// Subscribe listens on the session's channel. The subscription is confirmed
// before returning, so a Publish issued afterwards is not lost.
func (b *Bus) Subscribe(ctx context.Context, sessionID string) (signal.Subscription, error) {
	ps := b.client.Subscribe(ctx, b.channel(sessionID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", b.channel(sessionID), err)
	}

	sub := &subscription{
		ps:     ps,
		out:    make(chan signal.Signal, 8),
		done:   make(chan struct{}),
		logger: b.logger.With(slog.String("session_id", sessionID)),
	}
	go sub.pump()
	return sub, nil
}

type subscription struct {
	ps     *goredis.PubSub
	out    chan signal.Signal
	done   chan struct{}
	logger *slog.Logger
	once   sync.Once
}

func (s *subscription) C() <-chan signal.Signal { return s.out }

func (s *subscription) pump() {
	defer close(s.out)
	msgs := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var sig signal.Signal
			if err := json.Unmarshal([]byte(msg.Payload), &sig); err != nil {
				s.logger.Warn("dropping malformed lifecycle signal", slog.String("error", err.Error()))
				continue
			}
			if _, err := signal.ParseState(string(sig.State)); err != nil {
				s.logger.Warn("dropping lifecycle signal", slog.String("error", err.Error()))
				continue
			}
			select {
			case s.out <- sig:
			default:
			}
		}
	}
}

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
