// Package memory is an in-process signal bus.
package memory

import (
	"context"
	"sync"

	"github.com/chiefduck/hellbound-sauces-sub000/internal/signal"
)

// subscriberBuffer bounds how many undelivered signals one subscriber holds.
// Further signals are dropped, which is harmless: a burst of "visible"
// signals collapses into one reset.
const subscriberBuffer = 8

// Broker fans signals out to subscribers keyed by session.
type Broker struct {
	mu     sync.Mutex
	subs   map[string]map[*subscription]struct{}
	closed bool
}

// NewBroker returns an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[*subscription]struct{})}
}

type subscription struct {
	broker    *Broker
	sessionID string
	ch        chan signal.Signal
	once      sync.Once
}

func (s *subscription) C() <-chan signal.Signal { return s.ch }

func (s *subscription) Close() error {
	s.broker.remove(s)
	return nil
}

// Subscribe registers a subscriber for sessionID.
func (b *Broker) Subscribe(_ context.Context, sessionID string) (signal.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscription{broker: b, sessionID: sessionID, ch: make(chan signal.Signal, subscriberBuffer)}
	if b.closed {
		close(sub.ch)
		return sub, nil
	}
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[*subscription]struct{})
	}
	b.subs[sessionID][sub] = struct{}{}
	return sub, nil
}

// Publish delivers sig to every current subscriber of sessionID without
// blocking.
func (b *Broker) Publish(_ context.Context, sessionID string, sig signal.Signal) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs[sessionID] {
		select {
		case sub.ch <- sig:
		default:
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions for sessionID.
func (b *Broker) Subscribers(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[sessionID])
}

// Close ends every subscription.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for id, set := range b.subs {
		for sub := range set {
			sub.once.Do(func() { close(sub.ch) })
		}
		delete(b.subs, id)
	}
	return nil
}

func (b *Broker) remove(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if set, ok := b.subs[sub.sessionID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, sub.sessionID)
		}
	}
	sub.once.Do(func() { close(sub.ch) })
}
