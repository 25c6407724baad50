// Package signal carries page lifecycle signals (visible/hidden) from the
// shopper's browser to the coordinator that owns the session.
package signal

import (
	"context"
	"fmt"
	"time"
)

// State is a page visibility state.
type State string

const (
	Visible State = "visible"
	Hidden  State = "hidden"
)

// ParseState validates a wire value.
func ParseState(s string) (State, error) {
	switch State(s) {
	case Visible, Hidden:
		return State(s), nil
	default:
		return "", fmt.Errorf("unknown visibility state %q", s)
	}
}

// Signal is one visibility transition.
type Signal struct {
	State State     `json:"state"`
	At    time.Time `json:"at"`
}

// Subscription delivers signals for one session until closed.
type Subscription interface {
	// C is closed after Close or when the source shuts down.
	C() <-chan Signal
	Close() error
}

// Source hands out per-session subscriptions.
type Source interface {
	Subscribe(ctx context.Context, sessionID string) (Subscription, error)
}

// Publisher delivers a signal to every subscriber of a session.
type Publisher interface {
	Publish(ctx context.Context, sessionID string, sig Signal) error
}

// Bus is a Source that can also publish.
type Bus interface {
	Source
	Publisher
}
