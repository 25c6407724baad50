// Package session keeps one coordinator per mounted storefront session.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chiefduck/hellbound-sauces-sub000/internal/coordinator"
	apperrors "github.com/chiefduck/hellbound-sauces-sub000/pkg/errors"
)

// Factory builds an unstarted coordinator for sessionID.
type Factory func(sessionID string) *coordinator.Coordinator

// Config tunes a Manager.
type Config struct {
	// IdleTTL evicts sessions untouched for this long. Zero disables eviction.
	IdleTTL time.Duration
	// MaxSessions caps concurrently mounted sessions. Zero means no cap.
	MaxSessions int
}

type entry struct {
	coord    *coordinator.Coordinator
	lastSeen time.Time
}

// Manager owns the mounted sessions. Each session is independent: two
// sessions never share cart state.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry
	factory  Factory
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewManager creates an empty manager.
func NewManager(factory Factory, cfg Config, logger *slog.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*entry),
		factory:  factory,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Mount starts a session. An empty id gets a fresh UUID. Mounting an id that
// is already mounted replaces it with an empty cart, the way a page reload
// does.
func (m *Manager) Mount(ctx context.Context, id string) (*coordinator.Coordinator, error) {
	if id == "" {
		id = uuid.New().String()
	}

	coord := m.factory(id)
	if err := coord.Start(ctx); err != nil {
		return nil, apperrors.ServiceUnavailable("lifecycle signals unavailable: " + err.Error())
	}

	m.mu.Lock()
	prev, replaced := m.sessions[id]
	if !replaced && m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		coord.Stop()
		return nil, apperrors.ServiceUnavailable("too many active sessions")
	}
	m.sessions[id] = &entry{coord: coord, lastSeen: m.now()}
	m.mu.Unlock()

	if replaced {
		prev.coord.Stop()
	}

	m.logger.InfoContext(ctx, "session mounted",
		slog.String("session_id", id),
		slog.Bool("replaced", replaced),
	)
	return coord, nil
}

// Get returns the mounted session and marks it as seen.
func (m *Manager) Get(id string) (*coordinator.Coordinator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[id]
	if !ok {
		return nil, apperrors.NotFound("session", id)
	}
	e.lastSeen = m.now()
	return e.coord, nil
}

// Unmount stops and forgets a session.
func (m *Manager) Unmount(id string) error {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return apperrors.NotFound("session", id)
	}
	e.coord.Stop()
	m.logger.Info("session unmounted", slog.String("session_id", id))
	return nil
}

// Sweep unmounts sessions idle since before now minus IdleTTL and returns
// how many were evicted.
func (m *Manager) Sweep(now time.Time) int {
	if m.cfg.IdleTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-m.cfg.IdleTTL)

	m.mu.Lock()
	var idle []*entry
	for id, e := range m.sessions {
		if e.lastSeen.Before(cutoff) {
			idle = append(idle, e)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, e := range idle {
		e.coord.Stop()
	}
	if len(idle) > 0 {
		m.logger.Info("idle sessions evicted", slog.Int("count", len(idle)))
	}
	return len(idle)
}

// Run sweeps every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(m.now())
		}
	}
}

// Len returns the number of mounted sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close unmounts every session.
func (m *Manager) Close() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()

	for _, e := range all {
		e.coord.Stop()
	}
}
