package repository

import (
	"context"

	"github.com/chiefduck/hellbound-sauces-sub000/internal/domain"
)

// AttemptRepository persists the checkout attempt audit log.
type AttemptRepository interface {
	// Create records a newly started attempt.
	Create(ctx context.Context, attempt *domain.CheckoutAttempt) error

	// Settle stores the final status of an attempt.
	Settle(ctx context.Context, attempt *domain.CheckoutAttempt) error

	// ListBySession returns a session's attempts, newest first.
	ListBySession(ctx context.Context, sessionID string, limit int) ([]domain.CheckoutAttempt, error)
}
