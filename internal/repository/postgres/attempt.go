package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/chiefduck/hellbound-sauces-sub000/internal/domain"
	"github.com/chiefduck/hellbound-sauces-sub000/pkg/database"
	apperrors "github.com/chiefduck/hellbound-sauces-sub000/pkg/errors"
)

// DefaultListLimit caps ListBySession when the caller passes no limit.
const DefaultListLimit = 50

// AttemptRepository implements repository.AttemptRepository on PostgreSQL.
type AttemptRepository struct {
	db database.DBTX
}

// NewAttemptRepository creates a PostgreSQL-backed attempt repository.
func NewAttemptRepository(db database.DBTX) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// Create inserts a new attempt.
func (r *AttemptRepository) Create(ctx context.Context, a *domain.CheckoutAttempt) (err error) {
	linesJSON, err := json.Marshal(a.Lines)
	if err != nil {
		return fmt.Errorf("marshal lines: %w", err)
	}

	query := `
		INSERT INTO checkout_attempts (
			id, session_id, lines, subtotal, currency, status, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	ctx, end := database.TraceQuery(ctx, "CreateAttempt", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		a.ID,
		a.SessionID,
		linesJSON,
		a.Subtotal,
		a.Currency,
		a.Status,
		a.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert checkout attempt: %w", err)
	}
	return nil
}

// Settle records the outcome of an attempt. Only pending attempts can be
// settled.
func (r *AttemptRepository) Settle(ctx context.Context, a *domain.CheckoutAttempt) (err error) {
	query := `
		UPDATE checkout_attempts
		SET status = $1, failure_kind = $2, failure_reason = $3,
			remote_cart_id = $4, redirect_url = $5, settled_at = $6
		WHERE id = $7 AND status = 'pending'`

	ctx, end := database.TraceQuery(ctx, "SettleAttempt", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query,
		a.Status,
		nullableString(string(a.FailureKind)),
		nullableString(a.FailureReason),
		nullableString(a.RemoteCartID),
		nullableString(a.RedirectURL),
		a.SettledAt,
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("settle checkout attempt: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("checkout_attempt", a.ID)
	}
	return nil
}

// ListBySession returns up to limit attempts for sessionID, newest first.
func (r *AttemptRepository) ListBySession(ctx context.Context, sessionID string, limit int) (_ []domain.CheckoutAttempt, err error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT id, session_id, lines, subtotal, currency, status,
			failure_kind, failure_reason, remote_cart_id, redirect_url,
			started_at, settled_at
		FROM checkout_attempts
		WHERE session_id = $1
		ORDER BY started_at DESC
		LIMIT $2`

	ctx, end := database.TraceQuery(ctx, "ListAttemptsBySession", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list checkout attempts: %w", err)
	}
	defer rows.Close()

	attempts := []domain.CheckoutAttempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkout attempt rows: %w", err)
	}
	return attempts, nil
}

func scanAttempt(rows pgx.Rows) (*domain.CheckoutAttempt, error) {
	var (
		a             domain.CheckoutAttempt
		linesJSON     []byte
		failureKind   *string
		failureReason *string
		remoteCartID  *string
		redirectURL   *string
	)

	if err := rows.Scan(
		&a.ID,
		&a.SessionID,
		&linesJSON,
		&a.Subtotal,
		&a.Currency,
		&a.Status,
		&failureKind,
		&failureReason,
		&remoteCartID,
		&redirectURL,
		&a.StartedAt,
		&a.SettledAt,
	); err != nil {
		return nil, fmt.Errorf("scan checkout attempt row: %w", err)
	}

	if linesJSON != nil {
		if err := json.Unmarshal(linesJSON, &a.Lines); err != nil {
			return nil, fmt.Errorf("unmarshal lines: %w", err)
		}
	}
	if a.Lines == nil {
		a.Lines = []domain.AuditLine{}
	}
	if failureKind != nil {
		a.FailureKind = domain.FailureKind(*failureKind)
	}
	if failureReason != nil {
		a.FailureReason = *failureReason
	}
	if remoteCartID != nil {
		a.RemoteCartID = *remoteCartID
	}
	if redirectURL != nil {
		a.RedirectURL = *redirectURL
	}
	return &a, nil
}

// nullableString returns nil for the empty string.
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
