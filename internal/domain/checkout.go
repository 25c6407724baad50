package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CheckoutLine is the remote request shape for one line.
type CheckoutLine struct {
	MerchandiseID string `json:"merchandiseId"`
	Quantity      int    `json:"quantity"`
}

// Money is a decimal amount as the remote system formats it.
type Money struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currency_code"`
}

// CheckoutSession is what the remote system hands back on success.
type CheckoutSession struct {
	ID          string `json:"id"`
	RedirectURL string `json:"redirect_url"`
	Total       Money  `json:"total"`
}

// CheckoutLines maps cart items to remote lines, in cart order.
func CheckoutLines(items []LineItem) []CheckoutLine {
	lines := make([]CheckoutLine, len(items))
	for i, li := range items {
		lines[i] = CheckoutLine{MerchandiseID: li.VariantID, Quantity: li.Quantity}
	}
	return lines
}

// Sentinel checkout failures. Every *CheckoutError matches exactly one of
// these with errors.Is.
var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrCheckoutInProgress = errors.New("checkout already in progress")
	ErrCheckoutCreation   = errors.New("checkout creation failed")
	ErrCheckoutResponse   = errors.New("checkout response invalid")
	ErrNetwork            = errors.New("network error")
)

// FailureKind classifies a failed checkout attempt.
type FailureKind string

const (
	KindEmptyCart  FailureKind = "empty_cart"
	KindInProgress FailureKind = "in_progress"
	KindCreation   FailureKind = "creation"
	KindResponse   FailureKind = "response"
	KindNetwork    FailureKind = "network"
	KindTimeout    FailureKind = "timeout"
)

func (k FailureKind) sentinel() error {
	switch k {
	case KindEmptyCart:
		return ErrEmptyCart
	case KindInProgress:
		return ErrCheckoutInProgress
	case KindCreation:
		return ErrCheckoutCreation
	case KindResponse:
		return ErrCheckoutResponse
	default:
		return ErrNetwork
	}
}

// Code is the stable machine-readable code for the kind.
func (k FailureKind) Code() string {
	switch k {
	case KindEmptyCart:
		return "EMPTY_CART"
	case KindInProgress:
		return "CHECKOUT_IN_PROGRESS"
	case KindCreation:
		return "CHECKOUT_CREATION_FAILED"
	case KindResponse:
		return "CHECKOUT_RESPONSE_INVALID"
	case KindTimeout:
		return "CHECKOUT_TIMEOUT"
	default:
		return "NETWORK_ERROR"
	}
}

func (k FailureKind) defaultMessage() string {
	switch k {
	case KindEmptyCart:
		return "Your cart is empty."
	case KindInProgress:
		return "Checkout is already in progress."
	case KindCreation:
		return "We couldn't start checkout. Please try again."
	case KindResponse:
		return "Checkout is unavailable right now. Please try again."
	case KindTimeout:
		return "Checkout is taking too long to respond. Please try again."
	default:
		return "We couldn't reach checkout. Check your connection and try again."
	}
}

// CheckoutError is a recoverable checkout failure. Reason is safe to show
// to the shopper.
type CheckoutError struct {
	Kind   FailureKind
	Reason string
	Err    error
}

// NewCheckoutError builds a CheckoutError of the given kind.
func NewCheckoutError(kind FailureKind, reason string, cause error) *CheckoutError {
	return &CheckoutError{Kind: kind, Reason: reason, Err: cause}
}

func (e *CheckoutError) Error() string {
	msg := e.Kind.sentinel().Error()
	if e.Reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// UserMessage is the text shown to the shopper: the remote reason for
// creation failures, a fixed message for everything else.
func (e *CheckoutError) UserMessage() string {
	if e.Kind == KindCreation && e.Reason != "" {
		return e.Reason
	}
	return e.Kind.defaultMessage()
}

// Unwrap exposes both the kind's sentinel and the underlying cause.
func (e *CheckoutError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

// AsCheckoutError returns err as a *CheckoutError, wrapping an expired
// deadline as a timeout and anything else as a network failure.
func AsCheckoutError(err error) *CheckoutError {
	var ce *CheckoutError
	if errors.As(err, &ce) {
		return ce
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewCheckoutError(KindTimeout, "", err)
	}
	return NewCheckoutError(KindNetwork, "", err)
}

// AttemptStatus tracks an audited checkout attempt.
type AttemptStatus string

const (
	AttemptPending    AttemptStatus = "pending"
	AttemptRedirected AttemptStatus = "redirected"
	AttemptFailed     AttemptStatus = "failed"
	AttemptAbandoned  AttemptStatus = "abandoned"
)

// AuditLine is a checkout line with the display data seen by the shopper.
// Price is informational; the remote system prices the order.
type AuditLine struct {
	ProductID     string `json:"product_id"`
	MerchandiseID string `json:"merchandise_id"`
	Title         string `json:"title"`
	UnitPrice     int64  `json:"unit_price"`
	Quantity      int    `json:"quantity"`
}

// CheckoutAttempt is the audit record of one ProceedToCheckout call that
// reached the remote system.
type CheckoutAttempt struct {
	ID            string        `json:"id"`
	SessionID     string        `json:"session_id"`
	Lines         []AuditLine   `json:"lines"`
	Subtotal      int64         `json:"subtotal"`
	Currency      string        `json:"currency"`
	Status        AttemptStatus `json:"status"`
	FailureKind   FailureKind   `json:"failure_kind,omitempty"`
	FailureReason string        `json:"failure_reason,omitempty"`
	RemoteCartID  string        `json:"remote_cart_id,omitempty"`
	RedirectURL   string        `json:"redirect_url,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	SettledAt     *time.Time    `json:"settled_at,omitempty"`
}

// AuditLines builds audit lines from cart items.
func AuditLines(items []LineItem) []AuditLine {
	lines := make([]AuditLine, len(items))
	for i, li := range items {
		lines[i] = AuditLine{
			ProductID:     li.Product.ID,
			MerchandiseID: li.VariantID,
			Title:         li.Product.Title,
			UnitPrice:     li.Product.Price,
			Quantity:      li.Quantity,
		}
	}
	return lines
}
