package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels classify failures independently of how they are reported.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrConflict       = errors.New("conflict")
	ErrUnprocessable  = errors.New("unprocessable")
	ErrBadGateway     = errors.New("bad gateway")
	ErrServiceUnavail = errors.New("service unavailable")
	ErrTimeout        = errors.New("timeout")
	ErrRateLimited    = errors.New("rate limited")
)

type class struct {
	sentinel error
	code     string
	status   int
}

// classes is ordered: HTTPStatus returns the first sentinel err wraps.
var classes = []class{
	{ErrNotFound, "NOT_FOUND", http.StatusNotFound},
	{ErrInvalidInput, "INVALID_INPUT", http.StatusBadRequest},
	{ErrConflict, "CONFLICT", http.StatusConflict},
	{ErrUnprocessable, "UNPROCESSABLE", http.StatusUnprocessableEntity},
	{ErrRateLimited, "RATE_LIMITED", http.StatusTooManyRequests},
	{ErrBadGateway, "BAD_GATEWAY", http.StatusBadGateway},
	{ErrServiceUnavail, "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable},
	{ErrTimeout, "GATEWAY_TIMEOUT", http.StatusGatewayTimeout},
}

// AppError is an error with a stable code and HTTP status for API clients.
// Message is shown to the shopper; Err stays server-side.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

// New creates an AppError with an explicit code and status wrapping err.
func New(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, Status: status, Err: err}
}

func fromSentinel(sentinel error, message string) *AppError {
	for _, c := range classes {
		if c.sentinel == sentinel {
			return &AppError{Code: c.code, Message: message, Status: c.status, Err: sentinel}
		}
	}
	panic("errors: unclassified sentinel " + sentinel.Error())
}

// NotFound reports a missing resource such as an unmounted session.
func NotFound(resource, id string) *AppError {
	return fromSentinel(ErrNotFound, fmt.Sprintf("%s with id %s not found", resource, id))
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError { return fromSentinel(ErrInvalidInput, message) }

// Conflict creates a 409 error.
func Conflict(message string) *AppError { return fromSentinel(ErrConflict, message) }

// Unprocessable creates a 422 for a request the upstream refused.
func Unprocessable(message string) *AppError { return fromSentinel(ErrUnprocessable, message) }

// RateLimited creates a 429 error.
func RateLimited(message string) *AppError { return fromSentinel(ErrRateLimited, message) }

// BadGateway creates a 502 for an unusable upstream response.
func BadGateway(message string) *AppError { return fromSentinel(ErrBadGateway, message) }

// ServiceUnavailable creates a 503 error.
func ServiceUnavailable(message string) *AppError { return fromSentinel(ErrServiceUnavail, message) }

// GatewayTimeout creates a 504 error.
func GatewayTimeout(message string) *AppError { return fromSentinel(ErrTimeout, message) }

// HTTPStatus maps err to a status: an AppError's own status, else the first
// wrapped sentinel, else 500.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	for _, c := range classes {
		if errors.Is(err, c.sentinel) {
			return c.status
		}
	}
	return http.StatusInternalServerError
}
