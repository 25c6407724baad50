package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/chiefduck/hellbound-sauces-sub000/pkg/errors"
	"github.com/chiefduck/hellbound-sauces-sub000/pkg/logger"
	"github.com/chiefduck/hellbound-sauces-sub000/pkg/validator"
)

// Response is the JSON envelope every endpoint answers with.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse is the error half of the envelope. RequestID echoes the
// correlation id so shoppers can quote it to support.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err as an error envelope. AppErrors carry their own
// code, message and status. Other errors are classified by the sentinel they
// wrap, and anything unrecognised becomes an opaque 500. Server-side failures
// are logged with the request-scoped logger, or fallback when none is set.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	body := classify(err)
	body.RequestID = logger.CorrelationIDFromContext(r.Context())

	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		l := logger.FromContext(r.Context())
		if l == slog.Default() && fallback != nil {
			l = fallback
		}
		l.ErrorContext(r.Context(), "request failed",
			slog.String("code", body.Code),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}

	WriteJSON(w, status, Response{Error: body})
}

func classify(err error) *ErrorResponse {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return &ErrorResponse{Code: appErr.Code, Message: appErr.Message}
	case errors.Is(err, apperrors.ErrNotFound):
		return &ErrorResponse{Code: "NOT_FOUND", Message: "resource not found"}
	case errors.Is(err, apperrors.ErrInvalidInput):
		return &ErrorResponse{Code: "INVALID_INPUT", Message: err.Error()}
	case errors.Is(err, apperrors.ErrConflict):
		return &ErrorResponse{Code: "CONFLICT", Message: err.Error()}
	default:
		return &ErrorResponse{Code: "INTERNAL_ERROR", Message: "an internal error occurred"}
	}
}

// WriteValidationError answers 400. Validator errors list the offending
// fields; decode errors only carry a message.
func WriteValidationError(w http.ResponseWriter, err error) {
	body := &ErrorResponse{Code: "INVALID_INPUT", Message: err.Error()}
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		body = &ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "request validation failed",
			Fields:  valErr.Fields(),
		}
	}
	WriteJSON(w, http.StatusBadRequest, Response{Error: body})
}

// QueryInt reads the integer query parameter name, returning def when it is
// absent. Values outside [lo, hi] are an INVALID_INPUT error.
func QueryInt(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		return 0, apperrors.InvalidInput(fmt.Sprintf("%s must be between %d and %d", name, lo, hi))
	}
	return n, nil
}
