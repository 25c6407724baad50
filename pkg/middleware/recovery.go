package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/chiefduck/hellbound-sauces-sub000/pkg/logger"
)

// Recovery converts a handler panic into a 500 envelope. http.ErrAbortHandler
// is re-raised so net/http can drop the connection.
func Recovery(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				switch rec := recover(); rec {
				case nil:
				case http.ErrAbortHandler:
					panic(rec)
				default:
					l.LogAttrs(r.Context(), slog.LevelError, "handler panic",
						slog.String("panic", fmt.Sprint(rec)),
						slog.String("route", routePattern(r)),
						slog.String("correlation_id", logger.CorrelationIDFromContext(r.Context())),
						slog.String("stack", string(debug.Stack())),
					)
					writeJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
