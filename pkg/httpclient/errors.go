package httpclient

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/chiefduck/hellbound-sauces-sub000/pkg/errors"
)

// ParseResponseError drains and closes a non-2xx response and maps it to an
// AppError. upstream names the remote system in the message.
func ParseResponseError(resp *http.Response, upstream string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", upstream, resp.StatusCode, err)
	}

	msg := fmt.Sprintf("%s returned status %d", upstream, resp.StatusCode)
	if detail := strings.TrimSpace(string(body)); detail != "" {
		msg += ": " + detail
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperrors.RateLimited(msg)
	case resp.StatusCode == http.StatusGatewayTimeout:
		return apperrors.GatewayTimeout(msg)
	case resp.StatusCode >= 500:
		return apperrors.ServiceUnavailable(msg)
	case IsClientError(resp.StatusCode):
		return apperrors.Unprocessable(msg)
	default:
		return apperrors.BadGateway(msg)
	}
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
