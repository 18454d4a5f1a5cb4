package reader

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds surfaced by the pipeline. Lower layers wrap these with context.
var (
	ErrInvalidURL    = errors.New("invalid URL")
	ErrInvalidEngine = errors.New("invalid engine")
	ErrBlockedHost   = errors.New("access to internal resources is not allowed")
	ErrTimeout       = errors.New("request timeout")
	ErrHTTP          = errors.New("upstream HTTP error")
	ErrNavigation    = errors.New("navigation failed")
	ErrNoContent     = errors.New("no content found")
)

// HTTPError reports a non-2xx upstream response from the direct engine.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// Unwrap lets errors.Is(err, ErrHTTP) match.
func (e *HTTPError) Unwrap() error {
	return ErrHTTP
}

// Kind returns a stable label for err, suitable for metrics and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidURL):
		return "invalid_url"
	case errors.Is(err, ErrInvalidEngine):
		return "invalid_engine"
	case errors.Is(err, ErrBlockedHost):
		return "blocked_host"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrHTTP):
		return "http_error"
	case errors.Is(err, ErrNavigation):
		return "navigation_error"
	case errors.Is(err, ErrNoContent):
		return "no_content"
	default:
		return "internal"
	}
}

// StatusCode maps err onto the HTTP status returned to API clients.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidURL), errors.Is(err, ErrInvalidEngine):
		return http.StatusBadRequest
	case errors.Is(err, ErrBlockedHost):
		return http.StatusForbidden
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrHTTP), errors.Is(err, ErrNavigation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
