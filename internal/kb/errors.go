package kb

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for knowledge base failure modes. Callers use errors.Is
// to tell permanent conditions from transient ones.
var (
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrUnknownAttribute means FetchAttribute was asked for an
	// attribute no source exposes.
	ErrUnknownAttribute = errors.New("unknown attribute")

	// ErrAuth means the source rejected our credentials.
	ErrAuth = errors.New("knowledge base authentication failed")

	// ErrRateLimited means the upstream refused the request because of
	// request volume. Safe to retry after a pause.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnavailable means the upstream could not serve the request.
	// Transient; the matcher degrades rather than failing the match.
	ErrUnavailable = errors.New("knowledge base unavailable")
)

// APIError carries the HTTP status and message returned by a remote
// knowledge base.
type APIError struct {
	StatusCode int
	Message    string
	RecordID   string
}

func (e *APIError) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("kb: %s (status %d, record %s)", e.Message, e.StatusCode, e.RecordID)
	}
	return fmt.Sprintf("kb: %s (status %d)", e.Message, e.StatusCode)
}

// Unwrap maps the status code onto the matching sentinel so errors.Is
// works on wrapped APIErrors.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return ErrAuth
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.StatusCode >= 500:
		return ErrUnavailable
	}
	return nil
}

// IsNotFound reports whether err indicates a missing record.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsAuthError reports whether err indicates rejected credentials.
func IsAuthError(err error) bool {
	if errors.Is(err, ErrAuth) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) &&
		(apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden)
}

// IsRateLimited reports whether err indicates request-volume throttling.
func IsRateLimited(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}
