// Package remote is the HTTP client for the remote document store. Requests
// are retried with exponential backoff, rate limited, and guarded by a circuit
// breaker. Every response body is a Result envelope.
package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for status classification. Use errors.Is(err, remote.ErrNotFound).
var (
	ErrBadRequest   = errors.New("remote: bad request")
	ErrUnauthorized = errors.New("remote: unauthorized")
	ErrForbidden    = errors.New("remote: forbidden")
	ErrNotFound     = errors.New("remote: not found")
	ErrConflict     = errors.New("remote: conflict")
	ErrThrottled    = errors.New("remote: throttled")
	ErrServerError  = errors.New("remote: server error")

	// ErrRejected is used when the server answered 2xx but the envelope says
	// success=false.
	ErrRejected = errors.New("remote: operation rejected")

	// ErrCircuitOpen means the breaker refused the request without sending it.
	ErrCircuitOpen = errors.New("remote: circuit open")

	// ErrInvalidResponse means the body was not a valid envelope.
	ErrInvalidResponse = errors.New("remote: invalid response")

	// ErrNotLoggedIn means no token file exists.
	ErrNotLoggedIn = errors.New("remote: not logged in")
)

// Error carries the remote store's own message and code, preserved verbatim,
// with the HTTP status and request ID for debugging.
type Error struct {
	StatusCode int
	RequestID  string
	Code       string // from the envelope, e.g. "permission-denied"
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}

	if e.RequestID != "" {
		return fmt.Sprintf("remote: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, msg)
	}

	return fmt.Sprintf("remote: HTTP %d: %s", e.StatusCode, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsClientError reports whether err is a 4xx from the remote (or an envelope
// rejection): the request reached a healthy server that refused it.
func IsClientError(err error) bool {
	var re *Error
	if !errors.As(err, &re) {
		return false
	}

	return re.StatusCode >= http.StatusBadRequest && re.StatusCode < http.StatusInternalServerError ||
		errors.Is(re.Err, ErrRejected)
}

// classifyStatus maps an HTTP status code to a sentinel error.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return ErrInvalidResponse
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
