package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel errors for resilience operations.
var (
	// ErrTimeout is matched by every *TimeoutError.
	ErrTimeout = errors.New("resilience: attempt timed out")

	// ErrStaleResponse marks a response that arrived after a newer request
	// for the same key was issued. It is dropped internally and never
	// surfaced to callers.
	ErrStaleResponse = errors.New("resilience: stale response discarded")
)

// NetworkError is a transport-level failure (connection refused, reset,
// DNS, ...). It is always retryable.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("network error: %v", e.Err)
	}
	return fmt.Sprintf("network error: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is a structured non-2xx response from the backend.
// 5xx responses are retried, 4xx responses are not.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("server error %d: %s", e.Status, msg)
}

// Temporary reports whether the status is worth retrying.
func (e *ServerError) Temporary() bool {
	return e.Status >= 500
}

// TimeoutError reports that a single attempt exceeded its time budget.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("resilience: attempt timed out after %s", e.After)
}

// Is makes errors.Is(err, ErrTimeout) true for any *TimeoutError.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Retryable is the default retry classification for fetch errors.
//
// Network errors, timeouts and 5xx server errors are retryable. 4xx server
// errors, stale responses and context cancellation are not. Errors outside
// the taxonomy are treated as transient and retried.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrStaleResponse) {
		return false
	}

	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return serverErr.Temporary()
	}
	return true
}

// StatusOf returns the HTTP status carried by err, or 0 when err is not a
// *ServerError.
func StatusOf(err error) int {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return serverErr.Status
	}
	return 0
}
