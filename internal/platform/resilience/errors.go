// Package resilience provides the fault-handling primitives shared by
// every upstream integration: bounded retry with error classification,
// per-principal token-bucket rate limiting, a bounded-concurrency
// semaphore, and a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// FetchError wraps an upstream transport or parse failure with enough
// context for retry classification and error messages.
type FetchError struct {
	Provider   string // upstream name, e.g. "jupiter-price"
	Op         string // logical operation, e.g. "quote"
	StatusCode int    // HTTP status, 0 when not applicable
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable classifies the failure: timeouts, connection errors, 5xx
// and 429 are transient; other 4xx (validation, auth) are terminal.
func (e *FetchError) Retryable() bool {
	switch {
	case e.StatusCode == 429:
		return true
	case e.StatusCode >= 500:
		return true
	case e.StatusCode >= 400:
		return false
	}
	return transientTransport(e.Err)
}

// IsRetryable is the default retry classifier. Typed FetchErrors are
// classified by status; anything else falls back to transport
// inspection and message heuristics.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Retryable()
	}

	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	// A denied rate-limit check surfaces directly; recovery goes
	// through CheckWithRetry, not the generic retry loop.
	if errors.Is(err, ErrRateLimitExceeded) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if transientTransport(err) {
		return true
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "invalid argument"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "validation"):
		return false
	case strings.Contains(msg, "status code 4") && !strings.Contains(msg, "status code 429"):
		return false
	}

	return true
}

// transientTransport reports whether err looks like a recoverable
// network failure (timeout, connection reset/refused).
func transientTransport(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "timeout")
}
