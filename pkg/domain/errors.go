package domain

import (
	"errors"
	"fmt"
)

// ErrRunNotFound is returned when a run ID cannot be found in the store.
var ErrRunNotFound = errors.New("run not found")

// ErrCacheEntryNotFound is returned by caches on a fingerprint miss.
var ErrCacheEntryNotFound = errors.New("cache entry not found")

// ErrCacheDrift is returned when a Put finds an existing entry for the
// same fingerprint holding a different result. Callers log it and keep
// the original entry; it is never fatal.
var ErrCacheDrift = errors.New("cache drift: differing result for existing fingerprint")

// ErrRunTerminal is returned when an operation targets a run that has
// already reached a terminal state.
var ErrRunTerminal = errors.New("run is in a terminal state")

// GatewayError wraps a failure reported by the model gateway.
// Retryable distinguishes transient transport failures (timeouts,
// throttling) from terminal ones.
type GatewayError struct {
	Retryable bool
	Err       error
}

func (e *GatewayError) Error() string {
	if e.Retryable {
		return fmt.Sprintf("gateway (retryable): %v", e.Err)
	}
	return fmt.Sprintf("gateway: %v", e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a gateway failure worth re-attempting
// within the invocation's bounded retry budget.
func IsRetryable(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Retryable
}

// ValidationFailedError is surfaced when an invocation exhausts its
// corrective retry budget without producing a schema-conforming response.
type ValidationFailedError struct {
	TaskID   string
	Attempts int
	Last     error
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("task %q: response failed validation after %d attempts: %v", e.TaskID, e.Attempts, e.Last)
}

func (e *ValidationFailedError) Unwrap() error { return e.Last }
