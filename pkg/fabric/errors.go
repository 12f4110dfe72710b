package fabric

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoCredentials means the terminal platform-default credential of
	// the chain could not be constructed.
	ErrNoCredentials = errors.New("no usable Fabric credentials")
	// ErrOperationFailed wraps a server-reported LRO failure.
	ErrOperationFailed = errors.New("long-running operation failed")
	// ErrOperationTimedOut means the LRO poll budget ran out.
	ErrOperationTimedOut = errors.New("long-running operation timed out")
	// ErrNotFound marks a 404 lookup.
	ErrNotFound = errors.New("ontology not found")
)

// ErrorCodeDisplayNameInUse is the service signal to switch from create to
// update during an upsert.
const ErrorCodeDisplayNameInUse = "ItemDisplayNameAlreadyInUse"

// APIError is a non-2xx response from the Fabric service.
type APIError struct {
	StatusCode int
	ErrorCode  string
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("fabric API error %d (%s): %s", e.StatusCode, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("fabric API error %d: %s", e.StatusCode, e.Message)
}

// Transient reports whether the error is retryable: throttling and
// temporary unavailability.
func (e *APIError) Transient() bool {
	return e.StatusCode == 429 || e.StatusCode == 503
}

// IsTransient reports whether err should be retried: transient API errors
// and transport failures.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	var open *CircuitOpenError
	if errors.As(err, &open) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Transport-level failures (timeouts, resets) are retryable.
	return err != nil
}

// IsDisplayNameInUse reports the create-time conflict that an upsert
// resolves by updating.
func IsDisplayNameInUse(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == ErrorCodeDisplayNameInUse
}

// CircuitOpenError is returned without touching the network while the
// breaker is open.
type CircuitOpenError struct {
	// Remaining is the time until the breaker probes again.
	Remaining time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open; retry in %s", e.Remaining.Round(time.Millisecond))
}
