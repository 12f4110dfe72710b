package fabric

import (
	"math"
	"sync"
	"time"
)

// BreakerState is the circuit breaker state machine position.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// Circuit breaker defaults.
const (
	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 2
	DefaultRecoveryTimeout  = 30 * time.Second
)

// CircuitBreaker trips after consecutive transient failures and probes
// recovery through a half-open state. Safe for concurrent use.
type CircuitBreaker struct {
	failureThreshold int
	successThreshold int
	recoveryTimeout  time.Duration
	now              func() time.Time

	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time
}

// NewCircuitBreaker builds a closed breaker. Zero arguments take defaults; a
// negative failure threshold disables tripping.
func NewCircuitBreaker(failureThreshold, successThreshold int, recoveryTimeout time.Duration) *CircuitBreaker {
	if failureThreshold < 0 {
		failureThreshold = math.MaxInt
	}
	if failureThreshold == 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if successThreshold <= 0 {
		successThreshold = DefaultSuccessThreshold
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = DefaultRecoveryTimeout
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		recoveryTimeout:  recoveryTimeout,
		now:              time.Now,
		state:            BreakerClosed,
	}
}

// Allow admits a call or fails fast with the remaining recovery time.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != BreakerOpen {
		return nil
	}
	elapsed := cb.now().Sub(cb.openedAt)
	if elapsed >= cb.recoveryTimeout {
		cb.state = BreakerHalfOpen
		cb.successes = 0
		return nil
	}
	return &CircuitOpenError{Remaining: cb.recoveryTimeout - elapsed}
}

// RecordSuccess counts toward recovery in half-open and clears the failure
// streak in closed.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerHalfOpen:
		cb.successes++
		if cb.successes >= cb.successThreshold {
			cb.state = BreakerClosed
			cb.failures = 0
			cb.successes = 0
		}
	case BreakerClosed:
		cb.failures = 0
	}
}

// RecordFailure counts a transient failure. A failure in half-open reopens
// immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerHalfOpen:
		cb.trip()
	case BreakerClosed:
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.trip()
		}
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = BreakerOpen
	cb.openedAt = cb.now()
	cb.failures = 0
	cb.successes = 0
}

// Reset restores the closed state unconditionally.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = BreakerClosed
	cb.failures = 0
	cb.successes = 0
}

// State returns the current state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
