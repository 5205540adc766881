package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// CircuitState is the state of a circuit breaker.
type CircuitState string

const (
	// StateClosed means normal operation, calls pass through.
	StateClosed CircuitState = "closed"
	// StateOpen means the wrapped service is failing and calls are rejected.
	StateOpen CircuitState = "open"
	// StateHalfOpen means the breaker is probing whether the service recovered.
	StateHalfOpen CircuitState = "half_open"
)

// ErrCircuitOpen is returned when a call is rejected because the circuit is
// open. Callers should treat it as retryable later, not fatal.
var ErrCircuitOpen = errors.New("circuit breaker is open, service unavailable")

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	FailureThreshold int           // consecutive failures that open the circuit
	RecoveryTimeout  time.Duration // open duration before a trial call is allowed
	SuccessThreshold int           // half-open successes that close the circuit
}

// CircuitBreaker protects a dependency with the closed/open/half-open pattern.
// All state transitions happen under a single mutex; the wrapped function
// itself runs outside the lock.
type CircuitBreaker struct {
	mu              sync.Mutex
	config          CircuitBreakerConfig
	state           CircuitState
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	now             func() time.Time
}

// NewCircuitBreaker creates a breaker in the closed state.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
		now:    time.Now,
	}
}

// Call runs fn under circuit breaker protection. When the circuit is open and
// the recovery timeout has not elapsed, it returns ErrCircuitOpen without
// invoking fn. A failing fn's error propagates unchanged after bookkeeping.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}

	if err := fn(); err != nil {
		cb.onFailure()
		return err
	}

	cb.onSuccess()
	return nil
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastFailureTime) < cb.config.RecoveryTimeout {
			return ErrCircuitOpen
		}
		// Recovery timeout elapsed, admit this call as a trial.
		cb.state = StateHalfOpen
		cb.successCount = 0
	}

	return nil
}

func (cb *CircuitBreaker) onSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.state = StateClosed
			cb.failureCount = 0
			cb.successCount = 0
		}
	case StateClosed:
		cb.failureCount = 0
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = cb.now()

	// A single failure while probing re-opens immediately; closed state waits
	// for the full threshold.
	if cb.state == StateHalfOpen || cb.failureCount >= cb.config.FailureThreshold {
		cb.state = StateOpen
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset manually returns the breaker to closed with counters zeroed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.lastFailureTime = time.Time{}
}
