package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/replyloop/x-reply-bot/internal/config"
	"github.com/sirupsen/logrus"
)

// ErrLimited is returned when a guarded call is rejected because the token
// bucket is empty or the circuit is open. It is distinct from ErrCircuitOpen,
// which the breaker itself returns once a call has been admitted.
var ErrLimited = errors.New("rate limit exceeded or circuit breaker open")

const (
	twitterWindow    = 15 * time.Minute
	generationWindow = time.Hour

	// Upper bounds on a single sleep inside the polling waits.
	maxTwitterWait    = 60 * time.Second
	maxGenerationWait = 300 * time.Second
)

// ResourceStatus is a read-only snapshot of one guarded resource.
type ResourceStatus struct {
	AvailableTokens int           `json:"available_tokens"`
	CircuitState    CircuitState  `json:"circuit_state"`
	TimeUntilTokens time.Duration `json:"time_until_tokens"`
}

// Status is a snapshot of all guarded resources, for health endpoints.
type Status struct {
	TwitterRead  ResourceStatus `json:"twitter_read"`
	TwitterWrite ResourceStatus `json:"twitter_write"`
	Generation   ResourceStatus `json:"generation"`
}

// Limiter guards all outbound API calls with one token bucket per resource and
// a circuit breaker per upstream. Twitter read and write share one breaker
// because both hit the same host: an outage tripping the breaker on writes
// should also stop reads, while their independent buckets keep read quota from
// being consumed by write failures.
type Limiter struct {
	twitterRead  *TokenBucket
	twitterWrite *TokenBucket
	generation   *TokenBucket

	twitterCircuit    *CircuitBreaker
	generationCircuit *CircuitBreaker
}

// NewLimiter builds a limiter from rate limit configuration.
func NewLimiter(cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		twitterRead:  NewTokenBucket(cfg.TwitterReadPer15Min, twitterWindow),
		twitterWrite: NewTokenBucket(cfg.TwitterWritePer15Min, twitterWindow),
		generation:   NewTokenBucket(cfg.GenerationPerHour, generationWindow),

		twitterCircuit: NewCircuitBreaker(CircuitBreakerConfig{
			FailureThreshold: cfg.TwitterFailureThreshold,
			RecoveryTimeout:  cfg.TwitterRecoveryTimeout,
			SuccessThreshold: cfg.TwitterSuccessThreshold,
		}),
		generationCircuit: NewCircuitBreaker(CircuitBreakerConfig{
			FailureThreshold: cfg.GenerationFailureThreshold,
			RecoveryTimeout:  cfg.GenerationRecoveryTimeout,
			SuccessThreshold: cfg.GenerationSuccessThreshold,
		}),
	}
}

// CanMakeTwitterRead reports whether a Twitter read call may proceed now,
// consuming a token if so. A token is only consumed when the breaker is not
// open at check time.
func (l *Limiter) CanMakeTwitterRead() bool {
	return l.twitterCircuit.State() != StateOpen && l.twitterRead.Consume(1)
}

// CanMakeTwitterWrite reports whether a Twitter write call may proceed now,
// consuming a token if so.
func (l *Limiter) CanMakeTwitterWrite() bool {
	return l.twitterCircuit.State() != StateOpen && l.twitterWrite.Consume(1)
}

// CanMakeGenerationRequest reports whether a reply-generation call may proceed
// now, consuming a token if so.
func (l *Limiter) CanMakeGenerationRequest() bool {
	return l.generationCircuit.State() != StateOpen && l.generation.Consume(1)
}

// TwitterReadCall runs fn as a rate-limited Twitter read.
func (l *Limiter) TwitterReadCall(fn func() error) error {
	if !l.CanMakeTwitterRead() {
		return fmt.Errorf("twitter read: %w", ErrLimited)
	}
	return l.twitterCircuit.Call(fn)
}

// TwitterWriteCall runs fn as a rate-limited Twitter write.
func (l *Limiter) TwitterWriteCall(fn func() error) error {
	if !l.CanMakeTwitterWrite() {
		return fmt.Errorf("twitter write: %w", ErrLimited)
	}
	return l.twitterCircuit.Call(fn)
}

// GenerationCall runs fn as a rate-limited reply-generation request.
func (l *Limiter) GenerationCall(fn func() error) error {
	if !l.CanMakeGenerationRequest() {
		return fmt.Errorf("generation: %w", ErrLimited)
	}
	return l.generationCircuit.Call(fn)
}

// GetStatus returns a snapshot of all buckets and breakers.
func (l *Limiter) GetStatus() Status {
	return Status{
		TwitterRead: ResourceStatus{
			AvailableTokens: l.twitterRead.AvailableTokens(),
			CircuitState:    l.twitterCircuit.State(),
			TimeUntilTokens: l.twitterRead.TimeUntilTokens(1),
		},
		TwitterWrite: ResourceStatus{
			AvailableTokens: l.twitterWrite.AvailableTokens(),
			CircuitState:    l.twitterCircuit.State(),
			TimeUntilTokens: l.twitterWrite.TimeUntilTokens(1),
		},
		Generation: ResourceStatus{
			AvailableTokens: l.generation.AvailableTokens(),
			CircuitState:    l.generationCircuit.State(),
			TimeUntilTokens: l.generation.TimeUntilTokens(1),
		},
	}
}

// WaitForTwitterRead blocks until a Twitter read token is consumed or the
// timeout elapses. Returns true once a token has been taken.
func (l *Limiter) WaitForTwitterRead(ctx context.Context, timeout time.Duration) bool {
	return l.waitFor(ctx, timeout, maxTwitterWait, l.CanMakeTwitterRead, l.twitterRead)
}

// WaitForTwitterWrite blocks until a Twitter write token is consumed or the
// timeout elapses.
func (l *Limiter) WaitForTwitterWrite(ctx context.Context, timeout time.Duration) bool {
	return l.waitFor(ctx, timeout, maxTwitterWait, l.CanMakeTwitterWrite, l.twitterWrite)
}

// WaitForGeneration blocks until a generation token is consumed or the timeout
// elapses.
func (l *Limiter) WaitForGeneration(ctx context.Context, timeout time.Duration) bool {
	return l.waitFor(ctx, timeout, maxGenerationWait, l.CanMakeGenerationRequest, l.generation)
}

// waitFor is the one legitimately blocking operation in this package: a
// bounded polling loop with sleep increments capped at maxWait per iteration.
func (l *Limiter) waitFor(ctx context.Context, timeout, maxWait time.Duration, canMake func() bool, bucket *TokenBucket) bool {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if canMake() {
			return true
		}

		wait := bucket.TimeUntilTokens(1)
		if wait > maxWait {
			wait = maxWait
		}
		if wait <= 0 {
			// Breaker is open rather than tokens missing; back off briefly.
			wait = time.Second
		}
		if remaining := time.Until(deadline); wait > remaining {
			wait = remaining
		}

		select {
		case <-ctx.Done():
			logrus.Debugf("Rate limiter wait cancelled: %v", ctx.Err())
			return false
		case <-time.After(wait):
		}
	}

	return false
}
