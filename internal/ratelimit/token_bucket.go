package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is a bounded request quota that refills in discrete whole-period
// increments. Fractional progress within the current period is not tracked.
// All methods are safe for concurrent use.
type TokenBucket struct {
	mu           sync.Mutex
	capacity     int
	tokens       int
	refillPeriod time.Duration
	lastRefill   time.Time
	now          func() time.Time
}

// NewTokenBucket creates a bucket that starts full.
func NewTokenBucket(capacity int, refillPeriod time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPeriod: refillPeriod,
		lastRefill:   time.Now(),
		now:          time.Now,
	}
}

// Consume atomically takes n tokens from the bucket. It returns false and
// leaves the bucket unchanged when fewer than n tokens are available.
func (b *TokenBucket) Consume(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()

	if b.tokens >= n {
		b.tokens -= n
		return true
	}
	return false
}

// AvailableTokens returns the current token count after applying any due refill.
func (b *TokenBucket) AvailableTokens() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	return b.tokens
}

// TimeUntilTokens returns how long until n tokens are available, or zero if
// they already are. The wait is a whole number of refill periods.
func (b *TokenBucket) TimeUntilTokens(n int) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()

	if b.tokens >= n {
		return 0
	}

	deficit := n - b.tokens
	periods := (deficit + b.capacity - 1) / b.capacity
	return time.Duration(periods) * b.refillPeriod
}

// refill adds capacity tokens for every whole period elapsed since lastRefill,
// capped at capacity. The refill clock advances by exactly the consumed
// periods, not to now, so the window phase stays aligned. Callers must hold mu.
func (b *TokenBucket) refill() {
	elapsed := b.now().Sub(b.lastRefill)
	if elapsed < b.refillPeriod {
		return
	}

	periods := int(elapsed / b.refillPeriod)
	b.tokens += periods * b.capacity
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = b.lastRefill.Add(time.Duration(periods) * b.refillPeriod)
}
