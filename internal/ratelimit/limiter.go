package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a token bucket used to pace calls against upstream surfaces
// that block aggressive clients, mainly the unauthenticated public search.
type Limiter struct {
	tokens     int
	maxTokens  int
	refillRate time.Duration
	mu         sync.Mutex
	lastRefill time.Time
}

// NewLimiter creates a token bucket holding maxTokens, refilled one token
// per refillRate.
func NewLimiter(maxTokens int, refillRate time.Duration) *Limiter {
	return &Limiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow consumes a token if one is available.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()

	if l.tokens > 0 {
		l.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available.
func (l *Limiter) Wait() {
	for !l.Allow() {
		time.Sleep(l.refillRate / time.Duration(l.maxTokens))
	}
}

// WaitWithTimeout waits for a token up to the given timeout. Returns false
// when the deadline passes without a token.
func (l *Limiter) WaitWithTimeout(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if l.Allow() {
			return true
		}

		sleep := l.refillRate / time.Duration(l.maxTokens)
		if remaining := time.Until(deadline); sleep > remaining {
			sleep = remaining
		}
		if sleep > 0 {
			time.Sleep(sleep)
		}
	}
	return false
}

// TokensAvailable returns the current token count.
func (l *Limiter) TokensAvailable() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	return l.tokens
}

// refill adds tokens owed since the last refill. Caller holds the mutex.
func (l *Limiter) refill() {
	now := time.Now()
	owed := int(now.Sub(l.lastRefill) / l.refillRate)
	if owed > 0 {
		l.tokens = min(l.maxTokens, l.tokens+owed)
		l.lastRefill = now
	}
}

// NewPublicSearchLimiter returns the bucket used for the browser-identity
// public tier. The public site search starts serving 403s well before any
// documented quota, so the defaults stay conservative.
func NewPublicSearchLimiter() *Limiter {
	return NewLimiter(5, 500*time.Millisecond)
}
