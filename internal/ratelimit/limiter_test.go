package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func TestLimiter_Allow(t *testing.T) {
	limiter := NewLimiter(3, 100*time.Millisecond)

	for i := 0; i < 3; i++ {
		if !limiter.Allow() {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	if limiter.Allow() {
		t.Error("4th request should be denied")
	}

	time.Sleep(150 * time.Millisecond)
	if !limiter.Allow() {
		t.Error("Request after refill should be allowed")
	}
}

func TestLimiter_TokenRefill(t *testing.T) {
	limiter := NewLimiter(2, 50*time.Millisecond)

	limiter.Allow()
	limiter.Allow()

	if limiter.TokensAvailable() != 0 {
		t.Errorf("Expected 0 tokens, got %d", limiter.TokensAvailable())
	}

	time.Sleep(60 * time.Millisecond)
	if available := limiter.TokensAvailable(); available != 1 {
		t.Errorf("Expected 1 token after refill, got %d", available)
	}

	time.Sleep(60 * time.Millisecond)
	if available := limiter.TokensAvailable(); available != 2 {
		t.Errorf("Expected 2 tokens (max), got %d", available)
	}
}

func TestLimiter_WaitWithTimeout(t *testing.T) {
	limiter := NewLimiter(1, time.Second)

	if !limiter.WaitWithTimeout(100 * time.Millisecond) {
		t.Error("First wait should acquire the available token")
	}

	// Bucket is empty and refills every second; a short wait must time out.
	start := time.Now()
	if limiter.WaitWithTimeout(100 * time.Millisecond) {
		t.Error("Wait should time out with an empty bucket")
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("Wait returned too early: %v", elapsed)
	}
}

func TestLimiter_ConcurrentAccess(t *testing.T) {
	limiter := NewLimiter(10, 10*time.Millisecond)

	var wg sync.WaitGroup
	allowed := make(chan struct{}, 50)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Allow() {
				allowed <- struct{}{}
			}
		}()
	}

	wg.Wait()
	close(allowed)

	count := 0
	for range allowed {
		count++
	}

	if count > 12 {
		t.Errorf("Expected at most ~10 allowed requests, got %d", count)
	}
	if count < 10 {
		t.Errorf("Expected 10 allowed requests, got %d", count)
	}
}
