package notas

import (
	"context"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER - Token Bucket
// ══════════════════════════════════════════════════════════════════════════════

// RateLimiter is a token bucket shared by every request of a Client.
// The hosted student service sleeps when idle and throttles bursts on wake-up.
type RateLimiter struct {
	mu sync.Mutex

	maxTokens  float64
	refillRate float64 // tokens per second
	tokens     float64
	lastRefill time.Time

	// pausedUntil is set after a 429 so every caller waits it out.
	pausedUntil time.Time

	now func() time.Time
}

// NewRateLimiter creates a limiter with a full bucket of burst tokens.
// burst below 1 is treated as 1.
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	rl := &RateLimiter{
		maxTokens:  float64(burst),
		refillRate: requestsPerSecond,
		tokens:     float64(burst),
		now:        time.Now,
	}
	rl.lastRefill = rl.now()
	return rl
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		wait, ok := rl.tryAcquire()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TryAllow takes a token without blocking.
func (rl *RateLimiter) TryAllow() bool {
	_, ok := rl.tryAcquire()
	return ok
}

// RecordRateLimitHit empties the bucket and pauses for retryAfter
// (one refill period when zero).
func (rl *RateLimiter) RecordRateLimitHit(retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if retryAfter <= 0 {
		retryAfter = rl.tokenInterval()
	}
	rl.tokens = 0
	rl.lastRefill = rl.now()
	rl.pausedUntil = rl.lastRefill.Add(retryAfter)
}

func (rl *RateLimiter) tryAcquire() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Before(rl.pausedUntil) {
		return rl.pausedUntil.Sub(now), false
	}

	rl.refill(now)
	if rl.tokens < 1 {
		return time.Duration((1 - rl.tokens) * float64(rl.tokenInterval())), false
	}

	rl.tokens--
	return 0, true
}

// Must be called with lock held.
func (rl *RateLimiter) refill(now time.Time) {
	elapsed := now.Sub(rl.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
	rl.lastRefill = now
}

func (rl *RateLimiter) tokenInterval() time.Duration {
	if rl.refillRate <= 0 {
		return time.Second
	}
	return time.Duration(float64(time.Second) / rl.refillRate)
}
