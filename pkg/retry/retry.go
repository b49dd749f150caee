// Package retry re-runs an operation with exponential backoff. An error is
// retried only when wrapped with Retryable or accepted by Policy.RetryIf;
// Permanent stops at once.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// marker tags an error for Do and is removed before Do returns.
type marker struct {
	err       error
	retryable bool
}

func (m *marker) Error() string { return m.err.Error() }
func (m *marker) Unwrap() error { return m.err }

// Retryable asks Do to try again.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &marker{err: err, retryable: true}
}

// Permanent makes Do give up even when RetryIf would accept err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &marker{err: err}
}

func unmark(err error) error {
	if m, ok := err.(*marker); ok {
		return m.err
	}
	return err
}

// Policy for New. Attempts counts the first call.
type Policy struct {
	Attempts int
	Base     time.Duration
	Cap      time.Duration
	Factor   float64
	// Jitter spreads each wait by up to this fraction either way.
	Jitter  float64
	RetryIf func(error) bool
	OnRetry func(attempt int, err error, wait time.Duration)
}

type Retrier struct {
	policy Policy
}

// New fills unset fields with 3 attempts, a 100ms base, a 30s cap and a
// factor of 2.
func New(p Policy) *Retrier {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.Base <= 0 {
		p.Base = 100 * time.Millisecond
	}
	if p.Cap <= 0 {
		p.Cap = 30 * time.Second
	}
	if p.Factor < 1 {
		p.Factor = 2
	}
	p.Jitter = min(max(p.Jitter, 0), 1)
	return &Retrier{policy: p}
}

func (r *Retrier) Attempts() int { return r.policy.Attempts }

// Do calls op until it succeeds, returns an error that is not retried, or
// runs out of attempts. A cancelled ctx ends the wait and returns the last
// error seen.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return unmark(last)
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		last = err
		if attempt >= r.policy.Attempts || !r.shouldRetry(err) {
			return unmark(err)
		}

		wait := r.backoff(attempt)
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, unmark(err), wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return unmark(last)
		case <-timer.C:
		}
	}
}

func (r *Retrier) shouldRetry(err error) bool {
	var m *marker
	if errors.As(err, &m) && !m.retryable {
		return false
	}
	if r.policy.RetryIf != nil {
		return r.policy.RetryIf(err)
	}
	return errors.As(err, &m) && m.retryable
}

// backoff is Base*Factor^(attempt-1), capped, then jittered.
func (r *Retrier) backoff(attempt int) time.Duration {
	d := float64(r.policy.Base) * math.Pow(r.policy.Factor, float64(attempt-1))
	d = math.Min(d, float64(r.policy.Cap))
	if r.policy.Jitter > 0 {
		d *= 1 + r.policy.Jitter*(2*rand.Float64()-1)
	}
	return time.Duration(d)
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, r *Retrier, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err == nil {
			out = v
		}
		return err
	})
	return out, err
}

// ─────────────────────────────────────────────────────────────────────────────
// Presets
// ─────────────────────────────────────────────────────────────────────────────

// NotasAPI retries the student service. A sleeping Render instance takes a
// few seconds to answer, so base should be generous.
func NotasAPI(attempts int, base, cap time.Duration, onRetry func(attempt int, err error, wait time.Duration)) *Retrier {
	return New(Policy{Attempts: attempts, Base: base, Cap: cap, Factor: 2, Jitter: 0.2, OnRetry: onRetry})
}

// Database retries anything but a cancelled or expired context. Callers mark
// errors that must not be retried with Permanent.
func Database() *Retrier {
	return New(Policy{
		Attempts: 3,
		Base:     50 * time.Millisecond,
		Cap:      time.Second,
		Factor:   2,
		Jitter:   0.05,
		RetryIf: func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		},
	})
}
