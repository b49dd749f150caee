// Package circuitbreaker stops calling a remote service after a run of
// outages and lets a single trial call through once the cool-down ends.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State of a Breaker.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

var (
	// ErrOpen rejects calls while the cool-down is running.
	ErrOpen = errors.New("circuit breaker: open")
	// ErrTrialInFlight rejects calls while the half-open trial is pending.
	ErrTrialInFlight = errors.New("circuit breaker: trial call in flight")
)

// Settings configures a Breaker. Zero values fall back to 5 trips and a 30s
// cool-down.
type Settings struct {
	Name string
	// Trips is the number of consecutive outages that opens the breaker.
	Trips    int
	CoolDown time.Duration
	// IsOutage filters which errors count. Nil counts every error.
	IsOutage     func(error) bool
	OnTransition func(name string, from, to State)
}

// Stats are running totals since New or the last Reset.
type Stats struct {
	Calls    int
	Outages  int
	Rejected int
}

// Breaker is safe for concurrent use.
type Breaker struct {
	settings Settings
	now      func() time.Time

	mu       sync.Mutex
	state    State
	streak   int
	openedAt time.Time
	trial    bool
	stats    Stats
}

func New(settings Settings) *Breaker {
	if settings.Trips <= 0 {
		settings.Trips = 5
	}
	if settings.CoolDown <= 0 {
		settings.CoolDown = 30 * time.Second
	}
	return &Breaker{settings: settings, now: time.Now}
}

// Do runs fn unless the breaker rejects the call, and records the outcome.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open {
		if b.now().Sub(b.openedAt) < b.settings.CoolDown {
			b.stats.Rejected++
			return ErrOpen
		}
		b.moveTo(HalfOpen)
	}
	if b.state == HalfOpen {
		if b.trial {
			b.stats.Rejected++
			return ErrTrialInFlight
		}
		b.trial = true
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	outage := err != nil && (b.settings.IsOutage == nil || b.settings.IsOutage(err))
	b.stats.Calls++
	if outage {
		b.stats.Outages++
	}

	switch b.state {
	case HalfOpen:
		b.trial = false
		if outage {
			b.trip()
		} else {
			b.moveTo(Closed)
		}
	case Closed:
		if !outage {
			b.streak = 0
			return
		}
		if b.streak++; b.streak >= b.settings.Trips {
			b.trip()
		}
	}
	// Calls admitted before the breaker opened finish here with no effect.
}

func (b *Breaker) trip() {
	b.openedAt = b.now()
	b.moveTo(Open)
}

func (b *Breaker) moveTo(to State) {
	from := b.state
	b.state = to
	b.streak = 0
	if from != to && b.settings.OnTransition != nil {
		b.settings.OnTransition(b.settings.Name, from, to)
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Reset closes the breaker and clears the totals.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.streak = 0
	b.trial = false
	b.stats = Stats{}
}

func (b *Breaker) Name() string { return b.settings.Name }
