package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("service down")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestBreaker(clock *fakeClock, settings Settings) *Breaker {
	settings.Name = "test"
	b := New(settings)
	b.now = clock.now
	return b
}

func fail(ctx context.Context) error    { return errDown }
func succeed(ctx context.Context) error { return nil }

func TestBreaker_OpensAfterConsecutiveOutages(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := newTestBreaker(clock, Settings{Trips: 2, CoolDown: time.Minute})
	ctx := context.Background()

	assert.ErrorIs(t, b.Do(ctx, fail), errDown)
	assert.NoError(t, b.Do(ctx, succeed), "success resets the streak")
	assert.ErrorIs(t, b.Do(ctx, fail), errDown)
	assert.Equal(t, Closed, b.State())
	assert.ErrorIs(t, b.Do(ctx, fail), errDown)
	assert.Equal(t, Open, b.State())

	called := false
	err := b.Do(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
	assert.Equal(t, Stats{Calls: 4, Outages: 3, Rejected: 1}, b.Stats())
}

func TestBreaker_TrialSuccessCloses(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	var transitions []string
	b := newTestBreaker(clock, Settings{
		Trips:    1,
		CoolDown: time.Minute,
		OnTransition: func(name string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	clock.t = clock.t.Add(time.Minute)

	assert.NoError(t, b.Do(ctx, succeed))
	assert.Equal(t, Closed, b.State())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreaker_TrialOutageReopens(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := newTestBreaker(clock, Settings{Trips: 1, CoolDown: time.Second})
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	clock.t = clock.t.Add(time.Second)

	assert.ErrorIs(t, b.Do(ctx, fail), errDown)
	assert.Equal(t, Open, b.State())
	assert.ErrorIs(t, b.Do(ctx, succeed), ErrOpen, "cool-down restarts")
}

func TestBreaker_OneTrialAtATime(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := newTestBreaker(clock, Settings{Trips: 1, CoolDown: time.Second})
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	clock.t = clock.t.Add(time.Second)

	err := b.Do(ctx, func(ctx context.Context) error {
		require.Equal(t, HalfOpen, b.State())
		assert.ErrorIs(t, b.Do(ctx, succeed), ErrTrialInFlight)
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_IsOutageFilter(t *testing.T) {
	errInput := errors.New("bad input")
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := newTestBreaker(clock, Settings{
		Trips:    1,
		IsOutage: func(err error) bool { return !errors.Is(err, errInput) },
	})

	err := b.Do(context.Background(), func(ctx context.Context) error { return errInput })

	assert.ErrorIs(t, err, errInput)
	assert.Equal(t, Closed, b.State())
	assert.Equal(t, Stats{Calls: 1}, b.Stats())
}

func TestBreaker_Reset(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := newTestBreaker(clock, Settings{Trips: 1})
	_ = b.Do(context.Background(), fail)

	b.Reset()

	assert.Equal(t, Closed, b.State())
	assert.Zero(t, b.Stats())
}
