package scheduler

import (
	"fmt"
	"time"
)

// IntervalSchedule runs a job every Interval, measured from the previous
// start.
type IntervalSchedule struct {
	Interval time.Duration
}

var _ Schedule = (*IntervalSchedule)(nil)

// NewIntervalSchedule creates a new IntervalSchedule.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

// Next returns t plus the interval.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

// String returns the "@every" form accepted by ParseSchedule.
func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval)
}
