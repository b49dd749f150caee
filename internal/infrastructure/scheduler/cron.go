package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// CRON SCHEDULE
// ══════════════════════════════════════════════════════════════════════════════

// CronSchedule is a parsed 5-field cron expression:
// minute hour day-of-month month day-of-week.
//
// Examples:
//   - "*/15 * * * *" - every 15 minutes
//   - "0 21 * * 1-5" - weekdays at 21:00
//   - "30 6 1 * *"   - the first of each month at 06:30
//
// When both day fields are restricted a time matches if either does,
// as in classic cron.
type CronSchedule struct {
	raw      string
	minutes  uint64
	hours    uint64
	days     uint64
	months   uint64
	weekdays uint64

	anyDay     bool
	anyWeekday bool
}

var _ Schedule = (*CronSchedule)(nil)

// Common expressions.
const (
	Every5Minutes  = "*/5 * * * *"
	Every15Minutes = "*/15 * * * *"
	EveryHour      = "0 * * * *"
	EveryDay21PM   = "0 21 * * *"
	Weekdays7AM    = "0 7 * * 1-5"
)

type fieldRange struct {
	name     string
	min, max int
}

var cronFields = [5]fieldRange{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day", 1, 31},
	{"month", 1, 12},
	{"weekday", 0, 6},
}

// ParseCron parses a cron expression.
// Each field supports *, n, n-m, */s, n-m/s and comma lists of those.
func ParseCron(expr string) (*CronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("invalid cron expression %q: expected 5 fields, got %d", expr, len(fields))
	}

	var sets [5]uint64
	for i, f := range fields {
		set, err := parseCronField(f, cronFields[i])
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
		}
		sets[i] = set
	}

	return &CronSchedule{
		raw:        expr,
		minutes:    sets[0],
		hours:      sets[1],
		days:       sets[2],
		months:     sets[3],
		weekdays:   sets[4],
		anyDay:     fields[2] == "*",
		anyWeekday: fields[4] == "*",
	}, nil
}

// MustParseCron parses a cron expression or panics.
// Use only for constants.
func MustParseCron(expr string) *CronSchedule {
	cs, err := ParseCron(expr)
	if err != nil {
		panic(err)
	}
	return cs
}

func parseCronField(field string, r fieldRange) (uint64, error) {
	var set uint64
	for _, part := range strings.Split(field, ",") {
		bits, err := parseCronPart(part, r)
		if err != nil {
			return 0, err
		}
		set |= bits
	}
	return set, nil
}

func parseCronPart(part string, r fieldRange) (uint64, error) {
	rangePart, stepPart, hasStep := strings.Cut(part, "/")

	step := 1
	if hasStep {
		s, err := strconv.Atoi(stepPart)
		if err != nil || s <= 0 {
			return 0, fmt.Errorf("%s: invalid step %q", r.name, stepPart)
		}
		step = s
	}

	start, end := r.min, r.max
	switch {
	case rangePart == "*":
	case strings.Contains(rangePart, "-"):
		lo, hi, _ := strings.Cut(rangePart, "-")
		var err error
		if start, err = cronValue(lo, r); err != nil {
			return 0, err
		}
		if end, err = cronValue(hi, r); err != nil {
			return 0, err
		}
		if start > end {
			return 0, fmt.Errorf("%s: range %q is reversed", r.name, rangePart)
		}
	default:
		v, err := cronValue(rangePart, r)
		if err != nil {
			return 0, err
		}
		start = v
		if !hasStep {
			end = v
		}
	}

	var bits uint64
	for v := start; v <= end; v += step {
		bits |= 1 << uint(v)
	}
	return bits, nil
}

func cronValue(s string, r fieldRange) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid value %q", r.name, s)
	}
	if v < r.min || v > r.max {
		return 0, fmt.Errorf("%s: value %d out of range [%d-%d]", r.name, v, r.min, r.max)
	}
	return v, nil
}

// String returns the original expression.
func (cs *CronSchedule) String() string {
	return cs.raw
}

// Next returns the first matching minute strictly after t, in t's location.
// It returns the zero time if nothing matches within five years.
func (cs *CronSchedule) Next(t time.Time) time.Time {
	next := t.Truncate(time.Minute).Add(time.Minute)
	limit := next.AddDate(5, 0, 0)

	for next.Before(limit) {
		if !has(cs.months, int(next.Month())) {
			next = time.Date(next.Year(), next.Month()+1, 1, 0, 0, 0, 0, next.Location())
			continue
		}
		if !cs.dayMatches(next) {
			next = time.Date(next.Year(), next.Month(), next.Day()+1, 0, 0, 0, 0, next.Location())
			continue
		}
		if !has(cs.hours, next.Hour()) {
			next = time.Date(next.Year(), next.Month(), next.Day(), next.Hour()+1, 0, 0, 0, next.Location())
			continue
		}
		if !has(cs.minutes, next.Minute()) {
			next = next.Add(time.Minute)
			continue
		}
		return next
	}
	return time.Time{}
}

func (cs *CronSchedule) dayMatches(t time.Time) bool {
	dom := has(cs.days, t.Day())
	dow := has(cs.weekdays, int(t.Weekday()))
	switch {
	case cs.anyDay && cs.anyWeekday:
		return true
	case cs.anyDay:
		return dow
	case cs.anyWeekday:
		return dom
	default:
		return dom || dow
	}
}

func has(set uint64, v int) bool {
	return set&(1<<uint(v)) != 0
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULE PARSING
// ══════════════════════════════════════════════════════════════════════════════

// ParseSchedule accepts "@every <duration>", "@hourly", "@daily" or a cron
// expression.
func ParseSchedule(spec string) (Schedule, error) {
	spec = strings.TrimSpace(spec)
	switch {
	case spec == "":
		return nil, ErrNilSchedule
	case strings.HasPrefix(spec, "@every "):
		d, err := time.ParseDuration(strings.TrimSpace(strings.TrimPrefix(spec, "@every ")))
		if err != nil {
			return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("invalid schedule %q: interval must be positive", spec)
		}
		return NewIntervalSchedule(d), nil
	case spec == "@hourly":
		return ParseCron(EveryHour)
	case spec == "@daily" || spec == "@midnight":
		return ParseCron("0 0 * * *")
	default:
		return ParseCron(spec)
	}
}
