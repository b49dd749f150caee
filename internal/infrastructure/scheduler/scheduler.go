// Package scheduler runs the worker's periodic jobs, such as rebuilding
// and publishing the roster report.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOBS & SCHEDULES
// ══════════════════════════════════════════════════════════════════════════════

// Job is one unit of periodic work. Run's context is cancelled on Stop and
// when the job timeout elapses.
type Job interface {
	Name() string
	Description() string
	Run(ctx context.Context) error
}

// Schedule yields the activation after t.
type Schedule interface {
	Next(t time.Time) time.Time
	String() string
}

// RunResult is the outcome of one run.
type RunResult struct {
	Job        string
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Err        error
	Manual     bool
}

// OK reports whether the run returned no error.
func (r RunResult) OK() bool { return r.Err == nil }

var (
	ErrNilJob         = errors.New("scheduler: nil job")
	ErrNilSchedule    = errors.New("scheduler: nil schedule")
	ErrDuplicateJob   = errors.New("scheduler: job already registered")
	ErrJobNotFound    = errors.New("scheduler: job not found")
	ErrJobRunning     = errors.New("scheduler: job is already running")
	ErrJobPanicked    = errors.New("scheduler: job panicked")
	ErrAlreadyStarted = errors.New("scheduler: already started")
	ErrNotStarted     = errors.New("scheduler: not started")
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Config for New. Zero values mean UTC, a one second tick and no job timeout.
type Config struct {
	Logger     *slog.Logger
	Location   *time.Location
	Tick       time.Duration
	JobTimeout time.Duration

	// Now replaces the clock in tests.
	Now func() time.Time
}

// Scheduler checks its jobs every tick and starts the ones that are due.
// A job never overlaps with itself: a tick that finds it running is counted
// as skipped and the job moves on to its next activation.
type Scheduler struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	entries   map[string]*entry
	ctx       context.Context
	cancel    context.CancelFunc
	startedAt time.Time
	wg        sync.WaitGroup
}

type entry struct {
	job        Job
	schedule   Schedule
	runOnStart bool

	running  bool
	nextRun  time.Time
	lastRun  time.Time
	last     *RunResult
	runs     int64
	failures int64
	skipped  int64
	busy     time.Duration
}

func New(cfg Config) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "scheduler"),
		entries: make(map[string]*entry),
	}
}

// Option adjusts a registration.
type Option func(*entry)

// RunOnStart also runs the job as soon as Start is called.
func RunOnStart() Option {
	return func(e *entry) { e.runOnStart = true }
}

// Register adds job under its Name. Jobs can be registered before or after
// Start.
func (s *Scheduler) Register(job Job, schedule Schedule, opts ...Option) error {
	switch {
	case job == nil:
		return ErrNilJob
	case schedule == nil:
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}
	e := &entry{job: job, schedule: schedule, nextRun: schedule.Next(s.localNow())}
	for _, opt := range opts {
		opt(e)
	}
	s.entries[name] = e

	s.logger.Info("job registered", "job", name, "schedule", schedule.String(),
		"next_run", e.nextRun.Format(time.RFC3339), "run_on_start", e.runOnStart)
	return nil
}

func (s *Scheduler) localNow() time.Time { return s.cfg.Now().In(s.cfg.Location) }

// ─────────────────────────────────────────────────────────────────────────────
// Lifecycle
// ─────────────────────────────────────────────────────────────────────────────

// Start launches the tick loop and any RunOnStart jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.startedAt = s.cfg.Now()
	var startup []*entry
	for _, e := range s.entries {
		if e.runOnStart {
			startup = append(startup, e)
		}
	}
	s.mu.Unlock()

	s.logger.Info("scheduler started", "jobs", len(s.Jobs()))
	for _, e := range startup {
		s.dispatch(e)
	}

	s.wg.Add(1)
	go s.loop()
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.cancel()
	s.cancel = nil
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped", "uptime", s.cfg.Now().Sub(s.startedAt).String())
	return nil
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			now := s.localNow()
			s.mu.Lock()
			var due []*entry
			for _, e := range s.entries {
				if !now.Before(e.nextRun) {
					due = append(due, e)
				}
			}
			s.mu.Unlock()
			for _, e := range due {
				s.dispatch(e)
			}
		}
	}
}

func (s *Scheduler) dispatch(e *entry) {
	now := s.cfg.Now()

	s.mu.Lock()
	e.nextRun = e.schedule.Next(now.In(s.cfg.Location))
	if e.running {
		e.skipped++
		s.mu.Unlock()
		s.logger.Warn("job still running, skipping tick", "job", e.job.Name())
		return
	}
	e.running = true
	ctx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.run(ctx, e, now, false)
	}()
}

// run executes e once. The caller has already marked it running.
func (s *Scheduler) run(ctx context.Context, e *entry, startedAt time.Time, manual bool) RunResult {
	name := e.job.Name()
	s.logger.Info("job started", "job", name, "manual", manual)

	if s.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.JobTimeout)
		defer cancel()
	}

	err := runRecovered(ctx, e.job)
	finished := s.cfg.Now()
	res := RunResult{
		Job:        name,
		StartedAt:  startedAt,
		FinishedAt: finished,
		Duration:   finished.Sub(startedAt),
		Err:        err,
		Manual:     manual,
	}

	s.mu.Lock()
	e.running = false
	e.lastRun = startedAt
	e.last = &res
	e.runs++
	e.busy += res.Duration
	if err != nil {
		e.failures++
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed", "job", name, "duration", res.Duration.String(), "error", err)
	} else {
		s.logger.Info("job completed", "job", name, "duration", res.Duration.String())
	}
	return res
}

func runRecovered(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()
	return job.Run(ctx)
}

// Trigger runs a job now, on the caller's goroutine, leaving its schedule
// alone. The result is returned together with the job's error.
func (s *Scheduler) Trigger(ctx context.Context, name string) (*RunResult, error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	switch {
	case !ok:
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	case e.running:
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	e.running = true
	s.mu.Unlock()

	res := s.run(ctx, e, s.cfg.Now(), true)
	return &res, res.Err
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// JobStatus is what /api/v1/jobs reports per job.
type JobStatus struct {
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Schedule       string    `json:"schedule"`
	Running        bool      `json:"running"`
	LastRun        time.Time `json:"last_run"`
	NextRun        time.Time `json:"next_run"`
	Runs           int64     `json:"runs"`
	Failures       int64     `json:"failures"`
	Skipped        int64     `json:"skipped"`
	LastDurationMS int64     `json:"last_duration_ms"`
	LastError      string    `json:"last_error,omitempty"`
}

// Totals add up every job's counters.
type Totals struct {
	Runs          int64   `json:"runs"`
	Failures      int64   `json:"failures"`
	Skipped       int64   `json:"skipped"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMS int64   `json:"avg_duration_ms"`
}

func (e *entry) status() JobStatus {
	st := JobStatus{
		Name:        e.job.Name(),
		Description: e.job.Description(),
		Schedule:    e.schedule.String(),
		Running:     e.running,
		LastRun:     e.lastRun,
		NextRun:     e.nextRun,
		Runs:        e.runs,
		Failures:    e.failures,
		Skipped:     e.skipped,
	}
	if e.last != nil {
		st.LastDurationMS = e.last.Duration.Milliseconds()
		if e.last.Err != nil {
			st.LastError = e.last.Err.Error()
		}
	}
	return st
}

// Jobs lists every registered job, in no particular order.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.status())
	}
	return out
}

func (s *Scheduler) Job(name string) (JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return JobStatus{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return e.status(), nil
}

func (s *Scheduler) Totals() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()

	var t Totals
	var busy time.Duration
	for _, e := range s.entries {
		t.Runs += e.runs
		t.Failures += e.failures
		t.Skipped += e.skipped
		busy += e.busy
	}
	if t.Runs > 0 {
		t.SuccessRate = float64(t.Runs-t.Failures) / float64(t.Runs)
		t.AvgDurationMS = (busy / time.Duration(t.Runs)).Milliseconds()
	}
	return t
}
