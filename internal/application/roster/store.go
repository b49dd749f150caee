// Package roster holds the in-memory list of students shown by the front-end
// and applies the results of API calls to it.
package roster

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gestao-notas/notas-hub/internal/domain/shared"
	"github.com/gestao-notas/notas-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONTRACTS
// ══════════════════════════════════════════════════════════════════════════════

// API is the remote student service as seen by the store. Every mutating call
// returns the full record held by the server.
type API interface {
	ListStudents(ctx context.Context) ([]student.Student, error)
	CreateStudent(ctx context.Context, name string) (student.Student, error)
	AddSubject(ctx context.Context, studentID, subjectName string) (student.Student, error)
	AddGrade(ctx context.Context, studentID, subjectName string, value float64) (student.Student, error)
	EditGrade(ctx context.Context, studentID, subjectName string, index int, value float64) (student.Student, error)
	AddLegacyGrade(ctx context.Context, studentID string, value float64) (student.Student, error)
	DeleteStudent(ctx context.Context, studentID string) error
}

// Status is the state of the container.
type Status string

const (
	// StatusIdle means no action is in flight and the last fetch succeeded.
	StatusIdle Status = "idle"
	// StatusLoading means at least one action is in flight.
	StatusLoading Status = "loading"
	// StatusError means the last list fetch failed. It persists until a
	// fetch succeeds.
	StatusError Status = "error"
)

// Snapshot is an immutable view of the store.
type Snapshot struct {
	Status   Status
	Students []student.Student

	// LoadErr is the error of the failed list fetch while Status is error
	// (or loading after an error).
	LoadErr error

	// Loaded is true once a list fetch has succeeded.
	Loaded bool

	// UpdatedAt is the time of the last applied change.
	UpdatedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithInitialDelay delays the first fetch issued by Start.
func WithInitialDelay(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.initialDelay = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

type entry struct {
	student student.Student
	// rev is the store revision of the last local write, or of the fetch
	// that delivered the record.
	rev uint64
}

// Store is the state container. It is safe for concurrent use.
//
// Actions on the same student are serialised, so their results are applied
// in issue order. A list fetch never overwrites a record written locally
// after the fetch started, never brings back a student deleted meanwhile and
// keeps students created meanwhile.
type Store struct {
	api          API
	logger       *slog.Logger
	now          func() time.Time
	initialDelay time.Duration

	studentLocks *keyedMutex

	mu         sync.Mutex
	entries    []*entry
	revision   uint64
	inFlight   int
	fetching   int
	fetchSeq   uint64
	appliedSeq uint64
	failed     bool
	loadErr    error
	loaded     bool
	updatedAt  time.Time
	tombstones map[string]uint64

	notifyMu     sync.Mutex
	listeners    map[int]func(Snapshot)
	nextListener int
}

// NewStore creates a Store backed by api.
func NewStore(api API, opts ...Option) *Store {
	s := &Store{
		api:          api,
		logger:       slog.Default(),
		now:          time.Now,
		studentLocks: newKeyedMutex(),
		tombstones:   make(map[string]uint64),
		listeners:    make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers fn to receive a snapshot after every transition.
// fn runs synchronously and must not call the store's actions.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.notifyMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.notifyMu.Unlock()

	return func() {
		s.notifyMu.Lock()
		delete(s.listeners, id)
		s.notifyMu.Unlock()
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Status returns the current status.
func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

// Student returns a copy of the student with the given ID.
func (s *Store) Student(id string) (student.Student, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.entries[i].student.Clone(), true
	}
	return student.Student{}, false
}

// ─────────────────────────────────────────────────────────────────────────────
// Fetch
// ─────────────────────────────────────────────────────────────────────────────

// Start waits for the initial delay and issues the first fetch.
func (s *Store) Start(ctx context.Context) error {
	if s.initialDelay > 0 {
		timer := time.NewTimer(s.initialDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return s.Load(ctx)
}

// Load fetches the full list and replaces the roster with it.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	s.inFlight++
	s.fetching++
	s.fetchSeq++
	seq := s.fetchSeq
	startRev := s.revision
	s.mu.Unlock()
	s.publish()

	students, err := s.api.ListStudents(ctx)

	s.mu.Lock()
	s.inFlight--
	s.fetching--
	switch {
	case seq < s.appliedSeq:
		// A fetch issued later has already been applied.
		s.logger.Debug("discarding stale roster fetch", "seq", seq, "applied_seq", s.appliedSeq)
	case err != nil:
		s.appliedSeq = seq
		s.failed = true
		s.loadErr = err
		s.logger.Warn("roster fetch failed", "error", err)
	default:
		s.appliedSeq = seq
		s.applyFetchLocked(students, startRev)
		s.failed = false
		s.loadErr = nil
		s.loaded = true
		s.updatedAt = s.now()
		s.logger.Debug("roster fetched", "students", len(students))
	}
	if s.fetching == 0 {
		// Tombstones only guard fetches that were in flight.
		clear(s.tombstones)
	}
	s.mu.Unlock()
	s.publish()

	return err
}

// Retry re-issues the list fetch after a failure.
func (s *Store) Retry(ctx context.Context) error {
	return s.Load(ctx)
}

func (s *Store) applyFetchLocked(fetched []student.Student, startRev uint64) {
	current := make(map[string]*entry, len(s.entries))
	for _, e := range s.entries {
		current[e.student.ID] = e
	}

	seen := make(map[string]bool, len(fetched))
	next := make([]*entry, 0, len(fetched))
	for _, f := range fetched {
		if rev, deleted := s.tombstones[f.ID]; deleted && rev > startRev {
			continue
		}
		seen[f.ID] = true
		if e, ok := current[f.ID]; ok && e.rev > startRev {
			next = append(next, e)
			continue
		}
		next = append(next, &entry{student: f.Clone(), rev: startRev})
	}

	// Created locally while the fetch was in flight.
	for _, e := range s.entries {
		if e.rev > startRev && !seen[e.student.ID] {
			next = append(next, e)
		}
	}
	s.entries = next
}

// ─────────────────────────────────────────────────────────────────────────────
// Mutations
// ─────────────────────────────────────────────────────────────────────────────

// CreateStudent creates a student and appends the server record.
func (s *Store) CreateStudent(ctx context.Context, name string) (student.Student, error) {
	s.begin()
	created, err := s.api.CreateStudent(ctx, name)

	s.mu.Lock()
	s.inFlight--
	if err == nil {
		s.revision++
		delete(s.tombstones, created.ID)
		if i := s.indexLocked(created.ID); i >= 0 {
			s.entries[i] = &entry{student: created.Clone(), rev: s.revision}
		} else {
			s.entries = append(s.entries, &entry{student: created.Clone(), rev: s.revision})
		}
		s.updatedAt = s.now()
	}
	s.mu.Unlock()
	s.publish()

	if err != nil {
		return student.Student{}, err
	}
	return created, nil
}

// AddSubject adds a subject to a student.
func (s *Store) AddSubject(ctx context.Context, studentID, subjectName string) (student.Student, error) {
	return s.mutate(ctx, "AddSubject", studentID, func(ctx context.Context) (student.Student, error) {
		return s.api.AddSubject(ctx, studentID, subjectName)
	})
}

// AddGrade appends a grade to a subject.
func (s *Store) AddGrade(ctx context.Context, studentID, subjectName string, value float64) (student.Student, error) {
	return s.mutate(ctx, "AddGrade", studentID, func(ctx context.Context) (student.Student, error) {
		return s.api.AddGrade(ctx, studentID, subjectName, value)
	})
}

// EditGrade replaces the grade at index within a subject.
func (s *Store) EditGrade(ctx context.Context, studentID, subjectName string, index int, value float64) (student.Student, error) {
	return s.mutate(ctx, "EditGrade", studentID, func(ctx context.Context) (student.Student, error) {
		return s.api.EditGrade(ctx, studentID, subjectName, index, value)
	})
}

// AddLegacyGrade appends a grade to the student's flat grade list.
func (s *Store) AddLegacyGrade(ctx context.Context, studentID string, value float64) (student.Student, error) {
	return s.mutate(ctx, "AddLegacyGrade", studentID, func(ctx context.Context) (student.Student, error) {
		return s.api.AddLegacyGrade(ctx, studentID, value)
	})
}

// DeleteStudent deletes a student remotely, then removes it locally.
func (s *Store) DeleteStudent(ctx context.Context, studentID string) error {
	unlock, err := s.studentLocks.Lock(ctx, studentID)
	if err != nil {
		return waitError("DeleteStudent", err)
	}
	defer unlock()

	s.begin()
	err = s.api.DeleteStudent(ctx, studentID)

	s.mu.Lock()
	s.inFlight--
	if err == nil {
		s.revision++
		if s.fetching > 0 {
			s.tombstones[studentID] = s.revision
		}
		if i := s.indexLocked(studentID); i >= 0 {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
		}
		s.updatedAt = s.now()
	}
	s.mu.Unlock()
	s.publish()

	return err
}

func (s *Store) mutate(ctx context.Context, op, studentID string, call func(context.Context) (student.Student, error)) (student.Student, error) {
	unlock, err := s.studentLocks.Lock(ctx, studentID)
	if err != nil {
		return student.Student{}, waitError(op, err)
	}
	defer unlock()

	s.begin()
	updated, err := call(ctx)

	s.mu.Lock()
	s.inFlight--
	if err == nil {
		if i := s.indexLocked(updated.ID); i >= 0 {
			s.revision++
			s.entries[i] = &entry{student: updated.Clone(), rev: s.revision}
			s.updatedAt = s.now()
		}
	}
	s.mu.Unlock()
	s.publish()

	if err != nil {
		s.logger.Debug("roster action failed", "op", op, "student_id", studentID, "error", err)
		return student.Student{}, err
	}
	return updated, nil
}

func (s *Store) begin() {
	s.mu.Lock()
	s.inFlight++
	s.mu.Unlock()
	s.publish()
}

func waitError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return shared.WrapError("roster", op, shared.ErrConnectivity, "cancelled while waiting for a previous action", err)
	}
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// Internals
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) statusLocked() Status {
	switch {
	case s.inFlight > 0:
		return StatusLoading
	case s.failed:
		return StatusError
	default:
		return StatusIdle
	}
}

func (s *Store) snapshotLocked() Snapshot {
	students := make([]student.Student, len(s.entries))
	for i, e := range s.entries {
		students[i] = e.student.Clone()
	}
	return Snapshot{
		Status:    s.statusLocked(),
		Students:  students,
		LoadErr:   s.loadErr,
		Loaded:    s.loaded,
		UpdatedAt: s.updatedAt,
	}
}

func (s *Store) indexLocked(id string) int {
	for i, e := range s.entries {
		if e.student.ID == id {
			return i
		}
	}
	return -1
}

// publish delivers the latest snapshot. Holding notifyMu across the snapshot
// and the delivery keeps listeners from observing states out of order.
func (s *Store) publish() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if len(s.listeners) == 0 {
		return
	}

	snap := s.Snapshot()
	for _, fn := range s.listeners {
		fn(snap)
	}
}
