package roster

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestao-notas/notas-hub/internal/domain/shared"
	"github.com/gestao-notas/notas-hub/internal/domain/student"
)

var errOffline = shared.WrapError("notas", "Request", shared.ErrConnectivity, "request failed", errors.New("connection refused"))

// fakeAPI answers every call through optional hooks.
type fakeAPI struct {
	listCalls int32

	list      func(ctx context.Context) ([]student.Student, error)
	create    func(ctx context.Context, name string) (student.Student, error)
	addGrade  func(ctx context.Context, id, subject string, value float64) (student.Student, error)
	addSubj   func(ctx context.Context, id, subject string) (student.Student, error)
	editGrade func(ctx context.Context, id, subject string, index int, value float64) (student.Student, error)
	legacy    func(ctx context.Context, id string, value float64) (student.Student, error)
	del       func(ctx context.Context, id string) error
}

func (f *fakeAPI) ListStudents(ctx context.Context) ([]student.Student, error) {
	atomic.AddInt32(&f.listCalls, 1)
	return f.list(ctx)
}

func (f *fakeAPI) CreateStudent(ctx context.Context, name string) (student.Student, error) {
	return f.create(ctx, name)
}

func (f *fakeAPI) AddSubject(ctx context.Context, id, subject string) (student.Student, error) {
	return f.addSubj(ctx, id, subject)
}

func (f *fakeAPI) AddGrade(ctx context.Context, id, subject string, value float64) (student.Student, error) {
	return f.addGrade(ctx, id, subject, value)
}

func (f *fakeAPI) EditGrade(ctx context.Context, id, subject string, index int, value float64) (student.Student, error) {
	return f.editGrade(ctx, id, subject, index, value)
}

func (f *fakeAPI) AddLegacyGrade(ctx context.Context, id string, value float64) (student.Student, error) {
	return f.legacy(ctx, id, value)
}

func (f *fakeAPI) DeleteStudent(ctx context.Context, id string) error {
	return f.del(ctx, id)
}

func listOf(students ...student.Student) func(context.Context) ([]student.Student, error) {
	return func(context.Context) ([]student.Student, error) { return students, nil }
}

func ana() student.Student {
	return student.Student{ID: "1", Name: "Ana", Subjects: []student.Subject{{Name: "Física", Grades: []student.Grade{7}}}}
}

func bruno() student.Student {
	return student.Student{ID: "2", Name: "Bruno", Subjects: []student.Subject{}}
}

func newTestStore(api *fakeAPI) *Store {
	return NewStore(api, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func ids(snap Snapshot) []string {
	out := make([]string, 0, len(snap.Students))
	for _, s := range snap.Students {
		out = append(out, s.ID)
	}
	return out
}

func TestStore_InitialState(t *testing.T) {
	s := newTestStore(&fakeAPI{})
	snap := s.Snapshot()

	assert.Equal(t, StatusIdle, snap.Status)
	assert.Empty(t, snap.Students)
	assert.False(t, snap.Loaded)
}

func TestStore_LoadSuccess(t *testing.T) {
	api := &fakeAPI{list: listOf(ana(), bruno())}
	s := newTestStore(api)

	var statuses []Status
	s.Subscribe(func(snap Snapshot) { statuses = append(statuses, snap.Status) })

	require.NoError(t, s.Load(context.Background()))

	snap := s.Snapshot()
	assert.Equal(t, StatusIdle, snap.Status)
	assert.True(t, snap.Loaded)
	assert.Equal(t, []string{"1", "2"}, ids(snap))
	assert.Equal(t, []Status{StatusLoading, StatusIdle}, statuses)
}

func TestStore_LoadFailureThenRetry(t *testing.T) {
	fail := true
	api := &fakeAPI{list: func(context.Context) ([]student.Student, error) {
		if fail {
			return nil, errOffline
		}
		return []student.Student{ana()}, nil
	}}
	s := newTestStore(api)

	err := s.Load(context.Background())
	require.Error(t, err)

	snap := s.Snapshot()
	assert.Equal(t, StatusError, snap.Status)
	assert.Empty(t, snap.Students)
	assert.ErrorIs(t, snap.LoadErr, shared.ErrConnectivity)

	fail = false
	require.NoError(t, s.Retry(context.Background()))

	snap = s.Snapshot()
	assert.Equal(t, StatusIdle, snap.Status)
	assert.Nil(t, snap.LoadErr)
	assert.Equal(t, []string{"1"}, ids(snap))
	assert.Equal(t, int32(2), atomic.LoadInt32(&api.listCalls))
}

func TestStore_LoadFailureKeepsExistingData(t *testing.T) {
	fail := false
	api := &fakeAPI{list: func(context.Context) ([]student.Student, error) {
		if fail {
			return nil, errOffline
		}
		return []student.Student{ana()}, nil
	}}
	s := newTestStore(api)
	require.NoError(t, s.Load(context.Background()))

	fail = true
	require.Error(t, s.Load(context.Background()))

	snap := s.Snapshot()
	assert.Equal(t, StatusError, snap.Status)
	assert.Equal(t, []string{"1"}, ids(snap))
}

func TestStore_AddGradeSubstitutesServerRecord(t *testing.T) {
	serverRecord := student.Student{ID: "1", Name: "Ana (servidor)", Subjects: []student.Subject{
		{Name: "Física", Grades: []student.Grade{7, 9.5}},
		{Name: "Química", Grades: []student.Grade{}},
	}}
	api := &fakeAPI{
		list: listOf(ana(), bruno()),
		addGrade: func(ctx context.Context, id, subject string, value float64) (student.Student, error) {
			assert.Equal(t, "1", id)
			assert.Equal(t, "Física", subject)
			assert.Equal(t, 9.5, value)
			return serverRecord, nil
		},
	}
	s := newTestStore(api)
	require.NoError(t, s.Load(context.Background()))

	got, err := s.AddGrade(context.Background(), "1", "Física", 9.5)
	require.NoError(t, err)
	assert.Equal(t, serverRecord, got)

	local, ok := s.Student("1")
	require.True(t, ok)
	assert.Equal(t, serverRecord, local)
	assert.Equal(t, []string{"1", "2"}, ids(s.Snapshot()))
}

func TestStore_MutationFailureReturnsToPriorState(t *testing.T) {
	api := &fakeAPI{
		list: func(context.Context) ([]student.Student, error) { return nil, errOffline },
		addSubj: func(context.Context, string, string) (student.Student, error) {
			return student.Student{}, errOffline
		},
		create: func(context.Context, string) (student.Student, error) {
			return student.Student{}, shared.ErrEmptyStudentName
		},
	}
	s := newTestStore(api)

	_, err := s.CreateStudent(context.Background(), " ")
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, StatusIdle, s.Status())

	require.Error(t, s.Load(context.Background()))
	_, err = s.AddSubject(context.Background(), "1", "Física")
	assert.ErrorIs(t, err, shared.ErrConnectivity)
	assert.Equal(t, StatusError, s.Status())
	assert.Empty(t, s.Snapshot().Students)
}

func TestStore_CreateAppendsServerRecord(t *testing.T) {
	api := &fakeAPI{
		list: listOf(ana()),
		create: func(ctx context.Context, name string) (student.Student, error) {
			return student.Student{ID: "9", Name: name, Subjects: []student.Subject{}}, nil
		},
	}
	s := newTestStore(api)
	require.NoError(t, s.Load(context.Background()))

	created, err := s.CreateStudent(context.Background(), "Carla")
	require.NoError(t, err)
	assert.Equal(t, "9", created.ID)
	assert.Equal(t, []string{"1", "9"}, ids(s.Snapshot()))
}

func TestStore_DeleteRemovesOnlyAfterSuccess(t *testing.T) {
	failDelete := true
	api := &fakeAPI{
		list: listOf(ana(), bruno()),
		del: func(ctx context.Context, id string) error {
			if failDelete {
				return errOffline
			}
			return nil
		},
	}
	s := newTestStore(api)
	require.NoError(t, s.Load(context.Background()))

	require.Error(t, s.DeleteStudent(context.Background(), "1"))
	assert.Equal(t, []string{"1", "2"}, ids(s.Snapshot()))

	failDelete = false
	require.NoError(t, s.DeleteStudent(context.Background(), "1"))
	assert.Equal(t, []string{"2"}, ids(s.Snapshot()))

	_, ok := s.Student("1")
	assert.False(t, ok)
}

func TestStore_LoadingWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	api := &fakeAPI{list: func(context.Context) ([]student.Student, error) {
		close(entered)
		<-release
		return []student.Student{ana()}, nil
	}}
	s := newTestStore(api)

	done := make(chan error)
	go func() { done <- s.Load(context.Background()) }()

	<-entered
	assert.Equal(t, StatusLoading, s.Status())
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StatusIdle, s.Status())
}

// slowList blocks the list call until release is closed and reports when it
// has been entered.
func slowList(entered chan<- struct{}, release <-chan struct{}, students ...student.Student) func(context.Context) ([]student.Student, error) {
	return func(context.Context) ([]student.Student, error) {
		entered <- struct{}{}
		<-release
		return students, nil
	}
}

func TestStore_FetchDoesNotOverwriteNewerLocalWrite(t *testing.T) {
	stale := ana()
	fresh := ana()
	fresh.Subjects[0].Grades = []student.Grade{7, 10}

	api := &fakeAPI{
		list: listOf(ana()),
		addGrade: func(context.Context, string, string, float64) (student.Student, error) {
			return fresh, nil
		},
	}
	s := newTestStore(api)
	require.NoError(t, s.Load(context.Background()))

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	api.list = slowList(entered, release, stale)

	done := make(chan error)
	go func() { done <- s.Load(context.Background()) }()
	<-entered

	_, err := s.AddGrade(context.Background(), "1", "Física", 10)
	require.NoError(t, err)

	close(release)
	require.NoError(t, <-done)

	got, ok := s.Student("1")
	require.True(t, ok)
	assert.Equal(t, fresh, got)
}

func TestStore_FetchDoesNotResurrectDeletedOrDropCreated(t *testing.T) {
	api := &fakeAPI{
		list: listOf(ana(), bruno()),
		del:  func(context.Context, string) error { return nil },
		create: func(ctx context.Context, name string) (student.Student, error) {
			return student.Student{ID: "3", Name: name, Subjects: []student.Subject{}}, nil
		},
	}
	s := newTestStore(api)
	require.NoError(t, s.Load(context.Background()))

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	api.list = slowList(entered, release, ana(), bruno())

	done := make(chan error)
	go func() { done <- s.Load(context.Background()) }()
	<-entered

	require.NoError(t, s.DeleteStudent(context.Background(), "1"))
	_, err := s.CreateStudent(context.Background(), "Carla")
	require.NoError(t, err)

	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, []string{"2", "3"}, ids(s.Snapshot()))

	// Once no fetch is in flight the server is authoritative again.
	api.list = listOf(bruno())
	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, []string{"2"}, ids(s.Snapshot()))
}

func TestStore_RecreatedIDTracksServerRecord(t *testing.T) {
	graded := student.Student{ID: "1", Name: "Carla", Subjects: []student.Subject{{Name: "Química", Grades: []student.Grade{9}}}}
	api := &fakeAPI{
		list: listOf(),
		del:  func(context.Context, string) error { return nil },
		create: func(ctx context.Context, name string) (student.Student, error) {
			return student.Student{ID: "1", Name: name, Subjects: []student.Subject{}}, nil
		},
		addGrade: func(context.Context, string, string, float64) (student.Student, error) {
			return graded, nil
		},
	}
	s := newTestStore(api)
	ctx := context.Background()
	require.NoError(t, s.Load(ctx))

	_, err := s.CreateStudent(ctx, "Ana")
	require.NoError(t, err)
	require.NoError(t, s.DeleteStudent(ctx, "1"))
	assert.Empty(t, s.tombstones, "no fetch in flight, nothing to guard")

	_, err = s.CreateStudent(ctx, "Carla")
	require.NoError(t, err)

	got, err := s.AddGrade(ctx, "1", "Química", 9)
	require.NoError(t, err)
	assert.Equal(t, graded, got)

	local, ok := s.Student("1")
	require.True(t, ok)
	assert.Equal(t, graded, local)
}

func TestStore_RecreateDuringFetchKeepsNewRecord(t *testing.T) {
	api := &fakeAPI{
		list: listOf(ana()),
		del:  func(context.Context, string) error { return nil },
		create: func(ctx context.Context, name string) (student.Student, error) {
			return student.Student{ID: "1", Name: name, Subjects: []student.Subject{}}, nil
		},
	}
	s := newTestStore(api)
	require.NoError(t, s.Load(context.Background()))

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	api.list = slowList(entered, release, ana())

	done := make(chan error)
	go func() { done <- s.Load(context.Background()) }()
	<-entered

	require.NoError(t, s.DeleteStudent(context.Background(), "1"))
	_, err := s.CreateStudent(context.Background(), "Carla")
	require.NoError(t, err)

	close(release)
	require.NoError(t, <-done)

	local, ok := s.Student("1")
	require.True(t, ok)
	assert.Equal(t, "Carla", local.Name)
	assert.Empty(t, s.tombstones)
}

func TestStore_StaleFetchIsDiscarded(t *testing.T) {
	var calls int32
	firstEntered := make(chan struct{})
	releaseFirst := make(chan struct{})
	api := &fakeAPI{list: func(context.Context) ([]student.Student, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(firstEntered)
			<-releaseFirst
			return []student.Student{ana()}, nil
		}
		return []student.Student{bruno()}, nil
	}}
	s := newTestStore(api)

	done := make(chan error)
	go func() { done <- s.Load(context.Background()) }()
	<-firstEntered

	require.NoError(t, s.Load(context.Background()))
	close(releaseFirst)
	require.NoError(t, <-done)

	assert.Equal(t, []string{"2"}, ids(s.Snapshot()))
	assert.Equal(t, StatusIdle, s.Status())
}

func TestStore_SerialisesActionsPerStudent(t *testing.T) {
	var (
		mu      sync.Mutex
		active  = map[string]int{}
		maxSeen = map[string]int{}
		order   []float64
	)
	api := &fakeAPI{
		list: listOf(ana(), bruno()),
		addGrade: func(ctx context.Context, id, subject string, value float64) (student.Student, error) {
			mu.Lock()
			active[id]++
			if active[id] > maxSeen[id] {
				maxSeen[id] = active[id]
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			active[id]--
			if id == "1" {
				order = append(order, value)
			}
			mu.Unlock()
			return student.Student{ID: id, Name: "x"}, nil
		},
	}
	s := newTestStore(api)
	require.NoError(t, s.Load(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		for _, id := range []string{"1", "2"} {
			wg.Add(1)
			go func(id string, v float64) {
				defer wg.Done()
				_, err := s.AddGrade(context.Background(), id, "Física", v)
				assert.NoError(t, err)
			}(id, float64(i))
		}
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen["1"])
	assert.Equal(t, 1, maxSeen["2"])
	assert.Len(t, order, 5)
	assert.Equal(t, StatusIdle, s.Status())
}

func TestStore_WaitingActionHonoursCancellation(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	api := &fakeAPI{
		list: listOf(ana()),
		addGrade: func(context.Context, string, string, float64) (student.Student, error) {
			close(entered)
			<-release
			return ana(), nil
		},
	}
	s := newTestStore(api)
	require.NoError(t, s.Load(context.Background()))

	go func() { _, _ = s.AddGrade(context.Background(), "1", "Física", 8) }()
	<-entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.EditGrade(ctx, "1", "Física", 0, 5)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, shared.IsConnectivity(err))

	close(release)
}

func TestStore_StartHonoursInitialDelay(t *testing.T) {
	api := &fakeAPI{list: listOf(ana())}
	s := NewStore(api, WithInitialDelay(time.Hour), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Start(ctx), context.Canceled)
	assert.Zero(t, atomic.LoadInt32(&api.listCalls))

	quick := newTestStore(api)
	require.NoError(t, quick.Start(context.Background()))
	assert.Equal(t, []string{"1"}, ids(quick.Snapshot()))
}

func TestStore_SnapshotsAreIsolated(t *testing.T) {
	api := &fakeAPI{list: listOf(ana())}
	s := newTestStore(api)
	require.NoError(t, s.Load(context.Background()))

	snap := s.Snapshot()
	snap.Students[0].Subjects[0].Grades[0] = 0

	got, _ := s.Student("1")
	assert.Equal(t, student.Grade(7), got.Subjects[0].Grades[0])
}

func TestStore_Unsubscribe(t *testing.T) {
	api := &fakeAPI{list: listOf(ana())}
	s := newTestStore(api)

	var n int
	unsubscribe := s.Subscribe(func(Snapshot) { n++ })
	require.NoError(t, s.Load(context.Background()))
	unsubscribe()
	require.NoError(t, s.Load(context.Background()))

	assert.Equal(t, 2, n)
}
