package command

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestao-notas/notas-hub/internal/domain/shared"
	"github.com/gestao-notas/notas-hub/internal/domain/student"
)

type fakeSource struct {
	students []student.Student
	err      error
}

func (f *fakeSource) ListStudents(context.Context) ([]student.Student, error) {
	return f.students, f.err
}

type fakeRepo struct {
	saved []*student.Report
	err   error
}

func (f *fakeRepo) SaveReport(_ context.Context, r *student.Report) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, r)
	return nil
}

func (f *fakeRepo) LatestReport(context.Context) (*student.Report, error) {
	if len(f.saved) == 0 {
		return nil, shared.ErrReportNotFound
	}
	return f.saved[len(f.saved)-1], nil
}

func (f *fakeRepo) LatestRow(context.Context, string) (*student.ReportRow, error) {
	return nil, shared.ErrReportRowNotFound
}

type fakeCache struct {
	report *student.Report
	ttl    time.Duration
	err    error
}

func (f *fakeCache) SetLatestReport(_ context.Context, r *student.Report, ttl time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.report, f.ttl = r, ttl
	return nil
}

func (f *fakeCache) GetLatestReport(context.Context) (*student.Report, error) {
	if f.report == nil {
		return nil, shared.ErrReportNotFound
	}
	return f.report, nil
}

var fixedNow = time.Date(2026, 10, 14, 21, 0, 0, 0, time.FixedZone("BRT", -3*3600))

func roster() []student.Student {
	return []student.Student{
		{ID: "1", Name: "Ana", Subjects: []student.Subject{
			{Name: "Matemática", Grades: []student.Grade{8, 9}},
			{Name: "História", Grades: []student.Grade{7}},
		}},
		{ID: "2", Name: "Bruno", Subjects: []student.Subject{
			{Name: "Matemática", Grades: []student.Grade{4, 5}},
		}},
	}
}

func newHandler(src StudentSource, repo student.ReportRepository, cache student.ReportCache) *PublishReportHandler {
	return NewPublishReportHandler(PublishReportHandlerConfig{
		Source:   src,
		Repo:     repo,
		Cache:    cache,
		CacheTTL: 10 * time.Minute,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:      func() time.Time { return fixedNow },
		NewID:    func() string { return "report-1" },
	})
}

func TestPublishReport_SavesAndCaches(t *testing.T) {
	repo := &fakeRepo{}
	cache := &fakeCache{}

	result, err := newHandler(&fakeSource{students: roster()}, repo, cache).Handle(context.Background(), PublishReportCommand{})
	require.NoError(t, err)

	assert.Equal(t, "report-1", result.ReportID)
	assert.Equal(t, fixedNow.UTC(), result.GeneratedAt)
	assert.True(t, result.Cached)
	assert.Equal(t, 2, result.Summary.Students)
	assert.Equal(t, 5, result.Summary.Grades)
	assert.Equal(t, 1, result.Summary.Passing)

	require.Len(t, repo.saved, 1)
	saved := repo.saved[0]
	require.Len(t, saved.Rows, 2)
	assert.Equal(t, 8.0, saved.Rows[0].Overall)
	assert.True(t, saved.Rows[0].Passing)
	assert.False(t, saved.Rows[1].Passing)

	assert.Same(t, saved, cache.report)
	assert.Equal(t, 10*time.Minute, cache.ttl)
}

func TestPublishReport_ListFailureFails(t *testing.T) {
	repo := &fakeRepo{}
	_, err := newHandler(&fakeSource{err: shared.ErrNotasAPIUnavailable}, repo, &fakeCache{}).
		Handle(context.Background(), PublishReportCommand{})

	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	assert.Empty(t, repo.saved)
}

func TestPublishReport_DatabaseFailureFails(t *testing.T) {
	cache := &fakeCache{}
	dbErr := errors.New("connection reset")

	_, err := newHandler(&fakeSource{students: roster()}, &fakeRepo{err: dbErr}, cache).
		Handle(context.Background(), PublishReportCommand{})

	assert.ErrorIs(t, err, dbErr)
	assert.Nil(t, cache.report, "nothing is cached when the save fails")
}

func TestPublishReport_CacheFailureIsNotFatal(t *testing.T) {
	repo := &fakeRepo{}

	result, err := newHandler(&fakeSource{students: roster()}, repo, &fakeCache{err: errors.New("redis down")}).
		Handle(context.Background(), PublishReportCommand{CorrelationID: "run-7"})

	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Len(t, repo.saved, 1)
}

func TestPublishReport_WithoutCache(t *testing.T) {
	result, err := newHandler(&fakeSource{students: nil}, &fakeRepo{}, nil).
		Handle(context.Background(), PublishReportCommand{})

	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Zero(t, result.Summary.Students)
}

func TestPublishReport_MissingDependencies(t *testing.T) {
	_, err := NewPublishReportHandler(PublishReportHandlerConfig{}).Handle(context.Background(), PublishReportCommand{})
	assert.ErrorIs(t, err, shared.ErrValidation)
}
