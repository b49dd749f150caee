package query

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

type stubRepo struct {
	report *student.Report
	rows   map[string]student.ReportRow
	err    error
	calls  int
}

func (s *stubRepo) SaveReport(context.Context, *student.Report) error { return nil }

func (s *stubRepo) LatestReport(context.Context) (*student.Report, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.report == nil {
		return nil, shared.ErrReportNotFound
	}
	return s.report, nil
}

func (s *stubRepo) LatestRow(_ context.Context, id string) (*student.ReportRow, error) {
	s.calls++
	row, ok := s.rows[id]
	if !ok {
		return nil, shared.ErrReportRowNotFound
	}
	return &row, nil
}

type stubCache struct {
	report *student.Report
	err    error
}

func (s *stubCache) SetLatestReport(context.Context, *student.Report, time.Duration) error {
	return nil
}

func (s *stubCache) GetLatestReport(context.Context) (*student.Report, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.report == nil {
		return nil, shared.ErrReportNotFound
	}
	return s.report, nil
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func report(id string, students ...student.Student) *student.Report {
	return student.BuildReport(id, time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC), students)
}

func TestLatest_PrefersCache(t *testing.T) {
	repo := &stubRepo{report: report("db")}
	h := NewGetReportHandler(repo, &stubCache{report: report("cached")}, discard)

	res, err := h.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SourceCache, res.Source)
	assert.Equal(t, "cached", res.Report.ID)
	assert.Zero(t, repo.calls)
}

func TestLatest_FallsBackToDatabase(t *testing.T) {
	for name, cache := range map[string]student.ReportCache{
		"miss":     &stubCache{},
		"error":    &stubCache{err: errors.New("redis: connection refused")},
		"no cache": nil,
	} {
		t.Run(name, func(t *testing.T) {
			h := NewGetReportHandler(&stubRepo{report: report("db")}, cache, discard)

			res, err := h.Latest(context.Background())
			require.NoError(t, err)
			assert.Equal(t, SourceDatabase, res.Source)
			assert.Equal(t, "db", res.Report.ID)
		})
	}
}

func TestLatest_NothingPublished(t *testing.T) {
	_, err := NewGetReportHandler(&stubRepo{}, &stubCache{}, discard).Latest(context.Background())
	assert.ErrorIs(t, err, shared.ErrReportNotFound)
	assert.True(t, shared.IsNotFound(err))

	_, err = NewGetReportHandler(nil, nil, nil).Latest(context.Background())
	assert.ErrorIs(t, err, shared.ErrReportNotFound)
}

func TestStudentRow(t *testing.T) {
	ana := student.Student{ID: "1", Name: "Ana", Subjects: []student.Subject{{Name: "Artes", Grades: []student.Grade{10}}}}
	bruno := student.Student{ID: "2", Name: "Bruno"}

	repo := &stubRepo{rows: map[string]student.ReportRow{"2": student.NewReportRow(bruno)}}
	h := NewGetReportHandler(repo, &stubCache{report: report("cached", ana)}, discard)
	ctx := context.Background()

	res, err := h.StudentRow(ctx, " 1 ")
	require.NoError(t, err)
	assert.Equal(t, SourceCache, res.Source)
	assert.Equal(t, 10.0, res.Row.Overall)

	res, err = h.StudentRow(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, SourceDatabase, res.Source)
	assert.Equal(t, "Bruno", res.Row.Name)

	_, err = h.StudentRow(ctx, "3")
	assert.ErrorIs(t, err, shared.ErrReportRowNotFound)

	_, err = h.StudentRow(ctx, "  ")
	assert.ErrorIs(t, err, shared.ErrEmptyStudentID)
}
