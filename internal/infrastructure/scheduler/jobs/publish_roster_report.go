// Package jobs contains the worker's scheduled jobs.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gestao-notas/notas-hub/internal/application/command"
	"github.com/gestao-notas/notas-hub/internal/infrastructure/scheduler"
)

// ══════════════════════════════════════════════════════════════════════════════
// PUBLISH ROSTER REPORT JOB
// ══════════════════════════════════════════════════════════════════════════════

// JobNamePublishRosterReport is the scheduler name of PublishRosterReportJob.
const JobNamePublishRosterReport = "publish_roster_report"

// ReportPublisher publishes one roster report.
type ReportPublisher interface {
	Handle(ctx context.Context, cmd command.PublishReportCommand) (*command.PublishReportResult, error)
}

// PublishRosterReportJob rebuilds the roster report from the student
// service and publishes it.
type PublishRosterReportJob struct {
	publisher ReportPublisher
	logger    *slog.Logger

	lastRunStats atomic.Pointer[PublishStats]
}

// PublishStats describes the last run.
type PublishStats struct {
	RunID       string
	ReportID    string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Students    int
	Grades      int
	Passing     int
	Cached      bool
	Err         error
}

var _ scheduler.Job = (*PublishRosterReportJob)(nil)

// NewPublishRosterReportJob creates a new publish job.
func NewPublishRosterReportJob(publisher ReportPublisher, logger *slog.Logger) *PublishRosterReportJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublishRosterReportJob{
		publisher: publisher,
		logger:    logger.With("job", JobNamePublishRosterReport),
	}
}

// Name returns the job name.
func (j *PublishRosterReportJob) Name() string {
	return JobNamePublishRosterReport
}

// Description returns a human-readable description.
func (j *PublishRosterReportJob) Description() string {
	return "Fetches all students, aggregates averages and publishes the roster report"
}

// Run executes one publication.
func (j *PublishRosterReportJob) Run(ctx context.Context) error {
	stats := &PublishStats{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
	defer func() {
		stats.CompletedAt = time.Now()
		stats.Duration = stats.CompletedAt.Sub(stats.StartedAt)
		j.lastRunStats.Store(stats)
	}()

	j.logger.Debug("publishing roster report", "run_id", stats.RunID)

	result, err := j.publisher.Handle(ctx, command.PublishReportCommand{CorrelationID: stats.RunID})
	if err != nil {
		stats.Err = err
		return fmt.Errorf("%s: %w", JobNamePublishRosterReport, err)
	}

	stats.ReportID = result.ReportID
	stats.Students = result.Summary.Students
	stats.Grades = result.Summary.Grades
	stats.Passing = result.Summary.Passing
	stats.Cached = result.Cached

	return nil
}

// LastRunStats returns the stats of the last run, or nil before the first.
func (j *PublishRosterReportJob) LastRunStats() *PublishStats {
	return j.lastRunStats.Load()
}
