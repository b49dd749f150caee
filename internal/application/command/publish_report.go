// Package command contains write operations of the report worker.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gestao-notas/notas-hub/internal/domain/shared"
	"github.com/gestao-notas/notas-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// PUBLISH REPORT COMMAND
// Fetches the roster from the student service, aggregates it and publishes
// the result to the read model (PostgreSQL) and the cache (Redis).
// ══════════════════════════════════════════════════════════════════════════════

// PublishReportCommand triggers one report publication.
type PublishReportCommand struct {
	// CorrelationID ties the log lines of one run together. Generated if empty.
	CorrelationID string
}

// PublishReportResult describes a published report.
type PublishReportResult struct {
	ReportID    string
	GeneratedAt time.Time
	Summary     student.RosterSummary
	Cached      bool
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// StudentSource lists the current roster.
type StudentSource interface {
	ListStudents(ctx context.Context) ([]student.Student, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// PublishReportHandler handles PublishReportCommand.
type PublishReportHandler struct {
	source   StudentSource
	repo     student.ReportRepository
	cache    student.ReportCache
	cacheTTL time.Duration
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// PublishReportHandlerConfig contains the handler dependencies.
type PublishReportHandlerConfig struct {
	Source StudentSource
	Repo   student.ReportRepository

	// Cache is optional. Nil disables caching.
	Cache    student.ReportCache
	CacheTTL time.Duration

	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string
}

// NewPublishReportHandler creates a new PublishReportHandler.
func NewPublishReportHandler(config PublishReportHandlerConfig) *PublishReportHandler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.NewID == nil {
		config.NewID = uuid.NewString
	}

	return &PublishReportHandler{
		source:   config.Source,
		repo:     config.Repo,
		cache:    config.Cache,
		cacheTTL: config.CacheTTL,
		logger:   config.Logger,
		now:      config.Now,
		newID:    config.NewID,
	}
}

// Handle executes the publish report command.
// Listing or persistence failures fail the command. A cache failure is
// logged and reported through Result.Cached.
func (h *PublishReportHandler) Handle(ctx context.Context, cmd PublishReportCommand) (*PublishReportResult, error) {
	if h.source == nil || h.repo == nil {
		return nil, shared.NewDomainError("report", "Publish", shared.ErrValidation, "student source and repository are required")
	}

	reportID := h.newID()
	correlationID := cmd.CorrelationID
	if correlationID == "" {
		correlationID = reportID
	}
	log := h.logger.With("report_id", reportID, "correlation_id", correlationID)

	students, err := h.source.ListStudents(ctx)
	if err != nil {
		return nil, fmt.Errorf("publish_report: failed to list students: %w", err)
	}

	report := student.BuildReport(reportID, h.now().UTC(), students)

	if err := h.repo.SaveReport(ctx, report); err != nil {
		return nil, fmt.Errorf("publish_report: failed to save report: %w", err)
	}

	result := &PublishReportResult{
		ReportID:    report.ID,
		GeneratedAt: report.GeneratedAt,
		Summary:     report.Summary,
	}

	if h.cache != nil {
		if err := h.cache.SetLatestReport(ctx, report, h.cacheTTL); err != nil {
			log.Warn("failed to cache report", "error", err)
		} else {
			result.Cached = true
		}
	}

	log.Info("report published",
		"students", report.Summary.Students,
		"grades", report.Summary.Grades,
		"passing", report.Summary.Passing,
		"average", report.Summary.Average,
		"cached", result.Cached,
	)

	return result, nil
}
