// Package query contains the read operations of the report worker.
// Queries never modify state.
package query

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/gestao-notas/notas-hub/internal/domain/shared"
	"github.com/gestao-notas/notas-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET REPORT QUERY
// Lê o último relatório publicado: primeiro o cache, depois o PostgreSQL.
// ══════════════════════════════════════════════════════════════════════════════

// Source indica de onde o relatório foi lido.
type Source string

const (
	SourceCache    Source = "cache"
	SourceDatabase Source = "database"
)

// GetReportResult contém o relatório e a sua origem.
type GetReportResult struct {
	Report *student.Report
	Source Source
}

// GetStudentRowResult contém a linha de um aluno e a sua origem.
type GetStudentRowResult struct {
	Row    student.ReportRow
	Source Source
}

// GetReportHandler responde às consultas do relatório.
type GetReportHandler struct {
	repo   student.ReportRepository
	cache  student.ReportCache
	logger *slog.Logger
}

// NewGetReportHandler cria o handler. cache pode ser nil.
func NewGetReportHandler(repo student.ReportRepository, cache student.ReportCache, logger *slog.Logger) *GetReportHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GetReportHandler{repo: repo, cache: cache, logger: logger}
}

// Latest devolve o último relatório ou shared.ErrReportNotFound.
func (h *GetReportHandler) Latest(ctx context.Context) (*GetReportResult, error) {
	if report, ok := h.fromCache(ctx); ok {
		return &GetReportResult{Report: report, Source: SourceCache}, nil
	}

	if h.repo == nil {
		return nil, shared.ErrReportNotFound
	}

	report, err := h.repo.LatestReport(ctx)
	if err != nil {
		return nil, err
	}
	return &GetReportResult{Report: report, Source: SourceDatabase}, nil
}

// StudentRow devolve a linha mais recente de um aluno.
// Um aluno ausente do relatório em cache ainda é procurado no banco, que
// guarda a última linha de cada aluno.
func (h *GetReportHandler) StudentRow(ctx context.Context, studentID string) (*GetStudentRowResult, error) {
	studentID = strings.TrimSpace(studentID)
	if err := student.ValidateID(studentID); err != nil {
		return nil, err
	}

	if report, ok := h.fromCache(ctx); ok {
		if row, found := report.Row(studentID); found {
			return &GetStudentRowResult{Row: row, Source: SourceCache}, nil
		}
	}

	if h.repo == nil {
		return nil, shared.ErrReportRowNotFound
	}

	row, err := h.repo.LatestRow(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return &GetStudentRowResult{Row: *row, Source: SourceDatabase}, nil
}

// fromCache nunca falha: erros do cache caem para o banco.
func (h *GetReportHandler) fromCache(ctx context.Context) (*student.Report, bool) {
	if h.cache == nil {
		return nil, false
	}

	report, err := h.cache.GetLatestReport(ctx)
	if err != nil {
		if !errors.Is(err, shared.ErrReportNotFound) {
			h.logger.Warn("report cache unavailable, reading database", "error", err)
		}
		return nil, false
	}
	return report, true
}
