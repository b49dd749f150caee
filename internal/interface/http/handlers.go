package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/gestao-notas/notas-hub/internal/domain/shared"
	"github.com/gestao-notas/notas-hub/internal/infrastructure/export"
	"github.com/gestao-notas/notas-hub/internal/infrastructure/scheduler"
	"github.com/gestao-notas/notas-hub/pkg/logger"
	"github.com/gestao-notas/notas-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	endpoints := map[string]string{
		"health":  "/health",
		"report":  "/api/v1/report",
		"summary": "/api/v1/report/summary",
		"student": "/api/v1/report/students/{id}",
	}
	if s.config.EnableXLSX {
		endpoints["xlsx"] = "/api/v1/report.xlsx"
	}
	if s.deps.Jobs != nil {
		endpoints["jobs"] = "/api/v1/jobs"
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"name":        "Gestão de Notas - relatório da turma",
		"version":     s.config.Version,
		"description": "Published roster averages",
		"endpoints":   endpoints,
	}, nil)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		code := http.StatusOK
		if !status.Healthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, r, code, status, nil)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": s.config.Version,
	}, nil)
}

// handleReady answers 503 until the required checks pass.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			}, nil)
			return
		}
	}

	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"}, nil)
}

// handleLive answers 200 while the process is up.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"}, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// REPORT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetReport handles GET /api/v1/report
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if !s.requireReports(w, r) {
		return
	}

	result, err := s.deps.Reports.Latest(r.Context())
	if err != nil {
		s.writeReportError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, result.Report, &ResponseMeta{
		Source:     string(result.Source),
		TotalCount: len(result.Report.Rows),
	})
}

// handleGetSummary handles GET /api/v1/report/summary
func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	if !s.requireReports(w, r) {
		return
	}

	result, err := s.deps.Reports.Latest(r.Context())
	if err != nil {
		s.writeReportError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"report_id":    result.Report.ID,
		"generated_at": result.Report.GeneratedAt,
		"summary":      result.Report.Summary,
	}, &ResponseMeta{Source: string(result.Source)})
}

// handleGetStudentRow handles GET /api/v1/report/students/{id}
func (s *Server) handleGetStudentRow(w http.ResponseWriter, r *http.Request) {
	if !s.requireReports(w, r) {
		return
	}

	studentID := r.PathValue("id")
	result, err := s.deps.Reports.StudentRow(r.Context(), studentID)
	if err != nil {
		s.writeReportError(w, r, err, logger.StudentID(studentID))
		return
	}

	writeJSON(w, r, http.StatusOK, result.Row, &ResponseMeta{Source: string(result.Source)})
}

// handleGetReportXLSX handles GET /api/v1/report.xlsx
func (s *Server) handleGetReportXLSX(w http.ResponseWriter, r *http.Request) {
	if !s.requireReports(w, r) {
		return
	}

	result, err := s.deps.Reports.Latest(r.Context())
	if err != nil {
		s.writeReportError(w, r, err)
		return
	}

	// Buffered so a failed write still produces a JSON error.
	var buf bytes.Buffer
	if err := export.WriteReport(&buf, result.Report); err != nil {
		logger.FromContext(r.Context()).Error("failed to render report workbook",
			logger.ReportID(result.Report.ID), logger.Err(err))
		writeJSONError(w, r, http.StatusInternalServerError, "export_failed", "Failed to render the workbook")
		return
	}

	filename := fmt.Sprintf("relatorio-%s.xlsx", timeutil.ToBrasilia(result.Report.GeneratedAt).Format(timeutil.FormatDate))
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Report-Source", string(result.Source))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) requireReports(w http.ResponseWriter, r *http.Request) bool {
	if s.deps.Reports == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Report reader not configured")
		return false
	}
	return true
}

// writeReportError maps domain errors to HTTP statuses.
func (s *Server) writeReportError(w http.ResponseWriter, r *http.Request, err error, fields ...logger.Field) {
	var de *shared.DomainError
	switch {
	case shared.IsValidation(err):
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", "Invalid request", err.Error())
	case errors.Is(err, shared.ErrReportRowNotFound):
		writeJSONError(w, r, http.StatusNotFound, "student_not_found", "Student not present in the latest report")
	case shared.IsNotFound(err):
		writeJSONError(w, r, http.StatusNotFound, "report_not_found", "No roster report has been published yet")
	default:
		fields = append(fields, logger.Err(err))
		if errors.As(err, &de) {
			fields = append(fields, logger.String("domain", de.Domain), logger.String("op", de.Op))
		}
		logger.FromContext(r.Context()).Error("failed to read report", fields...)
		writeJSONError(w, r, http.StatusInternalServerError, "internal_error", "Failed to read the roster report")
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// JOB HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.deps.Jobs.Jobs()
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })

	writeJSON(w, r, http.StatusOK, map[string]any{
		"jobs":   jobs,
		"totals": s.deps.Jobs.Totals(),
	}, &ResponseMeta{TotalCount: len(jobs)})
}

// handleRunJob handles POST /api/v1/jobs/{name}/run
func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	log := logger.FromContext(r.Context()).With(logger.String("job", name))

	result, err := s.deps.Jobs.Trigger(r.Context(), name)
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound):
		writeJSONError(w, r, http.StatusNotFound, "job_not_found", "Unknown job")
		return
	case errors.Is(err, scheduler.ErrJobRunning):
		writeJSONError(w, r, http.StatusConflict, "job_running", "Job is already running")
		return
	case result == nil:
		log.Error("manual job run failed", logger.Err(err))
		writeJSONError(w, r, http.StatusInternalServerError, "internal_error", "Job could not be started")
		return
	}

	body := map[string]any{
		"job":         name,
		"success":     err == nil,
		"started_at":  result.StartedAt,
		"duration_ms": result.Duration.Milliseconds(),
	}
	if err != nil {
		log.Warn("manual job run failed", logger.Err(err))
		body["error"] = err.Error()
		writeJSON(w, r, http.StatusBadGateway, body, nil)
		return
	}

	log.Info("manual job run completed", logger.Duration("duration", result.Duration))
	writeJSON(w, r, http.StatusOK, body, nil)
}
