package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/gestao-notas/notas-hub/internal/domain/shared"
	"github.com/gestao-notas/notas-hub/internal/domain/student"
	"github.com/gestao-notas/notas-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPORT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// reportSaveLockKey serialises SaveReport across worker instances.
const reportSaveLockKey int64 = 0x6e6f746173 // "notas"

// ReportRepository implements student.ReportRepository for PostgreSQL.
type ReportRepository struct {
	conn    *Connection
	retrier *retry.Retrier
}

// NewReportRepository creates a new ReportRepository.
func NewReportRepository(conn *Connection) *ReportRepository {
	return &ReportRepository{
		conn:    conn,
		retrier: retry.Database(),
	}
}

var _ student.ReportRepository = (*ReportRepository)(nil)

// ─────────────────────────────────────────────────────────────────────────────
// Write
// ─────────────────────────────────────────────────────────────────────────────

// SaveReport inserts the report and replaces the latest rows in one
// transaction. A report older than the newest stored one keeps its summary
// but does not overwrite the rows.
func (r *ReportRepository) SaveReport(ctx context.Context, report *student.Report) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		return r.conn.WithTx(ctx, writeTx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, reportSaveLockKey); err != nil {
				return fmt.Errorf("failed to lock reports: %w", err)
			}

			var newest *time.Time
			if err := tx.QueryRow(ctx, `SELECT MAX(generated_at) FROM roster_reports`).Scan(&newest); err != nil {
				return fmt.Errorf("failed to read newest report: %w", err)
			}

			if err := insertReport(ctx, tx, report); err != nil {
				return err
			}

			if newest != nil && report.GeneratedAt.Before(*newest) {
				return nil
			}
			return replaceRows(ctx, tx, report)
		})
	})
}

func insertReport(ctx context.Context, tx pgx.Tx, report *student.Report) error {
	query := `
		INSERT INTO roster_reports (id, generated_at, students, subjects, grades, passing, average)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	sum := report.Summary
	_, err := tx.Exec(ctx, query,
		report.ID,
		report.GeneratedAt,
		sum.Students,
		sum.Subjects,
		sum.Grades,
		sum.Passing,
		sum.Average,
	)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

func replaceRows(ctx context.Context, tx pgx.Tx, report *student.Report) error {
	upsert := `
		INSERT INTO roster_report_rows (
			student_id, report_id, position, name, subject_count, grade_count,
			overall, passing, subjects, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (student_id) DO UPDATE SET
			report_id = EXCLUDED.report_id,
			position = EXCLUDED.position,
			name = EXCLUDED.name,
			subject_count = EXCLUDED.subject_count,
			grade_count = EXCLUDED.grade_count,
			overall = EXCLUDED.overall,
			passing = EXCLUDED.passing,
			subjects = EXCLUDED.subjects,
			updated_at = NOW()
	`

	batch := &pgx.Batch{}
	for i, row := range report.Rows {
		subjects, err := marshalSubjects(row.Subjects)
		if err != nil {
			return err
		}
		batch.Queue(upsert,
			row.StudentID,
			report.ID,
			i,
			row.Name,
			row.SubjectCount,
			row.GradeCount,
			row.Overall,
			row.Passing,
			subjects,
		)
	}
	batch.Queue(`DELETE FROM roster_report_rows WHERE report_id <> $1`, report.ID)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert report rows: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Read
// ─────────────────────────────────────────────────────────────────────────────

// LatestReport returns the newest report with its rows.
func (r *ReportRepository) LatestReport(ctx context.Context) (*student.Report, error) {
	var report *student.Report
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.conn.WithTx(ctx, readTx, func(tx pgx.Tx) error {
			rep, err := scanReport(tx.QueryRow(ctx, `
				SELECT id, generated_at, students, subjects, grades, passing, average
				FROM roster_reports
				ORDER BY generated_at DESC
				LIMIT 1
			`))
			if err != nil {
				return err
			}

			rows, err := tx.Query(ctx, `
				SELECT student_id, name, subject_count, grade_count, overall, passing, subjects
				FROM roster_report_rows
				WHERE report_id = $1
				ORDER BY position
			`, rep.ID)
			if err != nil {
				return fmt.Errorf("failed to query report rows: %w", err)
			}
			defer rows.Close()

			for rows.Next() {
				row, err := scanRow(rows)
				if err != nil {
					return err
				}
				rep.Rows = append(rep.Rows, *row)
			}
			if err := rows.Err(); err != nil {
				return fmt.Errorf("failed to read report rows: %w", err)
			}

			report = rep
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// LatestRow returns one student's row in the newest report.
func (r *ReportRepository) LatestRow(ctx context.Context, studentID string) (*student.ReportRow, error) {
	if err := student.ValidateID(studentID); err != nil {
		return nil, err
	}

	var row *student.ReportRow
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var err error
		row, err = scanRow(r.conn.QueryRow(ctx, `
			SELECT student_id, name, subject_count, grade_count, overall, passing, subjects
			FROM roster_report_rows
			WHERE student_id = $1
		`, studentID))
		if IsNoRows(err) {
			return shared.ErrReportRowNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// withRetry retries transient database failures only.
func (r *ReportRepository) withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	return r.retrier.Do(ctx, func(ctx context.Context) error {
		err := op(ctx)
		if err != nil && !IsTransient(err) {
			return retry.Permanent(err)
		}
		return err
	})
}

func scanReport(row pgx.Row) (*student.Report, error) {
	var rep student.Report
	err := row.Scan(
		&rep.ID,
		&rep.GeneratedAt,
		&rep.Summary.Students,
		&rep.Summary.Subjects,
		&rep.Summary.Grades,
		&rep.Summary.Passing,
		&rep.Summary.Average,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrReportNotFound
		}
		return nil, fmt.Errorf("failed to scan report: %w", err)
	}
	rep.GeneratedAt = rep.GeneratedAt.UTC()
	rep.Rows = []student.ReportRow{}
	return &rep, nil
}

func scanRow(row pgx.Row) (*student.ReportRow, error) {
	var (
		r        student.ReportRow
		subjects []byte
	)
	err := row.Scan(
		&r.StudentID,
		&r.Name,
		&r.SubjectCount,
		&r.GradeCount,
		&r.Overall,
		&r.Passing,
		&subjects,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan report row: %w", err)
	}

	r.Subjects, err = unmarshalSubjects(subjects)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func marshalSubjects(subjects []student.SubjectResult) ([]byte, error) {
	if subjects == nil {
		subjects = []student.SubjectResult{}
	}
	data, err := json.Marshal(subjects)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal subjects: %w", err)
	}
	return data, nil
}

func unmarshalSubjects(data []byte) ([]student.SubjectResult, error) {
	subjects := []student.SubjectResult{}
	if len(data) == 0 {
		return subjects, nil
	}
	if err := json.Unmarshal(data, &subjects); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subjects: %w", err)
	}
	return subjects, nil
}
