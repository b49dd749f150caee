package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// ErrMigrationFailed wraps any failure while applying a migration.
var ErrMigrationFailed = errors.New("postgres: migration failed")

// Migration is one forward-only schema step.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrations lists the schema in version order.
func Migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_roster_reports", SQL: migration001},
		{Version: 2, Name: "create_roster_report_rows", SQL: migration002},
	}
}

// migrationLockKey keeps two workers from migrating at the same time.
const migrationLockKey int64 = 0x6e6f7461736d // "notasm"

const createSchemaMigrations = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
)`

// Migrator applies Migrations that schema_migrations does not list yet.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: Migrations()}
}

// Migrate runs everything in one transaction, so a failed step leaves the
// schema as it was.
func (m *Migrator) Migrate(ctx context.Context) error {
	err := m.conn.WithTx(ctx, writeTx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockKey); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, createSchemaMigrations); err != nil {
			return err
		}

		applied, err := appliedVersions(ctx, tx)
		if err != nil {
			return err
		}
		for _, mig := range pending(m.migrations, applied) {
			if _, err := tx.Exec(ctx, mig.SQL); err != nil {
				return fmt.Errorf("version %d (%s): %w", mig.Version, mig.Name, err)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, mig.Version, mig.Name); err != nil {
				return fmt.Errorf("version %d: record: %w", mig.Version, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}
	return nil
}

func appliedVersions(ctx context.Context, tx pgx.Tx) (map[int]bool, error) {
	rows, err := tx.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, err
	}
	applied := make(map[int]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

// pending keeps the order of all.
func pending(all []Migration, applied map[int]bool) []Migration {
	var out []Migration
	for _, mig := range all {
		if !applied[mig.Version] {
			out = append(out, mig)
		}
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: ROSTER REPORTS
// ══════════════════════════════════════════════════════════════════════════════

const migration001 = `
-- One row per published report. Summary columns mirror RosterSummary.
CREATE TABLE IF NOT EXISTS roster_reports (
    id UUID PRIMARY KEY,
    generated_at TIMESTAMP WITH TIME ZONE NOT NULL,
    students INTEGER NOT NULL DEFAULT 0,
    subjects INTEGER NOT NULL DEFAULT 0,
    grades INTEGER NOT NULL DEFAULT 0,
    passing INTEGER NOT NULL DEFAULT 0,
    average DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_counts CHECK (students >= 0 AND subjects >= 0 AND grades >= 0 AND passing >= 0),
    CONSTRAINT valid_average CHECK (average >= 0 AND average <= 10)
);

CREATE INDEX IF NOT EXISTS idx_roster_reports_generated_at ON roster_reports(generated_at DESC);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: LATEST REPORT ROWS
// ══════════════════════════════════════════════════════════════════════════════

const migration002 = `
-- Latest row per student. Each report upserts its rows and removes
-- students that are no longer on the roster.
CREATE TABLE IF NOT EXISTS roster_report_rows (
    student_id TEXT PRIMARY KEY,
    report_id UUID NOT NULL REFERENCES roster_reports(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    subject_count INTEGER NOT NULL DEFAULT 0,
    grade_count INTEGER NOT NULL DEFAULT 0,
    overall DOUBLE PRECISION NOT NULL DEFAULT 0,
    passing BOOLEAN NOT NULL DEFAULT FALSE,
    subjects JSONB NOT NULL DEFAULT '[]'::jsonb,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_overall CHECK (overall >= 0 AND overall <= 10)
);

CREATE INDEX IF NOT EXISTS idx_roster_report_rows_report ON roster_report_rows(report_id, position);
`
