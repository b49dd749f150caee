package student

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Contratos do modelo de leitura do relatório.
// As implementações ficam em infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// ReportRepository guarda os relatórios publicados.
type ReportRepository interface {
	// SaveReport grava o relatório e substitui as linhas mais recentes
	// em uma única transação.
	SaveReport(ctx context.Context, report *Report) error

	// LatestReport retorna o último relatório.
	// Retorna ErrReportNotFound se nada foi publicado.
	LatestReport(ctx context.Context) (*Report, error)

	// LatestRow retorna a linha de um aluno no último relatório.
	// Retorna ErrReportRowNotFound se o aluno não estiver nele.
	LatestRow(ctx context.Context, studentID string) (*ReportRow, error)
}

// ReportCache guarda o último relatório em cache.
type ReportCache interface {
	// SetLatestReport grava o relatório com TTL.
	SetLatestReport(ctx context.Context, report *Report, ttl time.Duration) error

	// GetLatestReport retorna o relatório em cache.
	// Retorna ErrReportNotFound em cache miss.
	GetLatestReport(ctx context.Context) (*Report, error)
}
