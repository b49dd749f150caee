// Package presenter formats roster data for terminal display.
// Presenters convert domain objects and store snapshots into the text the
// console prints: the roster header, banners and student cards.
package presenter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gestao-notas/notas-hub/internal/application/roster"
	"github.com/gestao-notas/notas-hub/internal/domain/student"
	"github.com/gestao-notas/notas-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT CARD PRESENTER
// Formata a lista de alunos e o cartão de cada aluno para o terminal.
// Mostra: nome, ID, média geral, disciplinas com média e notas indexadas.
// ══════════════════════════════════════════════════════════════════════════════

const (
	ansiReset = "\x1b[0m"
	ansiGreen = "\x1b[32m"
	ansiRed   = "\x1b[31m"
	ansiBold  = "\x1b[1m"
	ansiDim   = "\x1b[2m"

	separator = "────────────────────────────────────────"
)

// StudentCardPresenter formata cartões de aluno.
type StudentCardPresenter struct {
	color bool
}

// NewStudentCardPresenter cria o presenter. color liga as sequências ANSI.
func NewStudentCardPresenter(color bool) *StudentCardPresenter {
	return &StudentCardPresenter{color: color}
}

// ─────────────────────────────────────────────────────────────────────────────
// ROSTER VIEW
// ─────────────────────────────────────────────────────────────────────────────

// FormatRoster formata a lista completa a partir de um snapshot do store.
// serviceURL aparece na mensagem de erro de conexão.
func (p *StudentCardPresenter) FormatRoster(snap roster.Snapshot, serviceURL string) string {
	var sb strings.Builder

	sb.WriteString(p.bold(fmt.Sprintf("Detalhes e Média dos Alunos (%d total)", len(snap.Students))))
	sb.WriteString("\n")

	loading := snap.Status == roster.StatusLoading
	failed := snap.Status == roster.StatusError

	if loading {
		sb.WriteString("Carregando dados do servidor...\n")
	}
	if failed {
		sb.WriteString(p.FormatConnectionError(serviceURL))
		sb.WriteString("\n")
	}
	if !loading && !failed && len(snap.Students) == 0 {
		sb.WriteString("Nenhum aluno adicionado ainda.\n")
	}

	if !loading {
		for _, s := range snap.Students {
			sb.WriteString("\n")
			sb.WriteString(p.FormatStudentCard(s))
		}
	}

	if snap.Loaded && !snap.UpdatedAt.IsZero() {
		sb.WriteString("\n")
		sb.WriteString(p.dim("Atualizado " + timeutil.FormatRelative(snap.UpdatedAt)))
		sb.WriteString("\n")
	}

	return sb.String()
}

// FormatConnectionError formata o aviso persistente de falha na carga.
func (p *StudentCardPresenter) FormatConnectionError(serviceURL string) string {
	msg := fmt.Sprintf("Erro ao conectar com o servidor. Verifique se o backend em %s está rodando.", serviceURL)
	return p.red(msg) + "\nDigite \"retry\" para tentar reconexão."
}

// ─────────────────────────────────────────────────────────────────────────────
// STUDENT CARD
// ─────────────────────────────────────────────────────────────────────────────

// FormatStudentCard formata o cartão de um aluno.
func (p *StudentCardPresenter) FormatStudentCard(s student.Student) string {
	var sb strings.Builder

	sb.WriteString(separator)
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Aluno: %s  %s\n", p.bold(s.Name), p.dim("(ID "+s.ID+")")))
	sb.WriteString(p.formatOverall(s))
	sb.WriteString("\n")

	sb.WriteString("Disciplinas:\n")
	if len(s.Subjects) == 0 {
		sb.WriteString("  Nenhuma disciplina cadastrada.\n")
	}
	for _, subj := range s.Subjects {
		sb.WriteString(fmt.Sprintf("  • %s (Média: %s)\n", subj.Name, FormatAverage(subj.Average(), len(subj.Grades) > 0)))
		sb.WriteString("      Notas: ")
		sb.WriteString(formatIndexedGrades(subj.Grades))
		sb.WriteString("\n")
	}

	if len(s.LegacyGrades) > 0 {
		sb.WriteString(p.dim("Notas avulsas (fora da média): " + JoinGrades(s.LegacyGrades)))
		sb.WriteString("\n")
	}

	return sb.String()
}

// formatOverall pinta a média geral de verde a partir de PassingThreshold.
func (p *StudentCardPresenter) formatOverall(s student.Student) string {
	text := "Média Geral: " + FormatAverage(student.OverallAverage(s), s.GradeCount() > 0)
	if s.Passing() {
		return p.green(text)
	}
	return p.red(text)
}

func formatIndexedGrades(grades []student.Grade) string {
	if len(grades) == 0 {
		return "Nenhuma nota registrada."
	}
	parts := make([]string, len(grades))
	for i, g := range grades {
		parts[i] = fmt.Sprintf("[%d] %s", i, FormatGrade(g))
	}
	return strings.Join(parts, ", ")
}

// ─────────────────────────────────────────────────────────────────────────────
// NUMBER FORMATTING
// ─────────────────────────────────────────────────────────────────────────────

// FormatAverage mostra a média com duas casas; sem notas mostra "0".
func FormatAverage(avg float64, hasGrades bool) string {
	if !hasGrades {
		return "0"
	}
	return strconv.FormatFloat(avg, 'f', 2, 64)
}

// FormatGrade mostra a nota sem zeros à direita (7, 8.5).
func FormatGrade(g student.Grade) string {
	return strconv.FormatFloat(float64(g), 'f', -1, 64)
}

// JoinGrades junta notas com ", ".
func JoinGrades(grades []student.Grade) string {
	parts := make([]string, len(grades))
	for i, g := range grades {
		parts[i] = FormatGrade(g)
	}
	return strings.Join(parts, ", ")
}

// ─────────────────────────────────────────────────────────────────────────────
// COLORS
// ─────────────────────────────────────────────────────────────────────────────

func (p *StudentCardPresenter) wrap(code, s string) string {
	if !p.color {
		return s
	}
	return code + s + ansiReset
}

func (p *StudentCardPresenter) green(s string) string { return p.wrap(ansiGreen, s) }
func (p *StudentCardPresenter) red(s string) string   { return p.wrap(ansiRed, s) }
func (p *StudentCardPresenter) bold(s string) string  { return p.wrap(ansiBold, s) }
func (p *StudentCardPresenter) dim(s string) string   { return p.wrap(ansiDim, s) }
