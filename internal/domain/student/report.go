package student

import "time"

// ══════════════════════════════════════════════════════════════════════════════
// ROSTER SUMMARY
// ══════════════════════════════════════════════════════════════════════════════

// RosterSummary agrega a turma inteira.
type RosterSummary struct {
	Students int `json:"students"`
	Subjects int `json:"subjects"`
	Grades   int `json:"grades"`

	// Passing conta os alunos com média geral >= PassingThreshold.
	Passing int `json:"passing"`

	// Average é a média achatada de todas as notas da turma.
	Average float64 `json:"average"`
}

// Summarize calcula o RosterSummary de uma lista de alunos.
func Summarize(students []Student) RosterSummary {
	var (
		sum     float64
		summary RosterSummary
	)
	summary.Students = len(students)

	for _, s := range students {
		summary.Subjects += len(s.Subjects)
		for _, g := range s.AllGrades() {
			sum += float64(g)
			summary.Grades++
		}
		if s.Passing() {
			summary.Passing++
		}
	}

	if summary.Grades > 0 {
		summary.Average = Round2(sum / float64(summary.Grades))
	}
	return summary
}

// ══════════════════════════════════════════════════════════════════════════════
// REPORT READ MODEL
// ══════════════════════════════════════════════════════════════════════════════

// SubjectResult é a média de uma disciplina dentro de um ReportRow.
type SubjectResult struct {
	Subject    string  `json:"subject"`
	GradeCount int     `json:"grade_count"`
	Average    float64 `json:"average"`
}

// ReportRow é a linha de um aluno no relatório publicado.
type ReportRow struct {
	StudentID    string          `json:"student_id"`
	Name         string          `json:"name"`
	SubjectCount int             `json:"subject_count"`
	GradeCount   int             `json:"grade_count"`
	Overall      float64         `json:"overall"`
	Passing      bool            `json:"passing"`
	Subjects     []SubjectResult `json:"subjects"`
}

// Report é o relatório da turma publicado pelo worker.
type Report struct {
	ID          string        `json:"id"`
	GeneratedAt time.Time     `json:"generated_at"`
	Summary     RosterSummary `json:"summary"`
	Rows        []ReportRow   `json:"rows"`
}

// BuildReport monta o relatório a partir dos alunos devolvidos pela API.
func BuildReport(id string, generatedAt time.Time, students []Student) *Report {
	rows := make([]ReportRow, 0, len(students))
	for _, s := range students {
		rows = append(rows, NewReportRow(s))
	}
	return &Report{
		ID:          id,
		GeneratedAt: generatedAt,
		Summary:     Summarize(students),
		Rows:        rows,
	}
}

// NewReportRow calcula a linha de um aluno.
func NewReportRow(s Student) ReportRow {
	subjects := make([]SubjectResult, 0, len(s.Subjects))
	for _, subj := range s.Subjects {
		subjects = append(subjects, SubjectResult{
			Subject:    subj.Name,
			GradeCount: len(subj.Grades),
			Average:    subj.Average(),
		})
	}
	return ReportRow{
		StudentID:    s.ID,
		Name:         s.Name,
		SubjectCount: len(s.Subjects),
		GradeCount:   s.GradeCount(),
		Overall:      OverallAverage(s),
		Passing:      s.Passing(),
		Subjects:     subjects,
	}
}

// Row procura a linha de um aluno pelo ID.
func (r *Report) Row(studentID string) (ReportRow, bool) {
	for _, row := range r.Rows {
		if row.StudentID == studentID {
			return row, true
		}
	}
	return ReportRow{}, false
}
