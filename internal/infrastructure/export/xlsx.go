// Package export writes roster spreadsheets in the XLSX format.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/gestao-notas/notas-hub/internal/domain/student"
	"github.com/gestao-notas/notas-hub/pkg/timeutil"
)

// Sheet names.
const (
	RosterSheet  = "Alunos"
	ReportSheet  = "Relatório"
	SummarySheet = "Resumo"
)

// ContentType is the MIME type of the files written here.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var (
	rosterHeaders = []string{"ID", "Aluno", "Disciplina", "Notas", "Média da disciplina", "Média geral"}
	reportHeaders = []string{"ID", "Aluno", "Disciplinas", "Notas", "Média geral", "Situação"}
)

// WriteRoster writes one row per subject to w. Students without subjects
// still get a row with the subject columns empty.
func WriteRoster(w io.Writer, students []student.Student) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", RosterSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeHeader(f, RosterSheet, rosterHeaders); err != nil {
		return err
	}

	row := 2
	for _, s := range students {
		overall := student.Round2(student.OverallAverage(s))
		if len(s.Subjects) == 0 {
			if err := setRow(f, RosterSheet, row, s.ID, s.Name, "", "", "", overall); err != nil {
				return err
			}
			row++
			continue
		}
		for _, subj := range s.Subjects {
			avg := student.Round2(subj.Average())
			if err := setRow(f, RosterSheet, row, s.ID, s.Name, subj.Name, joinGrades(subj.Grades), avg, overall); err != nil {
				return err
			}
			row++
		}
	}

	if err := f.SetColWidth(RosterSheet, "B", "D", 24); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := writeSummary(f, student.Summarize(students), timeutil.Now()); err != nil {
		return err
	}
	return write(f, w)
}

// WriteReport writes a published report: one row per student plus the
// summary sheet.
func WriteReport(w io.Writer, report *student.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ReportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeHeader(f, ReportSheet, reportHeaders); err != nil {
		return err
	}

	for i, r := range report.Rows {
		situation := "Reprovado"
		if r.Passing {
			situation = "Aprovado"
		}
		if err := setRow(f, ReportSheet, i+2, r.StudentID, r.Name, r.SubjectCount, r.GradeCount, student.Round2(r.Overall), situation); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(ReportSheet, "B", "B", 24); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := writeSummary(f, report.Summary, report.GeneratedAt); err != nil {
		return err
	}
	return write(f, w)
}

func writeSummary(f *excelize.File, sum student.RosterSummary, at time.Time) error {
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}

	rows := [][2]any{
		{"Alunos", sum.Students},
		{"Disciplinas", sum.Subjects},
		{"Notas", sum.Grades},
		{"Aprovados", sum.Passing},
		{"Média geral", sum.Average},
	}
	if !at.IsZero() {
		rows = append(rows, [2]any{"Gerado em", timeutil.FormatBR(at)})
	}
	for i, r := range rows {
		if err := setRow(f, SummarySheet, i+1, r[0], r[1]); err != nil {
			return err
		}
	}
	return f.SetColWidth(SummarySheet, "A", "A", 16)
}

func writeHeader(f *excelize.File, sheet string, headers []string) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("set header %s: %w", cell, err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	return f.SetCellStyle(sheet, "A1", last, style)
}

func setRow(f *excelize.File, sheet string, row int, values ...any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if v == "" {
			continue
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("set cell %s: %w", cell, err)
		}
	}
	return nil
}

func write(f *excelize.File, w io.Writer) error {
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func joinGrades(grades []student.Grade) string {
	parts := make([]string, len(grades))
	for i, g := range grades {
		parts[i] = fmt.Sprintf("%g", float64(g))
	}
	return strings.Join(parts, ", ")
}
