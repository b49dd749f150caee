package presenter

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gestao-notas/notas-hub/internal/application/roster"
	"github.com/gestao-notas/notas-hub/internal/domain/student"
)

func sampleStudent() student.Student {
	return student.Student{
		ID:   "1",
		Name: "Ana",
		Subjects: []student.Subject{
			{Name: "Matemática", Grades: []student.Grade{7, 9}},
			{Name: "História", Grades: []student.Grade{10}},
			{Name: "Física", Grades: []student.Grade{}},
		},
	}
}

func TestFormatStudentCard(t *testing.T) {
	card := NewStudentCardPresenter(false).FormatStudentCard(sampleStudent())

	assert.Contains(t, card, "Aluno: Ana  (ID 1)")
	assert.Contains(t, card, "Média Geral: 8.67")
	assert.Contains(t, card, "• Matemática (Média: 8.00)")
	assert.Contains(t, card, "Notas: [0] 7, [1] 9")
	assert.Contains(t, card, "• Física (Média: 0)")
	assert.Contains(t, card, "Notas: Nenhuma nota registrada.")
	assert.NotContains(t, card, "\x1b[")
}

func TestFormatStudentCard_NoSubjectsAndLegacyGrades(t *testing.T) {
	s := student.Student{ID: "2", Name: "Bruno", LegacyGrades: []student.Grade{5, 6.5}}
	card := NewStudentCardPresenter(false).FormatStudentCard(s)

	assert.Contains(t, card, "Média Geral: 0")
	assert.Contains(t, card, "Nenhuma disciplina cadastrada.")
	assert.Contains(t, card, "Notas avulsas (fora da média): 5, 6.5")
}

func TestFormatStudentCard_Colors(t *testing.T) {
	p := NewStudentCardPresenter(true)

	passing := p.FormatStudentCard(sampleStudent())
	assert.Contains(t, passing, ansiGreen+"Média Geral: 8.67"+ansiReset)

	failing := p.FormatStudentCard(student.Student{ID: "3", Name: "Caio", Subjects: []student.Subject{
		{Name: "Artes", Grades: []student.Grade{6.99}},
	}})
	assert.Contains(t, failing, ansiRed+"Média Geral: 6.99"+ansiReset)
}

func TestFormatRoster_States(t *testing.T) {
	p := NewStudentCardPresenter(false)
	url := "https://gestao-de-notas-api.onrender.com"

	empty := p.FormatRoster(roster.Snapshot{Status: roster.StatusIdle}, url)
	assert.Contains(t, empty, "Detalhes e Média dos Alunos (0 total)")
	assert.Contains(t, empty, "Nenhum aluno adicionado ainda.")

	loading := p.FormatRoster(roster.Snapshot{
		Status:   roster.StatusLoading,
		Students: []student.Student{sampleStudent()},
	}, url)
	assert.Contains(t, loading, "Carregando dados do servidor...")
	assert.NotContains(t, loading, "Aluno: Ana")
	assert.NotContains(t, loading, "Nenhum aluno adicionado ainda.")

	failed := p.FormatRoster(roster.Snapshot{Status: roster.StatusError}, url)
	assert.Contains(t, failed, "Verifique se o backend em "+url+" está rodando.")
	assert.Contains(t, failed, `"retry"`)
	assert.NotContains(t, failed, "Nenhum aluno adicionado ainda.")

	loaded := p.FormatRoster(roster.Snapshot{
		Status:    roster.StatusIdle,
		Students:  []student.Student{sampleStudent(), {ID: "2", Name: "Bruno"}},
		Loaded:    true,
		UpdatedAt: time.Now(),
	}, url)
	assert.Contains(t, loaded, "(2 total)")
	assert.Equal(t, 2, strings.Count(loaded, "Aluno: "))
	assert.Contains(t, loaded, "Atualizado agora mesmo")
}

func TestNumberFormatting(t *testing.T) {
	assert.Equal(t, "0", FormatAverage(0, false))
	assert.Equal(t, "0.00", FormatAverage(0, true))
	assert.Equal(t, "7.50", FormatAverage(7.5, true))
	assert.Equal(t, "7", FormatGrade(7))
	assert.Equal(t, "8.5", FormatGrade(8.5))
	assert.Equal(t, "10, 0.25", JoinGrades([]student.Grade{10, 0.25}))
}
