package student

import (
	"math"
	"strings"

	"github.com/gestao-notas/notas-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Limites de uma nota.
const (
	MinGrade Grade = 0
	MaxGrade Grade = 10
)

// Grade representa uma nota no intervalo fechado [0, 10].
type Grade float64

// IsValid verifica se a nota é um número finito dentro do intervalo.
func (g Grade) IsValid() bool {
	f := float64(g)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	return g >= MinGrade && g <= MaxGrade
}

// Float64 retorna o valor numérico da nota.
func (g Grade) Float64() float64 {
	return float64(g)
}

// NewGrade cria uma nota validada.
func NewGrade(value float64) (Grade, error) {
	g := Grade(value)
	if !g.IsValid() {
		return 0, shared.ErrGradeOutOfRange
	}
	return g, nil
}

// NormalizeName remove espaços nas pontas. Nome vazio é erro.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", shared.ErrEmptyStudentName
	}
	return name, nil
}

// NormalizeSubjectName remove espaços nas pontas. Disciplina vazia é erro.
func NormalizeSubjectName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", shared.ErrEmptySubjectName
	}
	return name, nil
}

// ValidateID rejeita IDs vazios antes de qualquer chamada remota.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return shared.ErrEmptyStudentID
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// Subject é uma disciplina do aluno com a lista ordenada de notas.
type Subject struct {
	// Name é a chave da disciplina nas rotas da API.
	Name string

	// Grades na ordem em que foram lançadas. O índice é usado na edição.
	Grades []Grade
}

// Average retorna a média da disciplina.
func (s Subject) Average() float64 {
	return SubjectAverage(s.Grades)
}

// Student é a entidade central: um aluno com suas disciplinas.
type Student struct {
	// ID é atribuído pelo servidor.
	ID string

	// Name nunca é vazio depois de persistido.
	Name string

	// Subjects na ordem devolvida pelo servidor.
	Subjects []Subject

	// LegacyGrades são notas soltas no aluno (esquema antigo, sem disciplina).
	LegacyGrades []Grade
}

// Subject procura a disciplina pelo nome exato.
func (s *Student) Subject(name string) (*Subject, bool) {
	for i := range s.Subjects {
		if s.Subjects[i].Name == name {
			return &s.Subjects[i], true
		}
	}
	return nil, false
}

// GradeCount conta as notas de todas as disciplinas.
func (s Student) GradeCount() int {
	n := 0
	for _, subj := range s.Subjects {
		n += len(subj.Grades)
	}
	return n
}

// AllGrades retorna todas as notas das disciplinas, achatadas.
func (s Student) AllGrades() []Grade {
	out := make([]Grade, 0, s.GradeCount())
	for _, subj := range s.Subjects {
		out = append(out, subj.Grades...)
	}
	return out
}

// Passing indica se a média geral atinge PassingThreshold.
func (s Student) Passing() bool {
	return OverallAverage(s) >= PassingThreshold
}

// Clone retorna uma cópia profunda, sem compartilhar slices.
func (s Student) Clone() Student {
	out := Student{ID: s.ID, Name: s.Name}
	if s.Subjects != nil {
		out.Subjects = make([]Subject, len(s.Subjects))
		for i, subj := range s.Subjects {
			out.Subjects[i] = Subject{Name: subj.Name, Grades: cloneGrades(subj.Grades)}
		}
	}
	out.LegacyGrades = cloneGrades(s.LegacyGrades)
	return out
}

func cloneGrades(g []Grade) []Grade {
	if g == nil {
		return nil
	}
	out := make([]Grade, len(g))
	copy(out, g)
	return out
}
