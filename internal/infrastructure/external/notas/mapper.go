package notas

import (
	"github.com/gestao-notas/notas-hub/internal/domain/student"
)

// Mapper converts service DTOs to domain entities.
type Mapper struct{}

// NewMapper creates a new Mapper.
func NewMapper() *Mapper {
	return &Mapper{}
}

// StudentToDomain maps a StudentDTO. A missing subject list becomes an empty
// one and flat grades go to LegacyGrades untouched.
func (m *Mapper) StudentToDomain(dto StudentDTO) student.Student {
	s := student.Student{
		ID:       string(dto.ID),
		Name:     dto.Name,
		Subjects: make([]student.Subject, 0, len(dto.Subjects)),
	}

	for _, subj := range dto.Subjects {
		s.Subjects = append(s.Subjects, student.Subject{
			Name:   subj.Name,
			Grades: toGrades(subj.Grades),
		})
	}

	if dto.Grades != nil {
		s.LegacyGrades = toGrades(dto.Grades)
	}
	return s
}

// StudentsToDomain maps a list payload, preserving order.
func (m *Mapper) StudentsToDomain(dtos []StudentDTO) []student.Student {
	out := make([]student.Student, 0, len(dtos))
	for _, dto := range dtos {
		out = append(out, m.StudentToDomain(dto))
	}
	return out
}

func toGrades(values []float64) []student.Grade {
	grades := make([]student.Grade, len(values))
	for i, v := range values {
		grades[i] = student.Grade(v)
	}
	return grades
}
