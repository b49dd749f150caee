package notas

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT DTOs
// ══════════════════════════════════════════════════════════════════════════════

// StudentID accepts both JSON strings and JSON numbers; the service has
// returned either depending on its storage backend.
type StudentID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *StudentID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StudentID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("student id must be a string or a number: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*id = StudentID(strconv.FormatInt(i, 10))
		return nil
	}
	*id = StudentID(n.String())
	return nil
}

// StudentDTO is a student as returned by the service.
type StudentDTO struct {
	ID StudentID `json:"id"`

	// Name is the student's display name.
	Name string `json:"nome"`

	// Subjects is missing on records created through the flat schema.
	Subjects []SubjectDTO `json:"disciplinas"`

	// Grades is the flat (legacy) grade list kept on the student itself.
	Grades []float64 `json:"notas,omitempty"`
}

// SubjectDTO is a subject nested under a student.
type SubjectDTO struct {
	Name   string    `json:"nome"`
	Grades []float64 `json:"notas"`
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST DTOs
// ══════════════════════════════════════════════════════════════════════════════

// CreateStudentRequest is the body of POST {resource}.
type CreateStudentRequest struct {
	Name     string       `json:"nome" validate:"required"`
	Subjects []SubjectDTO `json:"disciplinas" validate:"len=0"`
}

// AddSubjectRequest is the body of POST {resource}/{id}/disciplinas.
type AddSubjectRequest struct {
	Name string `json:"nome" validate:"required"`
}

// AddGradeRequest is the body of both grade-append endpoints.
type AddGradeRequest struct {
	Grade float64 `json:"nota" validate:"gte=0,lte=10"`
}

// EditGradeRequest is the body of PUT .../notas/{index}.
type EditGradeRequest struct {
	Grade float64 `json:"novaNota" validate:"gte=0,lte=10"`
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR RESPONSES
// ══════════════════════════════════════════════════════════════════════════════

// errorBodyDTO covers the error shapes the service sends back.
type errorBodyDTO struct {
	Message  string `json:"message"`
	Mensagem string `json:"mensagem"`
	Error    string `json:"error"`
	Erro     string `json:"erro"`
}

func (e errorBodyDTO) text() string {
	for _, s := range []string{e.Mensagem, e.Message, e.Erro, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}
