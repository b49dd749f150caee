package shared

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_IsMatchesKindAndCause(t *testing.T) {
	err := WrapError("notas", "ListStudents", ErrConnectivity, "request failed", context.DeadlineExceeded)

	assert.True(t, errors.Is(err, ErrConnectivity))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "notas.ListStudents: request failed: context deadline exceeded", err.Error())
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		validation   bool
		connectivity bool
	}{
		{"empty name", ErrEmptyStudentName, true, false},
		{"grade range", ErrGradeOutOfRange, true, false},
		{"empty id", ErrEmptyStudentID, true, false},
		{"unavailable", ErrNotasAPIUnavailable, false, true},
		{"wrapped connectivity", WrapError("notas", "Op", ErrConnectivity, "x", errors.New("eof")), false, true},
		{"not found", ErrStudentNotFound, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.validation, IsValidation(tt.err))
			assert.Equal(t, tt.connectivity, IsConnectivity(tt.err))
		})
	}
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(ErrReportNotFound))
	assert.True(t, IsNotFound(ErrReportRowNotFound))
	assert.False(t, IsNotFound(ErrGradeOutOfRange))
}
