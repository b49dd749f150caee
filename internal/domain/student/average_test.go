package student

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestao-notas/notas-hub/internal/domain/shared"
)

func TestSubjectAverage(t *testing.T) {
	tests := []struct {
		name   string
		grades []Grade
		want   float64
	}{
		{"empty", nil, 0},
		{"single", []Grade{7}, 7},
		{"two decimals", []Grade{7, 8, 8}, 7.67},
		{"round half up", []Grade{8.125, 8.125}, 8.13},
		{"zeros", []Grade{0, 0}, 0},
		{"max", []Grade{10, 10, 10}, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SubjectAverage(tt.grades))
		})
	}
}

func TestOverallAverage_IsFlattenedMean(t *testing.T) {
	s := Student{Subjects: []Subject{
		{Name: "Matemática", Grades: []Grade{7, 9}},
		{Name: "História", Grades: []Grade{10}},
	}}

	assert.Equal(t, 8.67, OverallAverage(s))

	meanOfMeans := Round2((s.Subjects[0].Average() + s.Subjects[1].Average()) / 2)
	assert.Equal(t, 8.25, meanOfMeans)
}

func TestOverallAverage_NoGrades(t *testing.T) {
	assert.Zero(t, OverallAverage(Student{}))
	assert.Zero(t, OverallAverage(Student{Subjects: []Subject{{Name: "Física"}}}))
}

func TestOverallAverage_IgnoresLegacyGrades(t *testing.T) {
	s := Student{
		Subjects:     []Subject{{Name: "Química", Grades: []Grade{6}}},
		LegacyGrades: []Grade{10, 10},
	}

	assert.Equal(t, 6.0, OverallAverage(s))
}

func TestPassing(t *testing.T) {
	passing := Student{Subjects: []Subject{{Name: "Artes", Grades: []Grade{7}}}}
	failing := Student{Subjects: []Subject{{Name: "Artes", Grades: []Grade{6.99}}}}

	assert.True(t, passing.Passing())
	assert.False(t, failing.Passing())
	assert.False(t, Student{}.Passing())
}

func TestNewGrade(t *testing.T) {
	for _, v := range []float64{0, 5.5, 10} {
		g, err := NewGrade(v)
		require.NoError(t, err)
		assert.Equal(t, v, g.Float64())
	}

	for _, v := range []float64{-1, 11, 10.01, math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := NewGrade(v)
		assert.ErrorIs(t, err, shared.ErrValueOutOfRange, "value %v", v)
		assert.True(t, shared.IsValidation(err))
	}
}

func TestNormalizeName(t *testing.T) {
	name, err := NormalizeName("  Ana Souza \n")
	require.NoError(t, err)
	assert.Equal(t, "Ana Souza", name)

	_, err = NormalizeName(" \t ")
	assert.ErrorIs(t, err, shared.ErrEmptyValue)

	_, err = NormalizeSubjectName("")
	assert.True(t, shared.IsValidation(err))

	assert.ErrorIs(t, ValidateID(" "), shared.ErrInvalidID)
	assert.NoError(t, ValidateID("42"))
}

func TestClone_DoesNotShareSlices(t *testing.T) {
	orig := Student{
		ID:           "1",
		Name:         "Ana",
		Subjects:     []Subject{{Name: "Física", Grades: []Grade{5}}},
		LegacyGrades: []Grade{3},
	}

	c := orig.Clone()
	c.Subjects[0].Grades[0] = 9
	c.LegacyGrades[0] = 9

	assert.Equal(t, Grade(5), orig.Subjects[0].Grades[0])
	assert.Equal(t, Grade(3), orig.LegacyGrades[0])
}

func TestStudentSubjectLookup(t *testing.T) {
	s := Student{Subjects: []Subject{{Name: "Física"}, {Name: "Química"}}}

	subj, ok := s.Subject("Química")
	require.True(t, ok)
	assert.Equal(t, "Química", subj.Name)

	_, ok = s.Subject("química")
	assert.False(t, ok)
}

func TestBuildReport(t *testing.T) {
	at := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	students := []Student{
		{ID: "1", Name: "Ana", Subjects: []Subject{
			{Name: "Matemática", Grades: []Grade{7, 9}},
			{Name: "História", Grades: []Grade{10}},
		}},
		{ID: "2", Name: "Bruno", Subjects: []Subject{{Name: "Matemática", Grades: []Grade{4}}}},
		{ID: "3", Name: "Carla"},
	}

	report := BuildReport("r1", at, students)

	assert.Equal(t, RosterSummary{Students: 3, Subjects: 3, Grades: 4, Passing: 1, Average: 7.5}, report.Summary)
	require.Len(t, report.Rows, 3)

	row, ok := report.Row("1")
	require.True(t, ok)
	assert.Equal(t, 8.67, row.Overall)
	assert.True(t, row.Passing)
	assert.Equal(t, 3, row.GradeCount)
	assert.Equal(t, []SubjectResult{
		{Subject: "Matemática", GradeCount: 2, Average: 8},
		{Subject: "História", GradeCount: 1, Average: 10},
	}, row.Subjects)

	empty, ok := report.Row("3")
	require.True(t, ok)
	assert.Zero(t, empty.Overall)
	assert.Empty(t, empty.Subjects)

	_, ok = report.Row("404")
	assert.False(t, ok)
}
