package student

import "math"

// PassingThreshold é a média geral mínima para aprovação.
const PassingThreshold = 7.0

// SubjectAverage calcula a média aritmética com duas casas decimais.
// Uma lista vazia tem média 0.
func SubjectAverage(grades []Grade) float64 {
	if len(grades) == 0 {
		return 0
	}
	var sum float64
	for _, g := range grades {
		sum += float64(g)
	}
	return Round2(sum / float64(len(grades)))
}

// OverallAverage calcula a média de todas as notas de todas as disciplinas.
// Disciplinas com mais notas pesam mais. Notas avulsas não entram.
func OverallAverage(s Student) float64 {
	return SubjectAverage(s.AllGrades())
}

// Round2 arredonda para duas casas, metade para longe do zero.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}
