// Package student contém o modelo de domínio do aluno da Gestão de Notas.
//
// O pacote define:
//
//   - Entidades: Student, Subject
//   - Value Objects: Grade
//   - Agregação: SubjectAverage, OverallAverage, RosterSummary
//   - Relatório da turma: Report, ReportRow
//   - Interfaces de persistência: ReportRepository, ReportCache
//
// # Princípios
//
// Nenhuma dependência externa, apenas a biblioteca padrão. As implementações
// das interfaces ficam em infrastructure/persistence.
//
// # Médias
//
// A média geral é a média achatada de todas as notas de todas as
// disciplinas, e não a média das médias:
//
//	s := Student{Subjects: []Subject{
//	    {Name: "Matemática", Grades: []Grade{7, 9}},
//	    {Name: "História", Grades: []Grade{10}},
//	}}
//	OverallAverage(s) // 8.67, e não 8.25
//
// Todas as médias são arredondadas para duas casas decimais e valem 0 quando
// não há notas.
//
// # Notas avulsas
//
// Algumas respostas do serviço trazem notas diretamente no aluno, sem
// disciplina. Elas ficam em Student.LegacyGrades e não entram em nenhuma
// média.
package student
