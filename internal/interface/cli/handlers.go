package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gestao-notas/notas-hub/internal/domain/shared"
	"github.com/gestao-notas/notas-hub/internal/domain/student"
	"github.com/gestao-notas/notas-hub/internal/interface/cli/presenter"
	"github.com/gestao-notas/notas-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMANDOS
// ══════════════════════════════════════════════════════════════════════════════

const msgInvalidGrade = "Nota inválida. Digite um número entre 0 e 10."

type commandHelp struct {
	usage string
	desc  string
}

func (c *Console) registerCommands() {
	c.router.RegisterCommand("list", c.handleList, "ls", "listar")
	c.router.RegisterCommand("show", c.handleShow, "ver")
	c.router.RegisterCommand("add", c.handleAdd, "adicionar")
	c.router.RegisterCommand("subject", c.handleSubject, "disciplina")
	c.router.RegisterCommand("grade", c.handleGrade, "nota")
	c.router.RegisterCommand("edit", c.handleEdit, "editar")
	c.router.RegisterCommand("delete", c.handleDelete, "rm", "excluir")
	c.router.RegisterCommand("retry", c.handleRetry, "reconectar")
	c.router.RegisterCommand("help", c.handleHelp, "ajuda", "?")
	c.router.RegisterCommand("quit", c.handleQuit, "exit", "sair")
	if c.legacy {
		c.router.RegisterCommand("legacy-grade", c.handleLegacyGrade, "nota-avulsa")
	}
	if c.export != nil {
		c.router.RegisterCommand("export", c.handleExport, "exportar")
	}
	c.router.SetDefaultCommandHandler(c.handleUnknown)
}

func (c *Console) helpLines() []commandHelp {
	lines := []commandHelp{
		{"list", "mostra todos os alunos"},
		{"show <id>", "mostra um aluno"},
		{"add <nome>", "adiciona um aluno"},
		{"subject <id> [disciplina]", "adiciona uma disciplina"},
		{"grade <id> <disciplina>", "lança uma nota"},
		{"edit <id> <índice> <disciplina>", "altera uma nota"},
		{"delete <id>", "exclui um aluno"},
		{"retry", "recarrega a lista do servidor"},
	}
	if c.legacy {
		lines = append(lines, commandHelp{"legacy-grade <id>", "adiciona uma nota avulsa"})
	}
	if c.export != nil {
		lines = append(lines, commandHelp{"export [arquivo.xlsx]", "exporta a planilha"})
	}
	return append(lines,
		commandHelp{"help", "mostra esta ajuda"},
		commandHelp{"quit", "sai"},
	)
}

// ─────────────────────────────────────────────────────────────────────────────
// LEITURA
// ─────────────────────────────────────────────────────────────────────────────

func (c *Console) handleList(_ context.Context, _ CommandContext) error {
	c.render()
	return nil
}

func (c *Console) handleShow(_ context.Context, cmdCtx CommandContext) error {
	if len(cmdCtx.Args) < 1 {
		c.println("Uso: show <id>")
		return nil
	}
	s, ok := c.lookup(cmdCtx.Args[0])
	if !ok {
		return nil
	}
	c.renderStudent(s)
	return nil
}

func (c *Console) handleRetry(ctx context.Context, _ CommandContext) error {
	c.println("Carregando dados do servidor...")
	if err := c.store.Retry(ctx); err != nil {
		c.logger.Warn("roster retry failed", "error", err)
	}
	c.render()
	return nil
}

func (c *Console) handleHelp(_ context.Context, _ CommandContext) error {
	var sb strings.Builder
	sb.WriteString("Comandos:\n")
	for _, h := range c.helpLines() {
		sb.WriteString(fmt.Sprintf("  %-34s %s\n", h.usage, h.desc))
	}
	sb.WriteString("Responda ESC + Enter para cancelar uma pergunta.\n")
	fmt.Fprint(c.out, sb.String())
	return nil
}

func (c *Console) handleQuit(_ context.Context, _ CommandContext) error {
	return errQuit
}

func (c *Console) handleUnknown(_ context.Context, cmdCtx CommandContext) error {
	c.printf("Comando desconhecido: %s. Digite \"help\" para ver os comandos.\n", cmdCtx.Command)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// ALUNOS
// ─────────────────────────────────────────────────────────────────────────────

func (c *Console) handleAdd(ctx context.Context, cmdCtx CommandContext) error {
	name := cmdCtx.Raw
	if name == "" {
		answer, ok, err := c.term.Ask(ctx, "Nome do aluno:")
		if err != nil || !ok {
			return err
		}
		name = answer
	}

	name = strings.TrimSpace(name)
	if name == "" {
		c.println("O nome do aluno não pode ser vazio.")
		return nil
	}

	created, err := c.store.CreateStudent(ctx, name)
	if shared.IsValidation(err) {
		// O nome pode ficar vazio depois da remoção de marcação.
		c.println("O nome do aluno não pode ser vazio.")
		return nil
	}
	if err != nil {
		c.logger.Warn("create student failed", "error", err)
		c.println("Erro ao adicionar aluno. Tente novamente.")
		return nil
	}

	c.printf("Aluno(a) %s adicionado(a) com sucesso!\n", created.Name)
	c.renderStudent(created)
	return nil
}

func (c *Console) handleDelete(ctx context.Context, cmdCtx CommandContext) error {
	if len(cmdCtx.Args) < 1 {
		c.println("Uso: delete <id>")
		return nil
	}
	s, ok := c.lookup(cmdCtx.Args[0])
	if !ok {
		return nil
	}

	confirmed, err := c.term.Confirm(ctx, fmt.Sprintf("Tem certeza que deseja excluir o aluno(a) %s?", s.Name))
	if err != nil || !confirmed {
		return err
	}

	if err := c.store.DeleteStudent(ctx, s.ID); err != nil {
		c.logger.Warn("delete student failed", "student_id", s.ID, "error", err)
		c.println("Erro ao excluir aluno. Tente novamente.")
		return nil
	}

	c.printf("Aluno(a) %s excluído(a) com sucesso!\n", s.Name)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// DISCIPLINAS E NOTAS
// ─────────────────────────────────────────────────────────────────────────────

func (c *Console) handleSubject(ctx context.Context, cmdCtx CommandContext) error {
	if len(cmdCtx.Args) < 1 {
		c.println("Uso: subject <id> [disciplina]")
		return nil
	}
	s, ok := c.lookup(cmdCtx.Args[0])
	if !ok {
		return nil
	}

	name := restAfter(cmdCtx.Raw, 1)
	if name == "" {
		answer, ok, err := c.term.Ask(ctx, fmt.Sprintf("Digite o nome da nova disciplina para %s:", s.Name))
		if err != nil || !ok {
			return err
		}
		name = strings.TrimSpace(answer)
	}
	if name == "" {
		c.println("O nome da disciplina não pode ser vazio.")
		return nil
	}

	updated, err := c.store.AddSubject(ctx, s.ID, name)
	if err != nil {
		c.logger.Warn("add subject failed", "student_id", s.ID, "subject", name, "error", err)
		c.printf("Erro ao adicionar disciplina. Detalhes: %s\n", errorDetail(err))
		return nil
	}

	c.printf("Disciplina \"%s\" adicionada para %s.\n", name, s.Name)
	c.renderStudent(updated)
	return nil
}

func (c *Console) handleGrade(ctx context.Context, cmdCtx CommandContext) error {
	if len(cmdCtx.Args) < 2 {
		c.println("Uso: grade <id> <disciplina>")
		return nil
	}
	s, ok := c.lookup(cmdCtx.Args[0])
	if !ok {
		return nil
	}
	subj, ok := c.lookupSubject(s, restAfter(cmdCtx.Raw, 1))
	if !ok {
		return nil
	}

	value, ok, err := c.askGrade(ctx, fmt.Sprintf("Digite a nova nota para %s: (0 a 10)", subj.Name))
	if err != nil || !ok {
		return err
	}

	updated, err := c.store.AddGrade(ctx, s.ID, subj.Name, value)
	if err != nil {
		c.logger.Warn("add grade failed", "student_id", s.ID, "subject", subj.Name, "error", err)
		c.printf("Erro ao lançar nota. Detalhes: %s\n", errorDetail(err))
		return nil
	}

	c.printf("Nota %s lançada para %s.\n", presenter.FormatGrade(student.Grade(value)), subj.Name)
	c.renderStudent(updated)
	return nil
}

func (c *Console) handleEdit(ctx context.Context, cmdCtx CommandContext) error {
	if len(cmdCtx.Args) < 3 {
		c.println("Uso: edit <id> <índice> <disciplina>")
		return nil
	}
	s, ok := c.lookup(cmdCtx.Args[0])
	if !ok {
		return nil
	}
	index, err := strconv.Atoi(cmdCtx.Args[1])
	if err != nil || index < 0 {
		c.printf("Índice de nota inválido: %s\n", cmdCtx.Args[1])
		return nil
	}
	subj, ok := c.lookupSubject(s, restAfter(cmdCtx.Raw, 2))
	if !ok {
		return nil
	}
	if index >= len(subj.Grades) {
		c.printf("Índice de nota inválido: %d\n", index)
		return nil
	}

	current := presenter.FormatGrade(subj.Grades[index])
	value, ok, err := c.askGrade(ctx, fmt.Sprintf("Nova nota para %s (Atual: %s): (0 a 10)", subj.Name, current))
	if err != nil || !ok {
		return err
	}

	updated, err := c.store.EditGrade(ctx, s.ID, subj.Name, index, value)
	if err != nil {
		c.logger.Warn("edit grade failed", "student_id", s.ID, "subject", subj.Name, "index", index, "error", err)
		c.printf("Erro ao editar nota. Detalhes: %s\n", errorDetail(err))
		return nil
	}

	c.printf("Nota alterada com sucesso para %s.\n", presenter.FormatGrade(student.Grade(value)))
	c.renderStudent(updated)
	return nil
}

func (c *Console) handleLegacyGrade(ctx context.Context, cmdCtx CommandContext) error {
	if len(cmdCtx.Args) < 1 {
		c.println("Uso: legacy-grade <id>")
		return nil
	}
	s, ok := c.lookup(cmdCtx.Args[0])
	if !ok {
		return nil
	}

	value, ok, err := c.askGrade(ctx, fmt.Sprintf("Digite a nota para %s (0-10):", s.Name))
	if err != nil || !ok {
		return err
	}

	updated, err := c.store.AddLegacyGrade(ctx, s.ID, value)
	if err != nil {
		c.logger.Warn("add legacy grade failed", "student_id", s.ID, "error", err)
		c.println("Erro ao adicionar nota. Tente novamente.")
		return nil
	}

	c.printf("Nota %s adicionada para %s.\n", presenter.FormatGrade(student.Grade(value)), s.Name)
	c.renderStudent(updated)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// EXPORTAÇÃO
// ─────────────────────────────────────────────────────────────────────────────

func (c *Console) handleExport(_ context.Context, cmdCtx CommandContext) error {
	path := cmdCtx.Raw
	if path == "" {
		path = fmt.Sprintf("alunos-%s.xlsx", timeutil.ToBrasilia(c.now()).Format(timeutil.FormatDate))
	}

	students := c.store.Snapshot().Students
	if err := c.writeExport(path, students); err != nil {
		c.logger.Warn("export failed", "path", path, "error", err)
		c.printf("Erro ao exportar planilha. Detalhes: %s\n", err.Error())
		return nil
	}

	c.printf("Planilha exportada para %s (%d alunos).\n", path, len(students))
	return nil
}

func (c *Console) writeExport(path string, students []student.Student) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return c.export(f, students)
}

// ─────────────────────────────────────────────────────────────────────────────
// HELPERS
// ─────────────────────────────────────────────────────────────────────────────

func (c *Console) lookup(id string) (student.Student, bool) {
	s, ok := c.store.Student(id)
	if !ok {
		c.printf("Aluno não encontrado: %s\n", id)
	}
	return s, ok
}

func (c *Console) lookupSubject(s student.Student, name string) (student.Subject, bool) {
	name, err := student.NormalizeSubjectName(name)
	if err != nil {
		c.println("O nome da disciplina não pode ser vazio.")
		return student.Subject{}, false
	}
	for _, subj := range s.Subjects {
		if subj.Name == name {
			return subj, true
		}
	}
	c.printf("Disciplina \"%s\" não encontrada para %s.\n", name, s.Name)
	return student.Subject{}, false
}

// askGrade pergunta uma nota. ok=false quando o usuário cancela ou digita
// um valor inválido; nesse caso o aviso já foi mostrado.
func (c *Console) askGrade(ctx context.Context, question string) (float64, bool, error) {
	answer, ok, err := c.term.Ask(ctx, question)
	if err != nil || !ok {
		return 0, false, err
	}
	value, valid := ParseGrade(answer)
	if !valid {
		c.println(msgInvalidGrade)
		return 0, false, nil
	}
	return value, true, nil
}

// ParseGrade lê uma nota digitada. Aceita vírgula decimal ("7,5").
func ParseGrade(input string) (float64, bool) {
	input = strings.ReplaceAll(strings.TrimSpace(input), ",", ".")
	if input == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(input, 64)
	if err != nil {
		return 0, false
	}
	if _, err := student.NewGrade(v); err != nil {
		return 0, false
	}
	return v, true
}

// errorDetail prefere a mensagem do servidor ao texto do erro.
func errorDetail(err error) string {
	var detailed interface{ Detail() string }
	if errors.As(err, &detailed) {
		if d := detailed.Detail(); d != "" {
			return d
		}
	}
	return err.Error()
}

// restAfter descarta os n primeiros campos de raw.
func restAfter(raw string, n int) string {
	rest := strings.TrimSpace(raw)
	for i := 0; i < n && rest != ""; i++ {
		idx := strings.IndexAny(rest, " \t")
		if idx < 0 {
			return ""
		}
		rest = strings.TrimSpace(rest[idx:])
	}
	return rest
}
