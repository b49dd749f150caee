// Package cli implements the interactive terminal for Gestão de Notas.
// The console reads commands line by line, runs them against the roster
// store and prints the results through the presenter.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gestao-notas/notas-hub/internal/application/roster"
	"github.com/gestao-notas/notas-hub/internal/domain/student"
	"github.com/gestao-notas/notas-hub/internal/interface/cli/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// RosterStore é o subconjunto do roster.Store usado pelo console.
type RosterStore interface {
	Subscribe(fn func(roster.Snapshot)) (unsubscribe func())
	Snapshot() roster.Snapshot
	Student(id string) (student.Student, bool)
	Start(ctx context.Context) error
	Retry(ctx context.Context) error
	CreateStudent(ctx context.Context, name string) (student.Student, error)
	AddSubject(ctx context.Context, studentID, subjectName string) (student.Student, error)
	AddGrade(ctx context.Context, studentID, subjectName string, value float64) (student.Student, error)
	EditGrade(ctx context.Context, studentID, subjectName string, index int, value float64) (student.Student, error)
	AddLegacyGrade(ctx context.Context, studentID string, value float64) (student.Student, error)
	DeleteStudent(ctx context.Context, studentID string) error
}

// ExportFunc grava a lista de alunos em w.
type ExportFunc func(w io.Writer, students []student.Student) error

// ConsoleConfig configura o console.
type ConsoleConfig struct {
	Store    RosterStore
	Terminal Terminal
	Out      io.Writer

	// Presenter formata a saída. Sem cor quando nil.
	Presenter *presenter.StudentCardPresenter

	// ServiceURL aparece no aviso de erro de conexão.
	ServiceURL string

	// Export habilita o comando export quando não é nil.
	Export ExportFunc

	// LegacyGrades habilita o comando legacy-grade.
	LegacyGrades bool

	Logger *slog.Logger

	// Now é usado no nome padrão do arquivo exportado.
	Now func() time.Time
}

// errQuit encerra o loop do console.
var errQuit = errors.New("quit")

// ══════════════════════════════════════════════════════════════════════════════
// CONSOLE
// ══════════════════════════════════════════════════════════════════════════════

// Console é o loop interativo.
type Console struct {
	store      RosterStore
	term       Terminal
	out        io.Writer
	presenter  *presenter.StudentCardPresenter
	router     *Router
	serviceURL string
	export     ExportFunc
	legacy     bool
	logger     *slog.Logger
	now        func() time.Time

	mu     sync.Mutex
	status roster.Status
}

// NewConsole cria o console e registra os comandos.
func NewConsole(config ConsoleConfig) *Console {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := config.Presenter
	if p == nil {
		p = presenter.NewStudentCardPresenter(false)
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}

	c := &Console{
		store:      config.Store,
		term:       config.Terminal,
		out:        config.Out,
		presenter:  p,
		serviceURL: config.ServiceURL,
		export:     config.Export,
		legacy:     config.LegacyGrades,
		logger:     logger,
		now:        now,
		status:     roster.StatusIdle,
	}
	c.router = NewRouter(RouterConfig{Logger: logger})
	c.registerCommands()
	return c
}

// Run carrega a lista e processa comandos até EOF, quit ou ctx cancelado.
func (c *Console) Run(ctx context.Context) error {
	unsubscribe := c.store.Subscribe(c.observe)
	defer unsubscribe()

	c.println("Gestão de Notas")
	c.println("")
	c.println("Carregando dados do servidor...")
	if err := c.store.Start(ctx); err != nil && ctx.Err() != nil {
		return nil
	}
	c.render()
	c.println("Digite \"help\" para ver os comandos.")

	for {
		line, err := c.term.ReadLine(ctx, c.promptText())
		switch {
		case errors.Is(err, io.EOF):
			c.println("Até logo!")
			return nil
		case ctx.Err() != nil:
			return nil
		case err != nil:
			return fmt.Errorf("read command: %w", err)
		}

		if err := c.router.Handle(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				c.println("Até logo!")
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("command failed", "error", err)
		}
	}
}

// Handle executa uma linha de comando fora do loop.
func (c *Console) Handle(ctx context.Context, line string) error {
	err := c.router.Handle(ctx, line)
	if errors.Is(err, errQuit) {
		return nil
	}
	return err
}

// observe acompanha o status para o prompt.
func (c *Console) observe(snap roster.Snapshot) {
	c.mu.Lock()
	c.status = snap.Status
	c.mu.Unlock()
}

func (c *Console) promptText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == roster.StatusError {
		return "notas [erro]> "
	}
	return "notas> "
}

// ─────────────────────────────────────────────────────────────────────────────
// OUTPUT
// ─────────────────────────────────────────────────────────────────────────────

func (c *Console) render() {
	fmt.Fprint(c.out, c.presenter.FormatRoster(c.store.Snapshot(), c.serviceURL))
}

func (c *Console) renderStudent(s student.Student) {
	fmt.Fprint(c.out, c.presenter.FormatStudentCard(s))
}

func (c *Console) println(s string) {
	fmt.Fprintln(c.out, s)
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}
