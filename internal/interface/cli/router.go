package cli

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	// Logger for structured logging.
	Logger *slog.Logger

	// Debug enables debug logging for routing decisions.
	Debug bool
}

// CommandContext carries one parsed input line.
type CommandContext struct {
	// Command is the lower-cased first word.
	Command string

	// Args is the rest of the line split on whitespace.
	Args []string

	// Raw is the text after the command, untouched.
	Raw string
}

// CommandHandler handles one command.
type CommandHandler func(ctx context.Context, cmdCtx CommandContext) error

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER
// ══════════════════════════════════════════════════════════════════════════════

// Router dispatches console lines to registered command handlers.
type Router struct {
	logger *slog.Logger
	debug  bool

	mu             sync.RWMutex
	commands       map[string]CommandHandler
	aliases        map[string]string
	defaultHandler CommandHandler
}

// NewRouter creates a router.
func NewRouter(config RouterConfig) *Router {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		logger:   logger,
		debug:    config.Debug,
		commands: make(map[string]CommandHandler),
		aliases:  make(map[string]string),
	}
}

// RegisterCommand registers a handler under name and optional aliases.
func (r *Router) RegisterCommand(name string, handler CommandHandler, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name = strings.ToLower(name)
	r.commands[name] = handler
	for _, a := range aliases {
		r.aliases[strings.ToLower(a)] = name
	}
}

// SetDefaultCommandHandler sets the handler for unknown commands.
func (r *Router) SetDefaultCommandHandler(handler CommandHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultHandler = handler
}

// Handle parses line and runs the matching handler. Blank lines are ignored.
func (r *Router) Handle(ctx context.Context, line string) error {
	cmdCtx, ok := ParseLine(line)
	if !ok {
		return nil
	}

	r.mu.RLock()
	name := cmdCtx.Command
	if target, isAlias := r.aliases[name]; isAlias {
		name = target
	}
	h, found := r.commands[name]
	def := r.defaultHandler
	r.mu.RUnlock()

	if r.debug {
		r.logger.Debug("routing command", "command", cmdCtx.Command, "resolved", name, "args", len(cmdCtx.Args))
	}

	if !found {
		if def == nil {
			return nil
		}
		return def(ctx, cmdCtx)
	}
	return h(ctx, cmdCtx)
}

// Commands returns registered command names, sorted.
func (r *Router) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseLine splits a console line into command and arguments.
func ParseLine(line string) (CommandContext, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return CommandContext{}, false
	}

	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	return CommandContext{
		Command: strings.ToLower(cmd),
		Args:    strings.Fields(rest),
		Raw:     rest,
	}, true
}
