// Package main é o ponto de entrada do terminal de Gestão de Notas.
//
// O terminal lista os alunos do serviço remoto, mostra médias por
// disciplina e geral, e permite cadastrar alunos, disciplinas e notas.
// Todo o estado vive no serviço; aqui ficam só a lista em memória e a
// apresentação.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/gestao-notas/notas-hub/config"
	"github.com/gestao-notas/notas-hub/internal/application/roster"
	"github.com/gestao-notas/notas-hub/internal/infrastructure/export"
	"github.com/gestao-notas/notas-hub/internal/infrastructure/external/notas"
	"github.com/gestao-notas/notas-hub/internal/interface/cli"
	"github.com/gestao-notas/notas-hub/internal/interface/cli/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "erro fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURAÇÃO
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGS (stderr, para não misturar com a saída do terminal)
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Debug("starting gradebook terminal",
		"env", cfg.App.Environment,
		"service", cfg.API.ResourceURL(),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. CLIENTE DO SERVIÇO REMOTO
	// ─────────────────────────────────────────────────────────────────────────
	clientCfg := notas.DefaultClientConfig(cfg.API.BaseURL, cfg.API.ResourcePath)
	clientCfg.Timeout = cfg.API.RequestTimeout
	clientCfg.MaxAttempts = cfg.API.MaxAttempts
	clientCfg.RetryBaseDelay = cfg.API.RetryBaseDelay
	clientCfg.RetryMaxDelay = cfg.API.RetryMaxDelay
	clientCfg.CircuitBreakerThreshold = cfg.API.CircuitBreakerThreshold
	clientCfg.CircuitBreakerTimeout = cfg.API.CircuitBreakerTimeout
	clientCfg.RateLimit = cfg.API.RateLimit
	clientCfg.RateBurst = cfg.API.RateBurst
	clientCfg.Logger = log
	client := notas.NewClient(clientCfg)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. LISTA EM MEMÓRIA
	// ─────────────────────────────────────────────────────────────────────────
	store := roster.NewStore(client,
		roster.WithLogger(log),
		roster.WithInitialDelay(cfg.API.InitialLoadDelay),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. TERMINAL
	// ─────────────────────────────────────────────────────────────────────────
	color := cfg.Features.IsEnabled(config.FeatureCLIColor) && term.IsTerminal(int(os.Stdout.Fd()))

	terminal := cli.NewLinePrompter(os.Stdin, os.Stdout)
	defer terminal.Close()

	consoleCfg := cli.ConsoleConfig{
		Store:        store,
		Terminal:     terminal,
		Out:          os.Stdout,
		Presenter:    presenter.NewStudentCardPresenter(color),
		ServiceURL:   cfg.API.ResourceURL(),
		LegacyGrades: cfg.Features.IsEnabled(config.FeatureCLILegacyGrades),
		Logger:       log,
	}
	if cfg.Features.IsEnabled(config.FeatureCLIExport) {
		consoleCfg.Export = export.WriteRoster
	}

	return cli.NewConsole(consoleCfg).Run(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger configura o slog conforme LOG_LEVEL e LOG_FORMAT.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Observability.LogLevel)}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Observability.LogFormat, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
