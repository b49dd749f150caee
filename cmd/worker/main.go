// Package main é o ponto de entrada do worker de relatórios de Gestão de Notas.
//
// O worker busca periodicamente a lista de alunos no serviço remoto,
// calcula as médias e a situação de cada aluno e publica o relatório
// no PostgreSQL e no Redis. Um servidor HTTP expõe o último relatório,
// a exportação XLSX, o estado dos jobs e os health checks.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gestao-notas/notas-hub/config"
	"github.com/gestao-notas/notas-hub/internal/application/command"
	"github.com/gestao-notas/notas-hub/internal/application/query"
	"github.com/gestao-notas/notas-hub/internal/domain/student"
	"github.com/gestao-notas/notas-hub/internal/infrastructure/external/notas"
	"github.com/gestao-notas/notas-hub/internal/infrastructure/persistence/postgres"
	"github.com/gestao-notas/notas-hub/internal/infrastructure/persistence/redis"
	"github.com/gestao-notas/notas-hub/internal/infrastructure/scheduler"
	"github.com/gestao-notas/notas-hub/internal/infrastructure/scheduler/jobs"
	httpserver "github.com/gestao-notas/notas-hub/internal/interface/http"
	"github.com/gestao-notas/notas-hub/internal/interface/http/handlers"
	"github.com/gestao-notas/notas-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
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
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGS
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	httpLog := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		AddCaller: cfg.App.Debug,
	})

	log.Info("starting report worker",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"service", cfg.API.ResourceURL(),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. BANCO DE DADOS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	poolOpts := postgres.DefaultPoolOptions()
	poolOpts.MaxConns = int32(cfg.Database.MaxConns)
	poolOpts.MaxConnLifetime = cfg.Database.ConnMaxLifetime

	dbConn, err := postgres.Open(ctx, cfg.Database.URL, poolOpts)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. MIGRAÇÕES
	// ─────────────────────────────────────────────────────────────────────────
	if err := postgres.NewMigrator(dbConn).Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date")

	reportRepo := postgres.NewReportRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REDIS (opcional)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		redisCache  *redis.Cache
		reportCache student.ReportCache
	)

	if !cfg.Redis.Disabled {
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err = redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, caching disabled", "error", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
			log.Info("Redis connection established", "addr", redisCfg.Addr())
			if cfg.Features.IsEnabled(config.FeatureReportCache) {
				reportCache = redis.NewReportCache(redisCache)
			}
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. CLIENTE DO SERVIÇO REMOTO
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
	// 7. CASOS DE USO
	// ─────────────────────────────────────────────────────────────────────────
	publisher := command.NewPublishReportHandler(command.PublishReportHandlerConfig{
		Source:   client,
		Repo:     reportRepo,
		Cache:    reportCache,
		CacheTTL: cfg.Redis.ReportTTL,
		Logger:   log,
	})
	reports := query.NewGetReportHandler(reportRepo, reportCache, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.New(scheduler.Config{
		Logger:     log,
		JobTimeout: cfg.Scheduler.JobTimeout,
	})

	if cfg.Scheduler.Enabled {
		schedule, err := reportSchedule(cfg.Scheduler)
		if err != nil {
			return fmt.Errorf("invalid report schedule: %w", err)
		}

		var opts []scheduler.Option
		if cfg.Scheduler.RunOnStart {
			opts = append(opts, scheduler.RunOnStart())
		}

		job := jobs.NewPublishRosterReportJob(publisher, log)
		if err := sched.Register(job, schedule, opts...); err != nil {
			return fmt.Errorf("failed to register %s: %w", job.Name(), err)
		}

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		log.Info("scheduler started", "job", job.Name(), "schedule", schedule.String())
	} else {
		log.Warn("scheduler disabled, report will not be refreshed")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HEALTH CHECKS
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("database", handlers.PingCheck(dbConn))
	if redisCache != nil {
		health.AddOptionalCheck("cache", handlers.PingCheck(redisCache))
	}
	health.AddOptionalCheck("notas_api", handlers.ExternalAPICheck(client))

	// ─────────────────────────────────────────────────────────────────────────
	// 10. SERVIDOR HTTP
	// ─────────────────────────────────────────────────────────────────────────
	var (
		server    *httpserver.Server
		serverErr <-chan error
	)

	if cfg.HTTP.Enabled && cfg.Features.IsEnabled(config.FeatureReportHTTP) {
		httpCfg := httpserver.DefaultConfig()
		httpCfg.Host = cfg.HTTP.Host
		httpCfg.Port = cfg.HTTP.Port
		httpCfg.APIKeys = cfg.HTTP.APIKeys
		httpCfg.EnableXLSX = cfg.Features.IsEnabled(config.FeatureCLIExport)
		httpCfg.Version = cfg.App.Version

		deps := httpserver.Dependencies{
			Reports:       reports,
			Logger:        httpLog,
			HealthChecker: health,
		}
		if cfg.Scheduler.Enabled {
			deps.Jobs = sched
		}

		server = httpserver.NewServer(httpCfg, deps)
		serverErr = server.StartAsync()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 11. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("report worker is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err, ok := <-serverErr:
		if ok && err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("http server shutdown failed", "error", err)
		}
	}

	if sched.Running() {
		if err := sched.Stop(); err != nil {
			log.Error("scheduler stop failed", "error", err)
		}
	}

	log.Info("shutdown completed")
	return runErr
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// reportSchedule escolhe a expressão cron quando configurada, senão o intervalo.
func reportSchedule(cfg config.SchedulerConfig) (scheduler.Schedule, error) {
	if cfg.ReportSchedule != "" {
		return scheduler.ParseSchedule(cfg.ReportSchedule)
	}
	if cfg.ReportInterval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", cfg.ReportInterval)
	}
	return scheduler.NewIntervalSchedule(cfg.ReportInterval), nil
}

// setupLogger configura o slog conforme LOG_LEVEL e LOG_FORMAT.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Observability.LogLevel)}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.IsProduction() || strings.EqualFold(cfg.Observability.LogFormat, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
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
