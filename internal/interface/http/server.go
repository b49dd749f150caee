// Package http serves the worker's status endpoints and the published
// roster report.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gestao-notas/notas-hub/internal/application/query"
	"github.com/gestao-notas/notas-hub/internal/infrastructure/scheduler"
	"github.com/gestao-notas/notas-hub/internal/interface/http/handlers"
	"github.com/gestao-notas/notas-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config for NewServer. Start from DefaultConfig.
type Config struct {
	Host string
	Port int

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// CORS is answered only for AllowedOrigins; "*" allows any origin.
	EnableCORS     bool
	AllowedOrigins []string

	// EnableXLSX routes GET /api/v1/report.xlsx.
	EnableXLSX bool

	// The manual job trigger is routed only when APIKeys is non-empty.
	APIKeyHeader string
	APIKeys      []string

	Version string
}

func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
		EnableCORS:     true,
		AllowedOrigins: []string{"*"},
		EnableXLSX:     true,
		APIKeyHeader:   "X-API-Key",
		Version:        "v1",
	}
}

// Address is host:port for net.Listen.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ReportReader reads the published report.
type ReportReader interface {
	Latest(ctx context.Context) (*query.GetReportResult, error)
	StudentRow(ctx context.Context, studentID string) (*query.GetStudentRowResult, error)
}

// JobRunner is the part of the scheduler the job endpoints need.
type JobRunner interface {
	Jobs() []scheduler.JobStatus
	Totals() scheduler.Totals
	Trigger(ctx context.Context, name string) (*scheduler.RunResult, error)
}

// Dependencies are all optional. A nil Reports answers 501 on the report
// routes and a nil Jobs leaves the job routes out.
type Dependencies struct {
	Reports       ReportReader
	Jobs          JobRunner
	HealthChecker handlers.HealthChecker
	Logger        *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

type Server struct {
	config Config
	deps   Dependencies
	logger *logger.Logger
	mux    *http.ServeMux
	srv    *http.Server

	mu        sync.Mutex
	startedAt time.Time
}

func NewServer(config Config, deps Dependencies) *Server {
	log := deps.Logger
	if log == nil {
		log = logger.Default()
	}

	s := &Server{
		config: config,
		deps:   deps,
		logger: log.With(logger.Component("http")),
		mux:    http.NewServeMux(),
	}
	s.routes()

	s.srv = &http.Server{
		Addr:           config.Address(),
		Handler:        s.middleware(s.mux),
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}
	return s
}

// Handler is the routed mux behind the full middleware chain.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)
	s.mux.HandleFunc("GET /live", s.handleLive)

	s.mux.HandleFunc("GET /api/v1/report", s.handleGetReport)
	s.mux.HandleFunc("GET /api/v1/report/summary", s.handleGetSummary)
	s.mux.HandleFunc("GET /api/v1/report/students/{id}", s.handleGetStudentRow)
	if s.config.EnableXLSX {
		s.mux.HandleFunc("GET /api/v1/report.xlsx", s.handleGetReportXLSX)
	}

	if s.deps.Jobs == nil {
		return
	}
	s.mux.HandleFunc("GET /api/v1/jobs", s.handleListJobs)
	if len(s.config.APIKeys) > 0 {
		auth := handlers.NewAPIKeyAuth(s.config.APIKeyHeader, s.config.APIKeys)
		s.mux.Handle("POST /api/v1/jobs/{name}/run", auth.Middleware(http.HandlerFunc(s.handleRunJob)))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Lifecycle
// ─────────────────────────────────────────────────────────────────────────────

// StartAsync listens in a goroutine. The channel carries the listen error,
// if any, and is closed once the server is down.
func (s *Server) StartAsync() <-chan error {
	s.mu.Lock()
	s.startedAt = time.Now()
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		s.logger.Info("http server listening", logger.String("address", s.config.Address()))
		if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen %s: %w", s.config.Address(), err)
		}
	}()
	return errCh
}

// Shutdown stops accepting requests and waits for the ones in flight.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.srv.Shutdown(ctx)
}

// Uptime is zero until StartAsync is called.
func (s *Server) Uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() {
		return 0
	}
	return time.Since(s.startedAt)
}
