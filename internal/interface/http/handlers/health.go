package handlers

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

// HealthChecker is what /health and /ready consult.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// HealthCheckFunc fails the check by returning an error.
type HealthCheckFunc func(ctx context.Context) error

// HealthStatus. Healthy and Ready drop to false when a required check
// fails; a failing optional check only sets Degraded.
type HealthStatus struct {
	Healthy   bool                   `json:"healthy"`
	Ready     bool                   `json:"ready"`
	Degraded  bool                   `json:"degraded,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

type CheckResult struct {
	Healthy  bool   `json:"healthy"`
	Optional bool   `json:"optional,omitempty"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

type check struct {
	fn       HealthCheckFunc
	optional bool
}

// CompositeHealthChecker runs its checks in parallel, each bounded by the
// checker's timeout.
type CompositeHealthChecker struct {
	version string
	started time.Time

	mu      sync.RWMutex
	checks  map[string]check
	timeout time.Duration
}

var _ HealthChecker = (*CompositeHealthChecker)(nil)

func NewCompositeHealthChecker(version string) *CompositeHealthChecker {
	return &CompositeHealthChecker{
		version: version,
		started: time.Now(),
		checks:  map[string]check{},
		timeout: 5 * time.Second,
	}
}

func (c *CompositeHealthChecker) SetTimeout(d time.Duration) {
	c.mu.Lock()
	c.timeout = d
	c.mu.Unlock()
}

// AddCheck registers a check the service cannot run without.
func (c *CompositeHealthChecker) AddCheck(name string, fn HealthCheckFunc) {
	c.mu.Lock()
	c.checks[name] = check{fn: fn}
	c.mu.Unlock()
}

// AddOptionalCheck registers a check whose failure only degrades the service.
func (c *CompositeHealthChecker) AddOptionalCheck(name string, fn HealthCheckFunc) {
	c.mu.Lock()
	c.checks[name] = check{fn: fn, optional: true}
	c.mu.Unlock()
}

func (c *CompositeHealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := make(map[string]check, len(c.checks))
	for name, ch := range c.checks {
		checks[name] = ch
	}
	timeout := c.timeout
	c.mu.RUnlock()

	status := HealthStatus{
		Healthy:   true,
		Ready:     true,
		Checks:    make(map[string]CheckResult, len(checks)),
		Uptime:    time.Since(c.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Version:   c.version,
	}
	if len(checks) == 0 {
		status.Message = "No health checks registered"
		return status
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, ch := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := run(ctx, ch, timeout)
			mu.Lock()
			status.Checks[name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()

	var failed []string
	for name, res := range status.Checks {
		if res.Healthy {
			continue
		}
		failed = append(failed, name)
		if res.Optional {
			status.Degraded = true
		} else {
			status.Healthy, status.Ready = false, false
		}
	}
	slices.Sort(failed)

	switch {
	case len(failed) == 0:
		status.Message = "All checks passed"
	case status.Healthy:
		status.Message = "Degraded: " + strings.Join(failed, ", ")
	default:
		status.Message = "Some checks failed: " + strings.Join(failed, ", ")
	}
	return status
}

func run(ctx context.Context, ch check, timeout time.Duration) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := ch.fn(ctx)
	res := CheckResult{
		Healthy:  err == nil,
		Optional: ch.optional,
		Message:  "OK",
		Duration: time.Since(start).Round(time.Millisecond).String(),
	}
	if err != nil {
		res.Message = err.Error()
	}
	return res
}

// ─────────────────────────────────────────────────────────────────────────────
// Checks
// ─────────────────────────────────────────────────────────────────────────────

// Pinger is satisfied by the PostgreSQL connection and the Redis cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck turns a Pinger into a check.
func PingCheck(p Pinger) HealthCheckFunc { return p.Ping }

// ExternalAPIChecker is satisfied by the student service client.
type ExternalAPIChecker interface {
	HealthCheck(ctx context.Context) error
}

func ExternalAPICheck(api ExternalAPIChecker) HealthCheckFunc { return api.HealthCheck }
