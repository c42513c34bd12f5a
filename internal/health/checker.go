// Package health provides health check functionality for liveness and readiness probes.
package health

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/juju/clock"
)

// ReadinessChecker is the interface for readiness checks.
// Implemented by resource backends and the upload verifier.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// CheckFunc adapts a function to ReadinessChecker.
type CheckFunc func(ctx context.Context) error

// Ready calls f.
func (f CheckFunc) Ready(ctx context.Context) error { return f(ctx) }

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// CheckResult contains the result of a health check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response is the health check response.
type Response struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

type check struct {
	checker  ReadinessChecker
	required bool
}

// Checker performs health checks on dependencies.
type Checker struct {
	checks   map[string]check
	timeout  time.Duration
	cacheTTL time.Duration
	clock    clock.Clock

	mu           sync.RWMutex
	lastCheck    time.Time
	cachedReady  *Response
	shuttingDown bool
}

// Option configures a Checker.
type Option func(*Checker)

// WithClock sets the time source used for the readiness cache.
func WithClock(c clock.Clock) Option {
	return func(ch *Checker) { ch.clock = c }
}

// WithCheck adds a required readiness check. A failing required check makes
// the service unhealthy.
func WithCheck(name string, c ReadinessChecker) Option {
	return func(ch *Checker) { ch.checks[name] = check{checker: c, required: true} }
}

// WithOptionalCheck adds a readiness check that only degrades the service
// when it fails.
func WithOptionalCheck(name string, c ReadinessChecker) Option {
	return func(ch *Checker) { ch.checks[name] = check{checker: c} }
}

// NewChecker creates a health checker whose readiness depends on the
// resource backend.
func NewChecker(backend ReadinessChecker, opts ...Option) *Checker {
	c := &Checker{
		checks:   map[string]check{"backend": {checker: backend, required: true}},
		timeout:  5 * time.Second,
		cacheTTL: time.Second,
		clock:    clock.WallClock,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Liveness returns true if the service is alive.
// This should be a lightweight check that doesn't depend on external services.
func (c *Checker) Liveness(ctx context.Context) *Response {
	return &Response{
		Status: StatusHealthy,
	}
}

// Readiness checks the registered dependencies. Results are cached briefly
// so probes do not hammer the backend API.
func (c *Checker) Readiness(ctx context.Context) *Response {
	c.mu.RLock()
	if c.shuttingDown {
		c.mu.RUnlock()
		return &Response{
			Status: StatusUnhealthy,
			Checks: map[string]CheckResult{
				"shutdown": {Status: StatusUnhealthy, Message: "service is shutting down"},
			},
		}
	}

	if c.cachedReady != nil && c.clock.Now().Sub(c.lastCheck) < c.cacheTTL {
		cached := c.cachedReady
		c.mu.RUnlock()
		return cached
	}
	c.mu.RUnlock()

	checks := make(map[string]CheckResult, len(c.checks))
	overallStatus := StatusHealthy

	for _, name := range slices.Sorted(maps.Keys(c.checks)) {
		ch := c.checks[name]
		result := c.run(ctx, ch.checker)
		checks[name] = result
		if result.Status == StatusHealthy {
			continue
		}
		if ch.required {
			overallStatus = StatusUnhealthy
		} else if overallStatus == StatusHealthy {
			overallStatus = StatusDegraded
		}
	}

	response := &Response{
		Status: overallStatus,
		Checks: checks,
	}

	c.mu.Lock()
	c.cachedReady = response
	c.lastCheck = c.clock.Now()
	c.mu.Unlock()

	return response
}

func (c *Checker) run(ctx context.Context, checker ReadinessChecker) CheckResult {
	if checker == nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "not configured",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := checker.Ready(ctx); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: err.Error(),
		}
	}

	return CheckResult{
		Status: StatusHealthy,
	}
}

// IsHealthy returns true if the overall status is healthy.
func (r *Response) IsHealthy() bool {
	return r.Status == StatusHealthy
}

// SetShuttingDown marks the service as shutting down.
// Readiness reports unhealthy from then on.
func (c *Checker) SetShuttingDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shuttingDown = true
	c.cachedReady = nil
}
