package api

import (
	"net/http"

	"dockup-scheduler/internal/health"
	"dockup-scheduler/internal/observability"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Scheduler     Scheduler
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	APIKey        string
}

// NewRouter creates the admin HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.Scheduler, cfg.HealthChecker)

	mux := http.NewServeMux()

	// Probes are unauthenticated.
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	auth := AuthMiddleware(cfg.APIKey)
	mux.Handle("GET /v1/schedule", auth(http.HandlerFunc(handler.ListSchedule)))
	mux.Handle("POST /v1/schedule/{name}/run", auth(http.HandlerFunc(handler.RunSchedule)))

	// Outermost last.
	var h http.Handler = mux
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = TracingMiddleware()(h)
	h = RequestIDMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
