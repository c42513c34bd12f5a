// Package api provides the admin HTTP API: probes, the schedule listing and
// manual triggers.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"dockup-scheduler/internal/apperrors"
	"dockup-scheduler/internal/health"
	"dockup-scheduler/internal/scheduler"
)

// Scheduler is the part of *scheduler.Scheduler the API uses.
type Scheduler interface {
	Entries() []scheduler.Entry
	Trigger(name string) error
}

// ScheduleResponse is the body of GET /v1/schedule.
type ScheduleResponse struct {
	Jobs []scheduler.Entry `json:"jobs"`
}

// TriggerResponse is the body of POST /v1/schedule/{name}/run.
type TriggerResponse struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Handler contains HTTP handlers for the admin API
type Handler struct {
	scheduler Scheduler
	health    *health.Checker
}

// NewHandler creates a new API handler
func NewHandler(s Scheduler, healthChecker *health.Checker) *Handler {
	return &Handler{
		scheduler: s,
		health:    healthChecker,
	}
}

// ListSchedule handles GET /v1/schedule
func (h *Handler) ListSchedule(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ScheduleResponse{Jobs: h.scheduler.Entries()})
}

// RunSchedule handles POST /v1/schedule/{name}/run. The run is queued on
// the scheduler goroutine, so the response does not wait for it.
func (h *Handler) RunSchedule(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "schedule name is required")
		return
	}

	if err := h.scheduler.Trigger(name); err != nil {
		handleError(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "Schedule triggered", "schedule", name, "requestId", RequestID(r.Context()))
	writeJSON(w, http.StatusAccepted, TriggerResponse{Name: name, Status: "queued"})
}

// Livez handles GET /livez - liveness probe.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.health.Liveness(r.Context()))
}

// Readyz handles GET /readyz - readiness probe.
// Returns 503 while the resource backend is unreachable or during shutdown.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if response.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, response)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleError maps err to a status code with apperrors.HTTPStatus.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.ErrorContext(r.Context(), "Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.WarnContext(r.Context(), "Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	writeError(w, status, err.Error())
}
