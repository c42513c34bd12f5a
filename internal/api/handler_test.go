package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"dockup-scheduler/internal/health"
	"dockup-scheduler/internal/scheduler"
)

func newTestRouter(t *testing.T, apiKey string) (http.Handler, *scheduler.Scheduler) {
	t.Helper()
	s := scheduler.New()
	if err := s.Add("backup", "every 1m", func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	backend := health.CheckFunc(func(context.Context) error { return nil })
	return NewRouter(RouterConfig{
		Scheduler:     s,
		HealthChecker: health.NewChecker(backend),
		APIKey:        apiKey,
	}), s
}

func TestHandler_Livez(t *testing.T) {
	t.Parallel()
	handler := &Handler{
		health: health.NewChecker(nil),
	}

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	w := httptest.NewRecorder()

	handler.Livez(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response health.Response
	json.NewDecoder(w.Body).Decode(&response)

	if response.Status != health.StatusHealthy {
		t.Errorf("Expected status healthy, got %s", response.Status)
	}
}

func TestHandler_Readyz(t *testing.T) {
	t.Parallel()

	up := health.CheckFunc(func(context.Context) error { return nil })
	down := health.CheckFunc(func(context.Context) error { return errors.New("dial tcp: connection refused") })

	tests := []struct {
		name    string
		checker *health.Checker
		want    int
	}{
		{"no backend", health.NewChecker(nil), http.StatusServiceUnavailable},
		{"backend down", health.NewChecker(down), http.StatusServiceUnavailable},
		{"backend up", health.NewChecker(up), http.StatusOK},
		{"storage degraded", health.NewChecker(up, health.WithOptionalCheck("storage", down)), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			handler := &Handler{health: tt.checker}

			req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
			w := httptest.NewRecorder()
			handler.Readyz(w, req)

			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestRouter_ListSchedule(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodGet, "/v1/schedule", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var resp ScheduleResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Jobs) != 1 || resp.Jobs[0].Name != "backup" || resp.Jobs[0].Schedule != "every 1m" {
		t.Errorf("Unexpected jobs %+v", resp.Jobs)
	}
}

func TestRouter_RunSchedule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
		want int
	}{
		{"known schedule", "/v1/schedule/backup/run", http.StatusAccepted},
		{"unknown schedule", "/v1/schedule/missing/run", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			router, _ := newTestRouter(t, "")

			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestRouter_RunSchedule_QueueFull(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t, "")

	// Nothing drains the queue while the scheduler is not running.
	var last int
	for range 32 {
		req := httptest.NewRequest(http.MethodPost, "/v1/schedule/backup/run", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		last = w.Code
	}
	if last != http.StatusConflict {
		t.Errorf("Expected status %d once the queue is full, got %d", http.StatusConflict, last)
	}
}

func TestRouter_Auth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"health check without token", "/livez", "", http.StatusOK},
		{"missing token", "/v1/schedule", "", http.StatusUnauthorized},
		{"wrong scheme", "/v1/schedule", "Basic c2VjcmV0", http.StatusUnauthorized},
		{"wrong token", "/v1/schedule", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "/v1/schedule", "Bearer secret", http.StatusOK},
		{"lowercase scheme", "/v1/schedule", "bearer secret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			router, _ := newTestRouter(t, "secret")

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodDelete, "/v1/schedule", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status %d, got %d", http.StatusMethodNotAllowed, w.Code)
	}
}

func TestMiddleware_Logging(t *testing.T) {
	t.Parallel()
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	handler := LoggingMiddleware()(inner)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if !called {
		t.Error("Inner handler was not called")
	}
}

func TestMiddleware_Recovery(t *testing.T) {
	t.Parallel()
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	handler := RecoveryMiddleware()(inner)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}

func TestMiddleware_RequestID(t *testing.T) {
	t.Parallel()

	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	})
	handler := RequestIDMiddleware()(inner)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if seen != "abc-123" || w.Header().Get(RequestIDHeader) != "abc-123" {
		t.Errorf("Expected caller id to be kept, got context %q header %q", seen, w.Header().Get(RequestIDHeader))
	}

	req = httptest.NewRequest(http.MethodGet, "/test", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if seen == "" || seen == "abc-123" {
		t.Errorf("Expected a generated id, got %q", seen)
	}
	if w.Header().Get(RequestIDHeader) != seen {
		t.Errorf("Response header %q does not match context id %q", w.Header().Get(RequestIDHeader), seen)
	}
}
