package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"dockup-scheduler/internal/api"
	"dockup-scheduler/internal/config"

	"github.com/spf13/cobra"
)

func newRunCmd(global *globalOptions) *cobra.Command {
	var (
		scheduleFile string
		port         string
		runAtStart   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler and the admin API until signalled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := global.serviceConfig()
			if err != nil {
				return err
			}
			if scheduleFile != "" {
				cfg.ScheduleFile = scheduleFile
			}
			if port != "" {
				cfg.Port = port
			}
			return serve(cmd.Context(), cfg, runAtStart)
		},
	}

	cmd.Flags().StringVar(&scheduleFile, "schedule-file", "", "YAML schedule file (overrides SCHEDULE_FILE)")
	cmd.Flags().StringVar(&port, "port", "", "admin API port (overrides PORT)")
	cmd.Flags().BoolVar(&runAtStart, "run-at-start", false, "trigger every scheduled job once on startup")
	return cmd
}

func serve(parent context.Context, cfg *config.ServiceConfig, runAtStart bool) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := a.schedule()
	if err != nil {
		return err
	}

	healthChecker := a.healthChecker()
	router := api.NewRouter(api.RouterConfig{
		Scheduler:     sched,
		Metrics:       a.metrics,
		HealthChecker: healthChecker,
		APIKey:        cfg.APIKey,
	})

	if cfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no API_KEY_FILE configured")
	}

	apiServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", a.metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + cfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 2)

	go func() {
		slog.Info("Starting API server", "port", cfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	go func() {
		slog.Info("Starting metrics server", "port", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	schedDone := make(chan error, 1)
	go func() { schedDone <- sched.Run(ctx) }()

	if runAtStart {
		for _, e := range sched.Entries() {
			if err := sched.Trigger(e.Name); err != nil {
				slog.Warn("Failed to trigger job at start", "schedule", e.Name, "error", err)
			}
		}
	}

	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		runErr = err
		stop()
	case err := <-schedDone:
		// Run only returns early on misuse; keep the exit visible.
		slog.Error("Scheduler exited", "error", err)
		schedDone <- err
		runErr = err
		stop()
	}

	healthChecker.SetShuttingDown()

	// The in-flight job sees the cancelled context; its worker is deleted
	// with a detached context before Run returns.
	select {
	case <-schedDone:
	case <-time.After(cfg.ShutdownTimeout):
		slog.Warn("Scheduler did not stop in time; a worker service may be left behind",
			"timeout", cfg.ShutdownTimeout)
	}

	shutdown(5 * time.Second)
	slog.Info("Shutdown complete")
	return runErr
}
