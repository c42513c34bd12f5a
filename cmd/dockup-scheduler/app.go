package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"dockup-scheduler/internal/backup"
	"dockup-scheduler/internal/config"
	"dockup-scheduler/internal/health"
	"dockup-scheduler/internal/job"
	"dockup-scheduler/internal/observability"
	"dockup-scheduler/internal/resource"
	"dockup-scheduler/internal/resource/docker"
	"dockup-scheduler/internal/resource/tutum"
	"dockup-scheduler/internal/scheduler"
	"dockup-scheduler/internal/storage/s3"
)

// app holds the wired components shared by the run and backup commands.
type app struct {
	cfg            *config.ServiceConfig
	backupCfg      backup.Config
	client         resource.Client
	metrics        *observability.Metrics
	metricsHandler http.Handler
	verifier       *s3.Verifier
	orchestrator   *backup.Orchestrator
	shutdownTracer func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.ServiceConfig) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.backupCfg = backup.LoadConfigFromEnv()
	a.backupCfg.ServiceURI = cfg.ServiceURI
	if err := a.backupCfg.Validate(); err != nil {
		return nil, err
	}

	if a.shutdownTracer, err = observability.InitTracer(ctx, "dockup-scheduler"); err != nil {
		return nil, fmt.Errorf("failed to initialise tracing: %w", err)
	}

	if a.metrics, a.metricsHandler, err = observability.NewMetrics(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialise metrics: %w", err)
	}

	if a.client, err = newBackend(ctx, cfg.Backend); err != nil {
		return nil, err
	}
	slog.Info("Resource backend ready", "backend", cfg.Backend)

	opts := []backup.Option{backup.WithMetrics(a.metrics)}
	if a.backupCfg.VerifyUploads {
		if a.verifier, err = s3.NewVerifier(ctx, s3.LoadConfigFromEnv()); err != nil {
			return nil, fmt.Errorf("failed to create upload verifier: %w", err)
		}
		// An unreachable bucket is reported per container, not at startup.
		if err := a.verifier.Ping(ctx, a.backupCfg.Bucket); err != nil {
			slog.Warn("Backup bucket is not reachable", "bucket", a.backupCfg.Bucket, "error", err)
		}
		opts = append(opts, backup.WithVerifier(a.verifier))
	}

	runnerCfg := job.LoadRunnerConfigFromEnv()
	runnerCfg.Metrics = a.metrics
	runner := job.NewRunner(resource.Lifecycle(a.client), runnerCfg)

	a.orchestrator = backup.New(a.client, runner, a.backupCfg, opts...)
	return a, nil
}

func newBackend(ctx context.Context, name string) (resource.Client, error) {
	switch name {
	case config.BackendDocker:
		c, err := docker.NewClient(ctx, docker.LoadConfigFromEnv())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to docker: %w", err)
		}
		return c, nil
	default:
		c, err := tutum.NewClient(tutum.LoadConfigFromEnv())
		if err != nil {
			return nil, fmt.Errorf("failed to create tutum client: %w", err)
		}
		return c, nil
	}
}

// runBackup runs one backup cycle and reports any failure as an error, so
// the scheduler counts it.
func (a *app) runBackup(ctx context.Context) error {
	report, err := a.orchestrator.RunCycle(ctx)
	if err != nil {
		return err
	}
	return report.Err()
}

// schedule builds the scheduler from the schedule file, or a single backup
// job on BACKUP_SCHEDULE when there is none.
func (a *app) schedule() (*scheduler.Scheduler, error) {
	s := scheduler.New(scheduler.WithMetrics(a.metrics))

	if a.cfg.ScheduleFile == "" {
		if err := s.Add("backup", a.cfg.BackupSchedule, a.runBackup); err != nil {
			return nil, err
		}
		return s, nil
	}

	file, err := scheduler.LoadFile(a.cfg.ScheduleFile)
	if err != nil {
		return nil, err
	}
	actions := scheduler.Actions{Backup: a.runBackup, Client: a.client}
	if err := actions.Register(s, file); err != nil {
		return nil, err
	}
	return s, nil
}

// healthChecker reports the backend as required and the backup bucket as
// optional when uploads are verified.
func (a *app) healthChecker() *health.Checker {
	var opts []health.Option
	if a.verifier != nil {
		bucket := a.backupCfg.Bucket
		opts = append(opts, health.WithOptionalCheck("storage", health.CheckFunc(func(ctx context.Context) error {
			return a.verifier.Ping(ctx, bucket)
		})))
	}
	return health.NewChecker(a.client, opts...)
}

// Close releases the backend connection and flushes traces.
func (a *app) Close() {
	if closer, ok := a.client.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			slog.Warn("Failed to close backend client", "error", err)
		}
	}
	if a.shutdownTracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := a.shutdownTracer(ctx); err != nil {
			slog.Warn("Failed to flush traces", "error", err)
		}
	}
}
