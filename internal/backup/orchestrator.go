// Package backup walks the scheduler's own stack and backs up the volumes of
// every sibling container to S3 through short-lived dockup workers.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dockup-scheduler/internal/apperrors"
	"dockup-scheduler/internal/job"
	"dockup-scheduler/internal/observability"
	"dockup-scheduler/internal/resource"
	"dockup-scheduler/internal/storage/s3"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// UploadVerifier confirms that a copy worker produced an object.
type UploadVerifier interface {
	Verify(ctx context.Context, bucket, prefix string, since time.Time) (*s3.Object, error)
}

// Failure is one container that could not be backed up.
type Failure struct {
	Target string
	Err    error
}

// Report summarizes one backup cycle. Targets are container names.
type Report struct {
	CycleID string
	Backed  []string
	Skipped []string
	Failed  []Failure
}

// Err joins the errors of all failed targets.
func (r *Report) Err() error {
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, f.Err)
	}
	return errors.Join(errs...)
}

// Orchestrator runs backup cycles.
type Orchestrator struct {
	client   resource.Client
	runner   *job.Runner
	cfg      Config
	clock    clock.Clock
	verifier UploadVerifier
	metrics  *observability.Metrics
	tracer   trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock sets the time source used for cooldowns (default wall clock).
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithVerifier enables upload verification after each copy worker.
func WithVerifier(v UploadVerifier) Option {
	return func(o *Orchestrator) { o.verifier = v }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New creates an orchestrator that submits workers through runner and reads
// topology through client.
func New(client resource.Client, runner *job.Runner, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client: client,
		runner: runner,
		cfg:    cfg,
		clock:  clock.WallClock,
		tracer: otel.Tracer("dockup-scheduler/backup"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunCycle backs up every container of every service in the scheduler's
// stack, one worker at a time. Per-container failures are collected in the
// report; with PolicyContinue the cycle goes on and the returned error joins
// them, with PolicyAbort the first one ends the cycle.
func (o *Orchestrator) RunCycle(ctx context.Context) (*Report, error) {
	report := &Report{CycleID: uuid.NewString()}
	logger := slog.With("component", "backup", "cycleId", report.CycleID)

	ctx, span := o.tracer.Start(ctx, "backup.RunCycle", trace.WithAttributes(
		attribute.String("backup.cycle_id", report.CycleID),
	))
	defer span.End()

	start := o.clock.Now()
	logger.Info("Backup cycle started")

	err := o.runCycle(ctx, logger, report)

	if o.metrics != nil {
		o.metrics.RecordCycle(ctx, err == nil, o.clock.Now().Sub(start).Seconds(),
			len(report.Backed), len(report.Skipped), len(report.Failed))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("Backup cycle failed", "error", err,
			"backed", len(report.Backed), "skipped", len(report.Skipped), "failed", len(report.Failed))
		return report, err
	}

	logger.Info("Backup cycle finished",
		"backed", len(report.Backed), "skipped", len(report.Skipped))
	return report, nil
}

func (o *Orchestrator) runCycle(ctx context.Context, logger *slog.Logger, report *Report) error {
	self, err := resource.FetchURI(ctx, o.client, resource.KindService, o.cfg.ServiceURI)
	if err != nil {
		return fmt.Errorf("failed to resolve own service: %w", err)
	}
	stack, err := resource.FetchURI(ctx, o.client, resource.KindStack, self.Stack)
	if err != nil {
		return fmt.Errorf("failed to resolve stack of %s: %w", self.Name, err)
	}
	logger.Debug("Resolved stack", "stack", stack.Name, "services", len(stack.Services))

	for _, serviceURI := range stack.Services {
		svc, err := resource.FetchURI(ctx, o.client, resource.KindService, serviceURI)
		if err != nil {
			if ferr := o.fail(logger, report, serviceURI, err); ferr != nil {
				return ferr
			}
			continue
		}

		for _, containerURI := range svc.Containers {
			if err := ctx.Err(); err != nil {
				return err
			}
			ctr, err := resource.FetchURI(ctx, o.client, resource.KindContainer, containerURI)
			if err != nil {
				if ferr := o.fail(logger, report, containerURI, err); ferr != nil {
					return ferr
				}
				continue
			}

			clogger := logger.With("service", svc.Name, "container", ctr.Name)
			if sameImage(ctr.ImageName, o.cfg.BackupImage) {
				clogger.Debug("Skipping backup worker container")
				report.Skipped = append(report.Skipped, ctr.Name)
				continue
			}

			if err := o.backupContainer(ctx, clogger, svc, ctr); err != nil {
				if ferr := o.fail(clogger, report, ctr.Name, err); ferr != nil {
					return ferr
				}
				continue
			}
			report.Backed = append(report.Backed, ctr.Name)
		}
	}

	return report.Err()
}

// fail records a failed target. Returns non-nil when the cycle must stop.
func (o *Orchestrator) fail(logger *slog.Logger, report *Report, target string, err error) error {
	err = fmt.Errorf("%s: %w", target, err)
	report.Failed = append(report.Failed, Failure{Target: target, Err: err})
	logger.Error("Backup target failed", "target", target, "error", err)

	if o.cfg.ErrorPolicy == PolicyAbort || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// backupContainer runs the dump worker for database containers, then the
// copy worker, then verifies the upload and cools down.
func (o *Orchestrator) backupContainer(ctx context.Context, logger *slog.Logger, svc, ctr *resource.Resource) error {
	database := sameImage(ctr.ImageName, o.cfg.DatabaseImage)
	if database {
		desc, err := o.dumpDescription(svc, ctr)
		if err != nil {
			return err
		}
		logger.Info("Dumping database", "job", desc.Name)
		if err := o.runner.Run(ctx, desc, job.StateStopped, o.cfg.PollInterval); err != nil {
			return fmt.Errorf("database dump: %w", err)
		}
	}

	desc := o.copyDescription(svc, ctr, database)
	logger.Info("Backing up volumes", "job", desc.Name, "paths", pathsToBackup(ctr))

	since := o.clock.Now()
	err := o.runner.Run(ctx, desc, job.StateNotRunning, o.cfg.PollInterval)
	if err != nil {
		err = fmt.Errorf("volume copy: %w", err)
	} else if o.verifier != nil {
		err = o.verify(ctx, logger, ctr, since)
	}

	if cerr := o.cooldown(ctx); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (o *Orchestrator) verify(ctx context.Context, logger *slog.Logger, ctr *resource.Resource, since time.Time) error {
	prefix := o.cfg.Folder + backupName(ctr)
	obj, err := o.verifier.Verify(ctx, o.cfg.Bucket, prefix, since)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return fmt.Errorf("upload verification: no object under s3://%s/%s since %s: %w",
				o.cfg.Bucket, prefix, since.UTC().Format(time.RFC3339), err)
		}
		return fmt.Errorf("upload verification: %w", err)
	}
	logger.Info("Upload verified", "key", obj.Key, "size", obj.Size)
	return nil
}

func (o *Orchestrator) cooldown(ctx context.Context) error {
	if o.cfg.Cooldown <= 0 {
		return nil
	}
	select {
	case <-o.clock.After(o.cfg.Cooldown):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
