package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dockup-scheduler/internal/apperrors"
	"dockup-scheduler/pkg/backoff"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// errNotTerminal marks a poll that observed a non-terminal state.
var errNotTerminal = errors.New("terminal state not reached")

// Runner drives one worker resource at a time through
// create, start, poll-until-terminal and delete.
//
// Once Create has succeeded, Delete is attempted exactly once on every exit
// path, with a context detached from the caller's so a cancelled cycle
// still tears down its worker. A failed delete is joined into the returned
// error and logged with the resource URI.
type Runner struct {
	lifecycle Lifecycle
	cfg       RunnerConfig
	clock     clock.Clock
	tracer    trace.Tracer
}

// NewRunner creates a new job runner.
func NewRunner(lifecycle Lifecycle, cfg RunnerConfig) *Runner {
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.DeleteTimeout <= 0 {
		cfg.DeleteTimeout = 30 * time.Second
	}
	return &Runner{
		lifecycle: lifecycle,
		cfg:       cfg,
		clock:     cfg.Clock,
		tracer:    otel.Tracer("dockup-scheduler/job"),
	}
}

// Run creates the worker described by desc, starts it, waits until its
// state equals terminal (checking every pollInterval) and deletes it.
// Note: This method applies defaults to desc before validation.
func (r *Runner) Run(ctx context.Context, desc *Description, terminal State, pollInterval time.Duration) (err error) {
	if desc != nil {
		ApplyDefaults(desc)
	}
	if err := Validate(desc); err != nil {
		return err
	}
	if terminal == "" {
		return apperrors.Validation("terminal", "terminal state is required")
	}
	if pollInterval <= 0 {
		return apperrors.Validation("pollInterval", "poll interval must be positive")
	}

	ctx, span := r.tracer.Start(ctx, "job.Run", trace.WithAttributes(
		attribute.String("job.name", desc.Name),
		attribute.String("job.image", desc.Image),
		attribute.String("job.terminal_state", string(terminal)),
	))
	defer span.End()

	logger := slog.With("job", desc.Name, "image", desc.Image)
	start := r.clock.Now()

	handle, err := r.lifecycle.Create(ctx, desc)
	if err != nil {
		err = apperrors.Lifecycle(apperrors.ErrCreate, "job.create", desc.Name, err)
		logger.Error("Job failed to create", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordJobCreated(ctx, desc.Image)
	}
	logger = logger.With("resource", handle.URI)
	logger.Info("Job created")

	defer func() {
		if derr := r.delete(ctx, logger, handle); derr != nil {
			err = errors.Join(err, derr)
		}
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.RecordJobCompleted(ctx, desc.Image, err == nil, r.clock.Now().Sub(start).Seconds())
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if err := r.lifecycle.Start(ctx, handle); err != nil {
		err = apperrors.Lifecycle(apperrors.ErrStart, "job.start", handle.URI, err)
		logger.Error("Job failed to start", "error", err)
		return err
	}
	logger.Info("Job started")

	if err := r.wait(ctx, logger, desc.Image, handle, terminal, pollInterval); err != nil {
		logger.Error("Job did not finish", "error", err, "state", handle.State)
		return err
	}

	logger.Info("Job finished", "state", handle.State)
	return nil
}

// wait sleeps pollInterval, then re-fetches the state until it equals
// terminal or a configured bound is hit.
func (r *Runner) wait(ctx context.Context, logger *slog.Logger, image string, h *Handle, terminal State, pollInterval time.Duration) error {
	select {
	case <-r.clock.After(pollInterval):
	case <-ctx.Done():
		return fmt.Errorf("waiting for %s: %w", h.URI, ctx.Err())
	}

	attempts := r.cfg.MaxPolls
	if attempts <= 0 {
		attempts = -1 // forever
	}

	var fetchErr error
	args := retry.CallArgs{
		Func: func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			state, err := r.lifecycle.State(ctx, h)
			if err != nil {
				fetchErr = err
				return err
			}
			h.State = state
			if r.cfg.Metrics != nil {
				r.cfg.Metrics.RecordJobPoll(ctx, image)
			}
			if state != terminal {
				return errNotTerminal
			}
			return nil
		},
		IsFatalError: func(err error) bool {
			return !errors.Is(err, errNotTerminal)
		},
		NotifyFunc: func(_ error, attempt int) {
			logger.Debug("Waiting for terminal state", "state", h.State, "want", terminal, "attempt", attempt)
		},
		Attempts:    attempts,
		Delay:       pollInterval,
		MaxDuration: r.cfg.Timeout,
		Clock:       r.clock,
		Stop:        ctx.Done(),
	}
	if cfg := r.backoffConfig(pollInterval); cfg != nil {
		args.BackoffFunc = backoff.Func(cfg)
		args.MaxDelay = cfg.Max
	}

	err := retry.Call(args)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("waiting for %s: %w", h.URI, ctx.Err())
	case fetchErr != nil:
		return apperrors.Lifecycle(apperrors.ErrFetch, "job.fetch", h.URI, fetchErr)
	case retry.IsAttemptsExceeded(err), retry.IsDurationExceeded(err):
		return apperrors.PollTimeout(h.URI, string(terminal), string(h.State), err)
	default:
		return apperrors.Internal("job.wait", err)
	}
}

// backoffConfig returns the poll backoff, or nil for a fixed interval.
func (r *Runner) backoffConfig(pollInterval time.Duration) *backoff.Config {
	if r.cfg.MaxBackoff <= 0 {
		return nil
	}
	return &backoff.Config{Initial: pollInterval, Max: r.cfg.MaxBackoff, Factor: r.cfg.BackoffFactor}
}

func (r *Runner) delete(ctx context.Context, logger *slog.Logger, h *Handle) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.DeleteTimeout)
	defer cancel()

	if err := r.lifecycle.Delete(ctx, h); err != nil {
		err = apperrors.Lifecycle(apperrors.ErrDelete, "job.delete", h.URI, err)
		logger.Error("Job resource was not deleted and may be orphaned", "error", err)
		return err
	}
	logger.Info("Job deleted")
	return nil
}
