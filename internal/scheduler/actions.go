package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"dockup-scheduler/internal/apperrors"
	"dockup-scheduler/internal/job"
	"dockup-scheduler/internal/resource"
)

// Actions binds schedule file actions to the rest of the process.
type Actions struct {
	Backup Func
	Client resource.Client
}

// Func returns the job function for spec.
func (a Actions) Func(spec JobSpec) (Func, error) {
	switch spec.Action {
	case ActionBackup:
		if a.Backup == nil {
			return nil, apperrors.Validation("action", "backup is not configured")
		}
		return a.Backup, nil
	case ActionStartService:
		service := spec.Service
		return func(ctx context.Context) error {
			return StartService(ctx, a.Client, service)
		}, nil
	case ActionCreateService:
		desc := *spec.Spec
		return func(ctx context.Context) error {
			d := desc
			_, err := CreateService(ctx, a.Client, &d)
			return err
		}, nil
	default:
		return nil, apperrors.Validation("action", fmt.Sprintf("unknown action %q", spec.Action))
	}
}

// Register adds every job of file to s.
func (a Actions) Register(s *Scheduler, file *File) error {
	for _, spec := range file.Jobs {
		fn, err := a.Func(spec)
		if err != nil {
			return fmt.Errorf("job %s: %w", spec.Name, err)
		}
		if err := s.Add(spec.Name, spec.Schedule, fn); err != nil {
			return err
		}
	}
	return nil
}

// StartService starts an existing service given its identifier or URI.
func StartService(ctx context.Context, c resource.Client, service string) error {
	id := service
	if strings.Contains(service, "/") {
		var err error
		if id, err = resource.ExtractID(service); err != nil {
			return err
		}
	}

	svc, err := c.Fetch(ctx, resource.KindService, id)
	if err != nil {
		return fmt.Errorf("failed to fetch service %s: %w", id, err)
	}
	if err := c.Start(ctx, svc); err != nil {
		return apperrors.Lifecycle(apperrors.ErrStart, "service.start", svc.URI, err)
	}
	slog.Info("Service started", "service", svc.Name, "resource", svc.URI)
	return nil
}

// CreateService creates, saves and starts a service. Unlike worker jobs it
// is left running.
func CreateService(ctx context.Context, c resource.Client, desc *job.Description) (*resource.Resource, error) {
	job.ApplyDefaults(desc)
	if err := job.Validate(desc); err != nil {
		return nil, err
	}

	unsaved, err := c.Create(ctx, desc)
	if err != nil {
		return nil, apperrors.Lifecycle(apperrors.ErrCreate, "service.create", desc.Name, err)
	}
	svc, err := c.Save(ctx, unsaved)
	if err != nil {
		return nil, apperrors.Lifecycle(apperrors.ErrCreate, "service.save", desc.Name, err)
	}
	if err := c.Start(ctx, svc); err != nil {
		return svc, apperrors.Lifecycle(apperrors.ErrStart, "service.start", svc.URI, err)
	}
	slog.Info("Service created", "service", svc.Name, "resource", svc.URI)
	return svc, nil
}
