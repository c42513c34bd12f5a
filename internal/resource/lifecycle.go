package resource

import (
	"context"

	"dockup-scheduler/internal/job"
)

// lifecycle drives worker services through a Client.
type lifecycle struct {
	client Client
}

// Lifecycle adapts c to the job runner's lifecycle. Create builds and saves
// the service in one step, so a returned handle always refers to a remote
// resource that must be deleted.
func Lifecycle(c Client) job.Lifecycle {
	return &lifecycle{client: c}
}

func (l *lifecycle) Create(ctx context.Context, desc *job.Description) (*job.Handle, error) {
	r, err := l.client.Create(ctx, desc)
	if err != nil {
		return nil, err
	}
	saved, err := l.client.Save(ctx, r)
	if err != nil {
		return nil, err
	}
	return &job.Handle{ID: saved.ID, URI: saved.URI, State: saved.State}, nil
}

func (l *lifecycle) Start(ctx context.Context, h *job.Handle) error {
	return l.client.Start(ctx, handleResource(h))
}

func (l *lifecycle) State(ctx context.Context, h *job.Handle) (job.State, error) {
	r, err := l.client.Fetch(ctx, KindService, h.ID)
	if err != nil {
		return "", err
	}
	return r.State, nil
}

func (l *lifecycle) Delete(ctx context.Context, h *job.Handle) error {
	return l.client.Delete(ctx, handleResource(h))
}

func handleResource(h *job.Handle) *Resource {
	return &Resource{Kind: KindService, ID: h.ID, URI: h.URI, State: h.State}
}
