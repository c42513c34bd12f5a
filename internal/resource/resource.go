// Package resource models the hosting platform's services, stacks and
// containers, and adapts a platform client to the job lifecycle.
package resource

import (
	"context"

	"dockup-scheduler/internal/job"
)

// Kind names a resource collection in the platform API.
type Kind string

const (
	KindService   Kind = "service"
	KindStack     Kind = "stack"
	KindContainer Kind = "container"
)

// Resource is the subset of a platform resource the scheduler consumes.
// Topology links (Stack, Services, Containers) are resource URIs.
type Resource struct {
	Kind                Kind
	ID                  string
	URI                 string
	Name                string
	State               job.State
	ImageName           string
	Stack               string
	Services            []string
	Containers          []string
	Bindings            []job.Binding
	TargetNumContainers int

	// Spec holds the description of a service that has been created
	// locally but not yet saved.
	Spec *job.Description
}

// Saved reports whether the resource exists on the platform.
func (r *Resource) Saved() bool {
	return r.ID != ""
}

// Client is a platform API client.
type Client interface {
	// Fetch returns the resource of the given kind and identifier.
	Fetch(ctx context.Context, kind Kind, id string) (*Resource, error)

	// Create builds an unsaved service from desc. No remote call is made.
	Create(ctx context.Context, desc *job.Description) (*Resource, error)

	// Save persists r: an unsaved service is created remotely, a saved one
	// is updated. Returns the resource as the platform reports it.
	Save(ctx context.Context, r *Resource) (*Resource, error)

	// Start starts a saved service.
	Start(ctx context.Context, r *Resource) error

	// Delete removes a saved service and its containers.
	Delete(ctx context.Context, r *Resource) error

	// Ready checks if the platform API is reachable.
	Ready(ctx context.Context) error
}

// FetchURI resolves uri to its identifier and fetches the resource.
func FetchURI(ctx context.Context, c Client, kind Kind, uri string) (*Resource, error) {
	id, err := ExtractID(uri)
	if err != nil {
		return nil, err
	}
	return c.Fetch(ctx, kind, id)
}
