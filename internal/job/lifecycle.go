// Package job runs ephemeral worker resources through their lifecycle.
package job

import "context"

// Lifecycle is the remote API surface the Runner drives. Implementations
// live with the resource backends (Tutum, Docker).
//
// Every method is a network call with real cost: a handle returned by Create
// stays billable until Delete succeeds.
type Lifecycle interface {
	// Create submits desc and returns a handle to the saved resource.
	Create(ctx context.Context, desc *Description) (*Handle, error)

	// Start transitions the resource to running.
	Start(ctx context.Context, h *Handle) error

	// State re-fetches the resource and returns its current state.
	State(ctx context.Context, h *Handle) (State, error)

	// Delete removes the resource.
	Delete(ctx context.Context, h *Handle) error
}
