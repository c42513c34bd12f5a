// Package resourcetest provides an in-memory resource.Client for tests.
package resourcetest

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"dockup-scheduler/internal/apperrors"
	"dockup-scheduler/internal/job"
	"dockup-scheduler/internal/resource"
)

// Call is one recorded client operation.
type Call struct {
	Op   string // fetch, create, save, start, delete
	Kind resource.Kind
	ID   string
	Name string
}

// StateFunc returns the state a started worker reports on its n-th fetch
// (starting at 1).
type StateFunc func(spec *job.Description, n int) job.State

// Finished reports a started worker as done on its first fetch: autodestroy
// workers as "Not running", the rest as "Stopped".
func Finished(spec *job.Description, _ int) job.State {
	if spec != nil && spec.Autodestroy == job.AutodestroyAlways {
		return job.StateNotRunning
	}
	return job.StateStopped
}

type entry struct {
	res     *resource.Resource
	started bool
	fetches int
}

// Client is an in-memory resource.Client. Seed topology with Add; services
// created through the client follow States once started.
type Client struct {
	mu       sync.Mutex
	entries  map[string]*entry
	calls    []Call
	failures map[string]error
	nextID   int
	states   StateFunc
}

// New creates an empty client whose workers finish immediately.
func New() *Client {
	return &Client{
		entries:  make(map[string]*entry),
		failures: make(map[string]error),
		states:   Finished,
	}
}

func key(kind resource.Kind, id string) string {
	return string(kind) + "/" + id
}

// Add seeds a resource. URI defaults to the canonical API URI.
func (c *Client) Add(r *resource.Resource) *resource.Resource {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r.URI == "" {
		r.URI = resource.URI(r.Kind, r.ID)
	}
	c.entries[key(r.Kind, r.ID)] = &entry{res: r}
	return r
}

// SetStates replaces the state script for started workers.
func (c *Client) SetStates(fn StateFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states = fn
}

// FailOn makes op (create, save, start, fetch, delete) fail with err for the
// resource named name.
func (c *Client) FailOn(op, name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[op+":"+name] = err
}

// Calls returns the recorded operations in order.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.calls)
}

// Live returns the names of saved services created through the client that
// have not been deleted.
func (c *Client) Live() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var names []string
	for _, e := range c.entries {
		if e.res.Spec != nil {
			names = append(names, e.res.Name)
		}
	}
	slices.Sort(names)
	return names
}

func (c *Client) record(op string, kind resource.Kind, id, name string) error {
	c.calls = append(c.calls, Call{Op: op, Kind: kind, ID: id, Name: name})
	return c.failures[op+":"+name]
}

func (c *Client) Fetch(_ context.Context, kind resource.Kind, id string) (*resource.Resource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key(kind, id)]
	name := ""
	if ok {
		name = e.res.Name
	}
	if err := c.record("fetch", kind, id, name); err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.NotFound(string(kind), id)
	}
	if e.started {
		e.fetches++
		e.res.State = c.states(e.res.Spec, e.fetches)
	}
	clone := *e.res
	return &clone, nil
}

func (c *Client) Create(_ context.Context, desc *job.Description) (*resource.Resource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("create", resource.KindService, "", desc.Name); err != nil {
		return nil, err
	}
	spec := *desc
	return &resource.Resource{
		Kind:                resource.KindService,
		Name:                desc.Name,
		ImageName:           desc.Image,
		Bindings:            desc.Bindings,
		TargetNumContainers: desc.TargetNumContainers,
		Spec:                &spec,
	}, nil
}

func (c *Client) Save(_ context.Context, r *resource.Resource) (*resource.Resource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("save", r.Kind, r.ID, r.Name); err != nil {
		return nil, err
	}
	if !r.Saved() {
		c.nextID++
		r.ID = fmt.Sprintf("worker-%d", c.nextID)
		r.URI = resource.URI(r.Kind, r.ID)
		r.State = job.StateNotRunning
	}
	c.entries[key(r.Kind, r.ID)] = &entry{res: r}
	clone := *r
	return &clone, nil
}

func (c *Client) Start(_ context.Context, r *resource.Resource) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key(resource.KindService, r.ID)]
	name := ""
	if ok {
		name = e.res.Name
	}
	if err := c.record("start", resource.KindService, r.ID, name); err != nil {
		return err
	}
	if !ok {
		return apperrors.NotFound("service", r.ID)
	}
	e.started = true
	e.res.State = job.StateStarting
	return nil
}

func (c *Client) Delete(_ context.Context, r *resource.Resource) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key(resource.KindService, r.ID)
	e, ok := c.entries[k]
	name := ""
	if ok {
		name = e.res.Name
	}
	if err := c.record("delete", resource.KindService, r.ID, name); err != nil {
		return err
	}
	if !ok {
		return apperrors.NotFound("service", r.ID)
	}
	delete(c.entries, k)
	return nil
}

func (c *Client) Ready(context.Context) error {
	return nil
}

var _ resource.Client = (*Client)(nil)
