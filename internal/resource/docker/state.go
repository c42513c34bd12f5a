package docker

import (
	"slices"
	"sync"

	"dockup-scheduler/internal/apperrors"
	"dockup-scheduler/internal/job"
)

// workerState holds what the client knows about one worker service.
type workerState struct {
	spec         *job.Description
	containerIDs []string
	started      bool
}

// workerRepo tracks worker services with thread-safe access.
type workerRepo struct {
	mu      sync.RWMutex
	workers map[string]*workerState
}

// newWorkerRepo creates a new worker repository.
func newWorkerRepo() *workerRepo {
	return &workerRepo{
		workers: make(map[string]*workerState),
	}
}

// reserve claims a worker ID. Returns a conflict error if it is taken.
// The slot holds nil until commit is called.
func (r *workerRepo) reserve(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workers[id]; exists {
		return apperrors.Conflict("service", id, "worker service "+id+" already exists")
	}
	r.workers[id] = nil
	return nil
}

// commit fills in a reserved slot.
func (r *workerRepo) commit(id string, ws *workerState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers[id] = ws
}

// markStarted records that the worker's containers were started.
func (r *workerRepo) markStarted(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ws := r.workers[id]; ws != nil {
		ws.started = true
	}
}

// takeOver turns a started worker back into a reservation so a new worker
// can be saved under the same ID. Returns false if the slot no longer holds
// a started worker.
func (r *workerRepo) takeOver(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws := r.workers[id]
	if ws == nil || !ws.started {
		return false
	}
	r.workers[id] = nil
	return true
}

// release removes a worker. Returns its state if it existed.
func (r *workerRepo) release(id string) (*workerState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws, exists := r.workers[id]
	if exists {
		delete(r.workers, id)
	}
	return ws, exists
}

// get returns a copy of a worker's state. Returns (nil, true) if reserved
// but not yet committed.
func (r *workerRepo) get(id string) (*workerState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ws, exists := r.workers[id]
	if ws == nil {
		return nil, exists
	}
	clone := *ws
	clone.containerIDs = slices.Clone(ws.containerIDs)
	return &clone, true
}
