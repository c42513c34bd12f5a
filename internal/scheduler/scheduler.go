// Package scheduler runs named jobs on cadences. All jobs run one after
// another on a single goroutine; a long job delays the others.
package scheduler

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"dockup-scheduler/internal/apperrors"
	"dockup-scheduler/internal/observability"

	"github.com/juju/clock"
	"github.com/robfig/cron/v3"
)

const triggerQueueSize = 16

// Func is a scheduled job.
type Func func(ctx context.Context) error

// Entry describes a scheduled job.
type Entry struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	Next      time.Time `json:"next,omitzero"`
	Prev      time.Time `json:"prev,omitzero"`
	LastError string    `json:"lastError,omitempty"`
	Runs      int       `json:"runs"`
}

type entry struct {
	name     string
	spec     string
	schedule cron.Schedule
	fn       Func
	next     time.Time
	prev     time.Time
	lastErr  error
	runs     int
}

// Scheduler owns a set of named jobs.
type Scheduler struct {
	clock   clock.Clock
	metrics *observability.Metrics

	mu      sync.Mutex
	entries map[string]*entry
	running bool

	trigger  chan string
	changed  chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the time source (default wall clock).
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// New creates an empty scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:   clock.WallClock,
		entries: make(map[string]*entry),
		trigger: make(chan string, triggerQueueSize),
		changed: make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers fn under name with the cadence spec (see ParseCadence).
func (s *Scheduler) Add(name, spec string, fn Func) error {
	if name == "" {
		return apperrors.Validation("name", "schedule name is required")
	}
	if fn == nil {
		return apperrors.Validation("func", "schedule function is required")
	}
	sched, err := ParseCadence(spec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[name]; exists {
		return apperrors.Conflict("schedule", name, "schedule "+name+" already exists")
	}
	e := &entry{name: name, spec: spec, schedule: sched, fn: fn}
	if s.running {
		e.next = sched.Next(s.clock.Now())
		s.notifyChanged()
	}
	s.entries[name] = e
	return nil
}

// notifyChanged wakes the loop to recompute its timer. Must hold mu.
func (s *Scheduler) notifyChanged() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// Trigger queues an immediate run of name on the scheduler goroutine. The
// job's regular cadence is unchanged.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	_, exists := s.entries[name]
	s.mu.Unlock()
	if !exists {
		return apperrors.NotFound("schedule", name)
	}

	select {
	case s.trigger <- name:
		return nil
	default:
		return apperrors.Conflict("schedule", name, "trigger queue is full")
	}
}

// Entries returns a snapshot of all jobs ordered by name.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out := Entry{Name: e.name, Schedule: e.spec, Next: e.next, Prev: e.prev, Runs: e.runs}
		if e.lastErr != nil {
			out.LastError = e.lastErr.Error()
		}
		entries = append(entries, out)
	}
	slices.SortFunc(entries, func(a, b Entry) int { return cmp.Compare(a.Name, b.Name) })
	return entries
}

// Run executes jobs until ctx is cancelled or Stop is called. Job errors
// and panics are logged and counted; they never end the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := slog.With("component", "scheduler")

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return apperrors.Conflict("scheduler", "run", "scheduler is already running")
	}
	s.running = true
	now := s.clock.Now()
	for _, e := range s.entries {
		e.next = e.schedule.Next(now)
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	logger.Info("Scheduler started", "jobs", len(s.Entries()))

	for {
		var timer clock.Timer
		var fire <-chan time.Time
		if wake, ok := s.nextWake(); ok {
			timer = s.clock.NewTimer(max(wake.Sub(s.clock.Now()), 0))
			fire = timer.Chan()
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			logger.Info("Scheduler stopped", "reason", ctx.Err())
			return nil
		case <-s.stop:
			stopTimer(timer)
			logger.Info("Scheduler stopped")
			return nil
		case <-s.changed:
			stopTimer(timer)
		case name := <-s.trigger:
			stopTimer(timer)
			if e := s.lookup(name); e != nil {
				logger.Info("Running triggered job", "schedule", name)
				s.run(ctx, e)
			}
		case now := <-fire:
			for _, e := range s.due(now) {
				if ctx.Err() != nil {
					break
				}
				s.run(ctx, e)
				s.mu.Lock()
				e.next = e.schedule.Next(s.clock.Now())
				s.mu.Unlock()
			}
		}
	}
}

// Stop ends Run. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func stopTimer(t clock.Timer) {
	if t != nil {
		t.Stop()
	}
}

func (s *Scheduler) lookup(name string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[name]
}

// nextWake returns the earliest next activation.
func (s *Scheduler) nextWake() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var wake time.Time
	for _, e := range s.entries {
		if e.next.IsZero() {
			continue
		}
		if wake.IsZero() || e.next.Before(wake) {
			wake = e.next
		}
	}
	return wake, !wake.IsZero()
}

// due returns the entries whose activation is at or before now, in name
// order.
func (s *Scheduler) due(now time.Time) []*entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*entry
	for _, e := range s.entries {
		if !e.next.IsZero() && !e.next.After(now) {
			due = append(due, e)
		}
	}
	slices.SortFunc(due, func(a, b *entry) int { return cmp.Compare(a.name, b.name) })
	return due
}

func (s *Scheduler) run(ctx context.Context, e *entry) {
	logger := slog.With("component", "scheduler", "schedule", e.name)
	start := s.clock.Now()

	err := safeCall(ctx, e.fn)

	s.mu.Lock()
	e.prev = start
	e.lastErr = err
	e.runs++
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordSchedulerRun(ctx, e.name, err == nil)
	}
	if err != nil {
		logger.Error("Scheduled job failed", "error", err)
		return
	}
	logger.Debug("Scheduled job finished", "duration", s.clock.Now().Sub(start))
}

// safeCall runs fn, converting a panic into an error.
func safeCall(ctx context.Context, fn Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Scheduled job panicked", "panic", r, "stack", string(debug.Stack()))
			err = apperrors.Internal("scheduler.run", fmt.Errorf("panic: %v", r))
		}
	}()
	return fn(ctx)
}
