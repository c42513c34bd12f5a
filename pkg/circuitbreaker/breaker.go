// Package circuitbreaker implements the circuit breaker pattern.
//
// A circuit breaker tracks consecutive failures of a remote API and
// temporarily rejects calls once the API looks down.
//
// States:
//   - Closed: Normal operation, calls allowed
//   - Open: Too many failures, calls rejected
//   - HalfOpen: Cooldown elapsed, one probe call allowed
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/juju/clock"
)

// ErrOpen is returned by Do while the circuit is open.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the state of a circuit breaker.
type State int

const (
	Closed   State = iota // Normal operation, calls allowed
	Open                  // Failing, calls rejected
	HalfOpen              // Probing whether the API recovered
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds configuration for a circuit breaker.
type Config struct {
	Threshold int           // Consecutive failures before the circuit opens (default: 5)
	Cooldown  time.Duration // Time before a probe is allowed (default: 30s)
	Clock     clock.Clock   // Time source (default: wall clock)

	// IsFailure decides whether an error counts against the API. Nil
	// counts every non-nil error.
	IsFailure func(error) bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Threshold: 5,
		Cooldown:  30 * time.Second,
	}
}

// Breaker guards a single remote API.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	clock     clock.Clock
	isFailure func(error) bool

	mu          sync.Mutex
	state       State
	failures    int
	openedAt    time.Time
	probeActive bool
}

// New creates a new circuit breaker.
func New(cfg Config) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}
	return &Breaker{
		state:     Closed,
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
		clock:     cfg.Clock,
		isFailure: cfg.IsFailure,
	}
}

// Do runs fn unless the circuit is open, and records its outcome.
func (b *Breaker) Do(fn func() error) error {
	if !b.Allow() {
		return ErrOpen
	}
	err := fn()
	if b.isFailure(err) {
		b.RecordFailure()
	} else {
		b.RecordSuccess()
	}
	return err
}

// Allow reports whether a call should be attempted. In the half-open state
// only one probe is let through at a time.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.clock.Now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.state = HalfOpen
		b.probeActive = true
		return true
	case HalfOpen:
		if b.probeActive {
			return false
		}
		b.probeActive = true
		return true
	default:
		return true
	}
}

// RecordSuccess closes the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.state = Closed
	b.probeActive = false
}

// RecordFailure counts a failure; a failed probe reopens the circuit at once.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.probeActive = false

	if b.state == HalfOpen || b.failures >= b.threshold {
		b.state = Open
		b.openedAt = b.clock.Now()
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset closes the circuit and clears the failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.probeActive = false
}
