// Package testutil provides waiting helpers for tests that observe
// asynchronous work: scheduler runs, worker state and background loops.
package testutil

import (
	"context"
	"testing"
	"time"

	"dockup-scheduler/internal/job"
	"dockup-scheduler/internal/resource"
)

// WaitOptions configures the waiting helpers.
type WaitOptions struct {
	Timeout  time.Duration
	Interval time.Duration
}

// WaitOption is a functional option for the waiting helpers.
type WaitOption func(*WaitOptions)

// WithTimeout sets the maximum wait time (default: 5s).
func WithTimeout(d time.Duration) WaitOption {
	return func(o *WaitOptions) { o.Timeout = d }
}

// WithInterval sets the polling interval (default: 50ms).
func WithInterval(d time.Duration) WaitOption {
	return func(o *WaitOptions) { o.Interval = d }
}

func options(opts []WaitOption) WaitOptions {
	o := WaitOptions{Timeout: 5 * time.Second, Interval: 50 * time.Millisecond}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WaitFor polls until condition returns true or the timeout is reached.
// Returns true if condition was met.
func WaitFor(tb testing.TB, condition func() bool, opts ...WaitOption) bool {
	tb.Helper()
	o := options(opts)

	deadline := time.Now().Add(o.Timeout)
	for {
		if condition() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(o.Interval)
	}
}

// MustWaitFor is WaitFor that fails the test on timeout.
func MustWaitFor(tb testing.TB, condition func() bool, opts ...WaitOption) {
	tb.Helper()
	if !WaitFor(tb, condition, opts...) {
		tb.Fatal("timed out waiting for condition")
	}
}

// MustWaitForState polls the resource until it reports want, failing the
// test with the last observed state on timeout.
func MustWaitForState(tb testing.TB, c resource.Client, kind resource.Kind, id string, want job.State, opts ...WaitOption) *resource.Resource {
	tb.Helper()

	var last *resource.Resource
	var lastErr error
	ok := WaitFor(tb, func() bool {
		last, lastErr = c.Fetch(context.Background(), kind, id)
		return lastErr == nil && last.State == want
	}, opts...)
	if !ok {
		if lastErr != nil {
			tb.Fatalf("timed out waiting for %s %s to reach %q: %v", kind, id, want, lastErr)
		}
		tb.Fatalf("timed out waiting for %s %s to reach %q (last %q)", kind, id, want, last.State)
	}
	return last
}

// Recv returns the next value from ch, failing the test on timeout.
func Recv[T any](tb testing.TB, ch <-chan T, opts ...WaitOption) T {
	tb.Helper()
	o := options(opts)

	select {
	case v := <-ch:
		return v
	case <-time.After(o.Timeout):
		tb.Fatalf("timed out after %v waiting to receive", o.Timeout)
		var zero T
		return zero
	}
}
