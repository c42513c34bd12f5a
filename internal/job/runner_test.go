package job

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"dockup-scheduler/internal/apperrors"
	"dockup-scheduler/pkg/backoff"

	"github.com/juju/clock/testclock"
)

const interval = 10 * time.Second

// fakeLifecycle records every call and replays a fixed state sequence.
// The last state repeats once the sequence is exhausted.
type fakeLifecycle struct {
	mu        sync.Mutex
	calls     []string
	states    []State
	polls     int
	deletes   int
	createErr error
	startErr  error
	stateErr  error
	deleteErr error
}

func (f *fakeLifecycle) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeLifecycle) Create(_ context.Context, desc *Description) (*Handle, error) {
	f.record("create")
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &Handle{ID: "abc", URI: "/api/v1/service/abc/", State: StateNotRunning}, nil
}

func (f *fakeLifecycle) Start(context.Context, *Handle) error {
	f.record("start")
	return f.startErr
}

func (f *fakeLifecycle) State(context.Context, *Handle) (State, error) {
	f.record("state")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stateErr != nil {
		return "", f.stateErr
	}
	i := min(f.polls, len(f.states)-1)
	f.polls++
	return f.states[i], nil
}

func (f *fakeLifecycle) Delete(context.Context, *Handle) error {
	f.record("delete")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	return f.deleteErr
}

func (f *fakeLifecycle) setStates(states ...State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = states
	f.polls = 0
}

func (f *fakeLifecycle) snapshot() (calls []string, polls, deletes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls), f.polls, f.deletes
}

func copyJob() *Description {
	return &Description{
		Image:       "tutum.co/mhubig/dockup:latest",
		Name:        "dockup-web",
		Autodestroy: AutodestroyAlways,
		Bindings:    []Binding{{ContainerPath: "/data"}},
		Env:         []EnvVar{{Key: "PATHS_TO_BACKUP", Value: "/data"}},
	}
}

func startRun(t *testing.T, r *Runner, ctx context.Context, terminal State) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx, copyJob(), terminal, interval)
	}()
	return done
}

// advanceUntilDone keeps firing the fake clock's timers until Run returns.
func advanceUntilDone(t *testing.T, clk *testclock.Clock, done <-chan error) error {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case err := <-done:
			return err
		case <-deadline:
			t.Fatal("timed out waiting for Run to return")
			return nil
		default:
			_ = clk.WaitAdvance(interval, 10*time.Millisecond, 1)
		}
	}
}

func TestRun_DeletesOnceAfterTerminalState(t *testing.T) {
	t.Parallel()
	clk := testclock.NewClock(time.Time{})
	fake := &fakeLifecycle{states: []State{StateStarting, StateRunning, StateNotRunning}}
	r := NewRunner(fake, RunnerConfig{Clock: clk})

	done := startRun(t, r, context.Background(), StateNotRunning)

	// One wait before the first fetch, then one between each fetch.
	for i := 0; i < 3; i++ {
		if err := clk.WaitAdvance(interval, time.Second, 1); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after terminal state")
	}

	calls, polls, deletes := fake.snapshot()
	want := []string{"create", "start", "state", "state", "state", "delete"}
	if !slices.Equal(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
	if polls != 3 {
		t.Errorf("expected 3 polls, got %d", polls)
	}
	if deletes != 1 {
		t.Errorf("expected exactly one delete, got %d", deletes)
	}
}

func TestRun_BlocksUntilTerminalState(t *testing.T) {
	t.Parallel()
	clk := testclock.NewClock(time.Time{})
	fake := &fakeLifecycle{states: []State{StateRunning}}
	r := NewRunner(fake, RunnerConfig{Clock: clk})

	done := startRun(t, r, context.Background(), StateStopped)

	for i := 0; i < 10; i++ {
		if err := clk.WaitAdvance(interval, time.Second, 1); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
		select {
		case err := <-done:
			t.Fatalf("Run returned before terminal state: %v", err)
		default:
		}
	}
	if _, _, deletes := fake.snapshot(); deletes != 0 {
		t.Fatalf("expected no delete while polling, got %d", deletes)
	}

	fake.setStates(StateStopped)
	if err := advanceUntilDone(t, clk, done); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, _, deletes := fake.snapshot(); deletes != 1 {
		t.Errorf("expected exactly one delete, got %d", deletes)
	}
}

func TestRun_CancelDeletesWorker(t *testing.T) {
	t.Parallel()
	clk := testclock.NewClock(time.Time{})
	fake := &fakeLifecycle{states: []State{StateRunning}}
	r := NewRunner(fake, RunnerConfig{Clock: clk})

	ctx, cancel := context.WithCancel(context.Background())
	done := startRun(t, r, ctx, StateStopped)

	for i := 0; i < 2; i++ {
		if err := clk.WaitAdvance(interval, time.Second, 1); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	if _, _, deletes := fake.snapshot(); deletes != 1 {
		t.Errorf("expected exactly one delete, got %d", deletes)
	}
}

func TestRun_LifecycleFailures(t *testing.T) {
	t.Parallel()
	boom := fmt.Errorf("boom")

	tests := []struct {
		name        string
		fake        *fakeLifecycle
		want        error
		wantDeletes int
	}{
		{
			name:        "create fails",
			fake:        &fakeLifecycle{createErr: boom, states: []State{StateStopped}},
			want:        apperrors.ErrCreate,
			wantDeletes: 0,
		},
		{
			name:        "start fails",
			fake:        &fakeLifecycle{startErr: boom, states: []State{StateStopped}},
			want:        apperrors.ErrStart,
			wantDeletes: 1,
		},
		{
			name:        "fetch fails",
			fake:        &fakeLifecycle{stateErr: boom, states: []State{StateStopped}},
			want:        apperrors.ErrFetch,
			wantDeletes: 1,
		},
		{
			name:        "delete fails",
			fake:        &fakeLifecycle{deleteErr: boom, states: []State{StateStopped}},
			want:        apperrors.ErrDelete,
			wantDeletes: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			clk := testclock.NewClock(time.Time{})
			r := NewRunner(tt.fake, RunnerConfig{Clock: clk})

			done := make(chan error, 1)
			go func() {
				done <- r.Run(context.Background(), copyJob(), StateStopped, interval)
			}()
			err := advanceUntilDone(t, clk, done)

			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if !errors.Is(err, boom) {
				t.Errorf("expected cause to be preserved, got %v", err)
			}
			if _, _, deletes := tt.fake.snapshot(); deletes != tt.wantDeletes {
				t.Errorf("expected %d deletes, got %d", tt.wantDeletes, deletes)
			}
		})
	}
}

func TestRun_StartAndDeleteFailuresAreJoined(t *testing.T) {
	t.Parallel()
	clk := testclock.NewClock(time.Time{})
	fake := &fakeLifecycle{
		startErr:  fmt.Errorf("quota exceeded"),
		deleteErr: fmt.Errorf("api unavailable"),
		states:    []State{StateStopped},
	}
	r := NewRunner(fake, RunnerConfig{Clock: clk})

	err := r.Run(context.Background(), copyJob(), StateStopped, interval)
	if !errors.Is(err, apperrors.ErrStart) || !errors.Is(err, apperrors.ErrDelete) {
		t.Errorf("expected both ErrStart and ErrDelete, got %v", err)
	}
}

func TestRun_BoundedPolling(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  RunnerConfig
	}{
		{"max polls", RunnerConfig{MaxPolls: 3}},
		{"timeout", RunnerConfig{Timeout: 5 * interval}},
		{"timeout with backoff", RunnerConfig{Timeout: 5 * interval, MaxBackoff: 4 * interval}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			clk := testclock.NewClock(time.Time{})
			fake := &fakeLifecycle{states: []State{StateRunning}}
			cfg := tt.cfg
			cfg.Clock = clk
			r := NewRunner(fake, cfg)

			done := startRun(t, r, context.Background(), StateStopped)
			err := advanceUntilDone(t, clk, done)

			if !errors.Is(err, apperrors.ErrPollTimeout) {
				t.Fatalf("expected ErrPollTimeout, got %v", err)
			}
			_, polls, deletes := fake.snapshot()
			if tt.cfg.MaxPolls > 0 && polls != tt.cfg.MaxPolls {
				t.Errorf("expected %d polls, got %d", tt.cfg.MaxPolls, polls)
			}
			if deletes != 1 {
				t.Errorf("expected exactly one delete, got %d", deletes)
			}
		})
	}
}

func TestRun_RejectsInvalidInput(t *testing.T) {
	t.Parallel()
	fake := &fakeLifecycle{states: []State{StateStopped}}
	r := NewRunner(fake, RunnerConfig{Clock: testclock.NewClock(time.Time{})})

	if err := r.Run(context.Background(), &Description{Name: "x"}, StateStopped, interval); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected validation error for missing image, got %v", err)
	}
	if err := r.Run(context.Background(), copyJob(), "", interval); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected validation error for empty terminal state, got %v", err)
	}
	if err := r.Run(context.Background(), copyJob(), StateStopped, 0); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected validation error for zero interval, got %v", err)
	}
	if calls, _, _ := fake.snapshot(); len(calls) != 0 {
		t.Errorf("expected no remote calls, got %v", calls)
	}
}

func TestRunner_BackoffConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		cfg   RunnerConfig
		third time.Duration // delay before the third poll; 0 means fixed interval
	}{
		{"fixed interval", RunnerConfig{}, 0},
		{"default factor", RunnerConfig{MaxBackoff: 10 * interval}, 4 * interval},
		{"custom factor", RunnerConfig{MaxBackoff: 10 * interval, BackoffFactor: 3}, 9 * interval},
		{"custom factor capped", RunnerConfig{MaxBackoff: 5 * interval, BackoffFactor: 3}, 5 * interval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := NewRunner(&fakeLifecycle{}, tt.cfg)
			cfg := r.backoffConfig(interval)
			if tt.third == 0 {
				if cfg != nil {
					t.Errorf("Expected no backoff, got %+v", cfg)
				}
				return
			}
			if got := backoff.Exponential(3, cfg); got != tt.third {
				t.Errorf("Exponential(3) = %v, want %v", got, tt.third)
			}
		})
	}
}
