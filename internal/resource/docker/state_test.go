package docker

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"dockup-scheduler/internal/apperrors"
	"dockup-scheduler/internal/job"
)

func TestWorkerRepo_Reserve(t *testing.T) {
	t.Parallel()
	repo := newWorkerRepo()

	if err := repo.reserve("dockup:dockup-web"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	// Reserved slot exists with nil state
	ws, exists := repo.get("dockup:dockup-web")
	if !exists {
		t.Error("Expected worker to exist after reserve")
	}
	if ws != nil {
		t.Error("Expected nil state for reserved worker")
	}
}

func TestWorkerRepo_ReserveAlreadyExists(t *testing.T) {
	t.Parallel()
	repo := newWorkerRepo()

	if err := repo.reserve("dockup:dockup-web"); err != nil {
		t.Fatalf("First reserve failed: %v", err)
	}

	err := repo.reserve("dockup:dockup-web")
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("Expected ErrConflict for duplicate reserve, got %v", err)
	}
}

func TestWorkerRepo_CommitAndGet(t *testing.T) {
	t.Parallel()
	repo := newWorkerRepo()

	repo.reserve("dockup:dockup-web")
	repo.commit("dockup:dockup-web", &workerState{
		spec:         &job.Description{Name: "dockup-web"},
		containerIDs: []string{"c1", "c2"},
	})

	ws, exists := repo.get("dockup:dockup-web")
	if !exists || ws == nil {
		t.Fatal("Expected committed state")
	}
	if len(ws.containerIDs) != 2 || ws.containerIDs[0] != "c1" {
		t.Errorf("Expected [c1 c2], got %v", ws.containerIDs)
	}
	if ws.started {
		t.Error("Expected worker not started after commit")
	}

	// get returns a copy
	ws.containerIDs[0] = "mutated"
	again, _ := repo.get("dockup:dockup-web")
	if again.containerIDs[0] != "c1" {
		t.Error("Mutating get() result should not affect repo")
	}
}

func TestWorkerRepo_MarkStarted(t *testing.T) {
	t.Parallel()
	repo := newWorkerRepo()

	// No-op on unknown and reserved workers
	repo.markStarted("missing")
	repo.reserve("dockup:a")
	repo.markStarted("dockup:a")

	repo.commit("dockup:a", &workerState{spec: &job.Description{Name: "a"}})
	repo.markStarted("dockup:a")

	ws, _ := repo.get("dockup:a")
	if !ws.started {
		t.Error("Expected worker to be marked started")
	}
}

func TestWorkerRepo_Release(t *testing.T) {
	t.Parallel()
	repo := newWorkerRepo()

	repo.reserve("dockup:a")
	repo.commit("dockup:a", &workerState{containerIDs: []string{"c1"}})

	ws, exists := repo.release("dockup:a")
	if !exists || ws == nil {
		t.Fatal("Expected released state")
	}
	if ws.containerIDs[0] != "c1" {
		t.Errorf("Expected c1, got %v", ws.containerIDs)
	}
	if _, exists := repo.get("dockup:a"); exists {
		t.Error("Expected worker to not exist after release")
	}

	// Slot can be reused
	if err := repo.reserve("dockup:a"); err != nil {
		t.Errorf("Expected reserve after release to succeed, got %v", err)
	}
}

func TestWorkerRepo_TakeOver(t *testing.T) {
	t.Parallel()
	repo := newWorkerRepo()

	if repo.takeOver("dockup:a") {
		t.Error("Expected takeOver of unknown worker to fail")
	}

	repo.reserve("dockup:a")
	if repo.takeOver("dockup:a") {
		t.Error("Expected takeOver of a reservation to fail")
	}

	repo.commit("dockup:a", &workerState{containerIDs: []string{"c1"}})
	if repo.takeOver("dockup:a") {
		t.Error("Expected takeOver of an unstarted worker to fail")
	}

	repo.markStarted("dockup:a")
	if !repo.takeOver("dockup:a") {
		t.Fatal("Expected takeOver of a started worker to succeed")
	}
	ws, exists := repo.get("dockup:a")
	if !exists || ws != nil {
		t.Errorf("Expected a fresh reservation, got (%v, %v)", ws, exists)
	}
	if repo.takeOver("dockup:a") {
		t.Error("Expected a second takeOver to fail")
	}
}

func TestWorkerRepo_ReleaseReservedButNotCommitted(t *testing.T) {
	t.Parallel()
	repo := newWorkerRepo()

	repo.reserve("dockup:a")

	ws, exists := repo.release("dockup:a")
	if !exists {
		t.Error("Expected exists=true for reserved worker")
	}
	if ws != nil {
		t.Error("Expected nil state for reserved but uncommitted worker")
	}
}

func TestWorkerRepo_ReleaseNonExistent(t *testing.T) {
	t.Parallel()
	repo := newWorkerRepo()

	ws, exists := repo.release("nonexistent")
	if exists || ws != nil {
		t.Errorf("Expected (nil, false), got (%v, %v)", ws, exists)
	}
}

func TestWorkerRepo_ConcurrentReserve(t *testing.T) {
	t.Parallel()
	repo := newWorkerRepo()

	const numGoroutines = 100
	results := make(chan error, numGoroutines)

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for range numGoroutines {
		go func() {
			defer wg.Done()
			results <- repo.reserve("dockup:contested")
		}()
	}
	wg.Wait()
	close(results)

	successCount := 0
	for err := range results {
		if err == nil {
			successCount++
		}
	}
	if successCount != 1 {
		t.Errorf("Expected exactly 1 successful reserve, got %d", successCount)
	}
}

func TestWorkerRepo_ConcurrentReadWrite(t *testing.T) {
	t.Parallel()
	repo := newWorkerRepo()

	var wg sync.WaitGroup
	const numOps = 100
	for i := range numOps {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = repo.get("dockup:w0")
		}()
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("dockup:w%d", i%10)
			if err := repo.reserve(id); err == nil {
				repo.commit(id, &workerState{containerIDs: []string{id}})
				repo.markStarted(id)
			}
		}()
	}
	wg.Wait()
}
