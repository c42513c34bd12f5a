//go:build integration

package docker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"dockup-scheduler/internal/job"
	"dockup-scheduler/internal/resource"
	"dockup-scheduler/internal/testutil"
)

func newIntegrationClient(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()

	c, err := NewClient(ctx, Config{
		Project:     fmt.Sprintf("itest%d", time.Now().UnixNano()),
		PullImages:  true,
		StopTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	if err := c.Ready(ctx); err != nil {
		t.Skipf("Docker daemon not reachable: %v", err)
	}
	return c
}

func TestClient_WorkerLifecycle(t *testing.T) {
	ctx := context.Background()
	c := newIntegrationClient(t)

	desc := &job.Description{
		Image:      "alpine:latest",
		Name:       "echo",
		RunCommand: "echo hello && sleep 1",
		Env:        []job.EnvVar{{Key: "GREETING", Value: "hello"}},
	}
	job.ApplyDefaults(desc)

	unsaved, err := c.Create(ctx, desc)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	saved, err := c.Save(ctx, unsaved)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Delete(context.Background(), saved) })

	if len(saved.Containers) != 1 {
		t.Fatalf("Expected 1 container, got %d", len(saved.Containers))
	}
	if saved.State != job.StateNotRunning {
		t.Errorf("Expected Not running before start, got %q", saved.State)
	}

	if err := c.Start(ctx, saved); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	testutil.MustWaitForState(t, c, resource.KindService, saved.ID, job.StateStopped,
		testutil.WithTimeout(30*time.Second), testutil.WithInterval(200*time.Millisecond))

	ctr, err := resource.FetchURI(ctx, c, resource.KindContainer, saved.Containers[0])
	if err != nil {
		t.Fatalf("Fetch container failed: %v", err)
	}
	if ctr.ImageName != "alpine:latest" {
		t.Errorf("Expected alpine:latest, got %q", ctr.ImageName)
	}

	if err := c.Delete(ctx, saved); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := c.Fetch(ctx, resource.KindService, saved.ID); err == nil {
		t.Error("Expected fetch after delete to fail")
	}
}

func TestClient_RunnerWithAutodestroy(t *testing.T) {
	ctx := context.Background()
	c := newIntegrationClient(t)

	runner := job.NewRunner(resource.Lifecycle(c), job.RunnerConfig{})
	desc := &job.Description{
		Image:       "alpine:latest",
		Name:        "autodestroy",
		RunCommand:  "true",
		Autodestroy: job.AutodestroyAlways,
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	if err := runner.Run(runCtx, desc, job.StateNotRunning, 500*time.Millisecond); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}
