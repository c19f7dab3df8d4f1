package manager

import (
	"context"
	"errors"
	"os"
	"testing"

	"reelgen/internal/config"
	"reelgen/internal/services"
	"reelgen/internal/task"
	"reelgen/internal/workdir"
)

func newManager(t *testing.T) (*Manager, *task.Store, *workdir.Manager) {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()

	store, err := task.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	workdirs := workdir.NewManager(cfg)
	return New(cfg, store, workdirs, nil), store, workdirs
}

func TestCreateTaskValidation(t *testing.T) {
	mgr, _, _ := newManager(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		kind   task.Kind
		params task.Params
	}{
		{"unknown kind", task.Kind("carousel"), task.Params{Topic: "x"}},
		{"empty topic and script", task.KindVideo, task.Params{}},
		{"whitespace topic", task.KindVideo, task.Params{Topic: "   "}},
		{"unsupported voice", task.KindVideo, task.Params{Topic: "x", Voice: "klingon-1"}},
		{"unsupported resolution", task.KindVideo, task.Params{Topic: "x", Resolution: "640x480"}},
		{"negative duration", task.KindVideo, task.Params{Topic: "x", DurationSeconds: -5}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := mgr.CreateTask(ctx, tc.kind, tc.params)
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreateTaskAppliesDefaults(t *testing.T) {
	mgr, _, _ := newManager(t)

	created, err := mgr.CreateTask(context.Background(), task.KindVideo, task.Params{Topic: "tides"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Params.Voice == "" {
		t.Fatal("expected default voice to be applied")
	}
	if created.Params.Resolution == "" {
		t.Fatal("expected default resolution to be applied")
	}
	if created.Status != task.StatusPending {
		t.Fatalf("status = %s", created.Status)
	}
}

func TestCreateTaskAcceptsPrewrittenScript(t *testing.T) {
	mgr, _, _ := newManager(t)

	created, err := mgr.CreateTask(context.Background(), task.KindAudioOnly, task.Params{
		Script: "The tide comes in. The tide goes out.",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Params.Script == "" {
		t.Fatal("script lost during creation")
	}
}

func TestCancelPendingTask(t *testing.T) {
	mgr, _, _ := newManager(t)
	ctx := context.Background()

	created, err := mgr.CreateTask(ctx, task.KindVideo, task.Params{Topic: "storms"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cancelled, err := mgr.CancelTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != task.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}

	// Cancelling a terminal task is rejected.
	if _, err := mgr.CancelTask(ctx, created.ID); !errors.Is(err, services.ErrInvalidState) {
		t.Fatalf("expected invalid-state error, got %v", err)
	}
}

func TestCancelRunningTaskSetsFlag(t *testing.T) {
	mgr, store, _ := newManager(t)
	ctx := context.Background()

	created, err := mgr.CreateTask(ctx, task.KindVideo, task.Params{Topic: "reefs"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.CompareAndUpdate(ctx, created.ID, task.StatusPending, func(t *task.Task) error {
		t.Status = task.StatusRunning
		return nil
	}); err != nil {
		t.Fatalf("promote: %v", err)
	}

	updated, err := mgr.CancelTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if updated.Status != task.StatusRunning {
		t.Fatalf("status = %s, running task stays running until a stage boundary", updated.Status)
	}
	if !updated.CancelRequested {
		t.Fatal("cancel flag not set")
	}
}

func TestDeleteTask(t *testing.T) {
	mgr, store, workdirs := newManager(t)
	ctx := context.Background()

	created, err := mgr.CreateTask(ctx, task.KindVideo, task.Params{Topic: "dunes"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	dir, err := workdirs.Ensure(created.ID)
	if err != nil {
		t.Fatalf("ensure workdir: %v", err)
	}

	if err := mgr.DeleteTask(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetByID(ctx, created.ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("workdir should be removed, stat err = %v", err)
	}
}

func TestDeleteRunningTaskRejected(t *testing.T) {
	mgr, store, _ := newManager(t)
	ctx := context.Background()

	created, err := mgr.CreateTask(ctx, task.KindVideo, task.Params{Topic: "lava"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.CompareAndUpdate(ctx, created.ID, task.StatusPending, func(t *task.Task) error {
		t.Status = task.StatusRunning
		return nil
	}); err != nil {
		t.Fatalf("promote: %v", err)
	}

	if err := mgr.DeleteTask(ctx, created.ID); !errors.Is(err, services.ErrInvalidState) {
		t.Fatalf("expected invalid-state error, got %v", err)
	}
}

func TestRetryTask(t *testing.T) {
	mgr, store, _ := newManager(t)
	ctx := context.Background()

	created, err := mgr.CreateTask(ctx, task.KindVideo, task.Params{Topic: "auroras"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Only failed tasks can be retried.
	if _, err := mgr.RetryTask(ctx, created.ID); !errors.Is(err, services.ErrInvalidState) {
		t.Fatalf("expected invalid-state for pending task, got %v", err)
	}

	if _, err := store.CompareAndUpdate(ctx, created.ID, task.StatusPending, func(t *task.Task) error {
		t.Status = task.StatusRunning
		return nil
	}); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if _, err := store.CompareAndUpdate(ctx, created.ID, task.StatusRunning, func(t *task.Task) error {
		t.SetFailed("render crashed")
		return nil
	}); err != nil {
		t.Fatalf("fail: %v", err)
	}

	retried, err := mgr.RetryTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.Status != task.StatusPending {
		t.Fatalf("status = %s, want pending", retried.Status)
	}
	if retried.ErrorMessage != "" {
		t.Fatalf("error message = %q, want cleared", retried.ErrorMessage)
	}
}
