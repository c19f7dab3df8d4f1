package task

import (
	"context"
	"errors"
	"testing"

	"reelgen/internal/config"
	"reelgen/internal/services"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func TestCreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, KindVideo, Params{Topic: "ocean currents", Voice: "en-US-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated id")
	}
	if created.Status != StatusPending {
		t.Fatalf("status = %s, want %s", created.Status, StatusPending)
	}

	fetched, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.Params.Topic != "ocean currents" {
		t.Fatalf("topic = %q", fetched.Params.Topic)
	}
	if fetched.Params.Voice != "en-US-1" {
		t.Fatalf("voice = %q", fetched.Params.Voice)
	}
	if fetched.Progress != 0 {
		t.Fatalf("progress = %f, want 0", fetched.Progress)
	}
}

func TestGetMissingTask(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetByID(context.Background(), "no-such-task")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestCompareAndUpdateConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, KindVideo, Params{Topic: "volcanoes"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = store.CompareAndUpdate(ctx, created.ID, StatusRunning, func(task *Task) error {
		task.Status = StatusCompleted
		return nil
	})
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict for mismatched status, got %v", err)
	}

	updated, err := store.CompareAndUpdate(ctx, created.ID, StatusPending, func(task *Task) error {
		task.Status = StatusRunning
		return nil
	})
	if err != nil {
		t.Fatalf("compare and update: %v", err)
	}
	if updated.Status != StatusRunning {
		t.Fatalf("status = %s, want %s", updated.Status, StatusRunning)
	}

	fetched, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.Status != StatusRunning {
		t.Fatalf("persisted status = %s, want %s", fetched.Status, StatusRunning)
	}
}

func TestCompareAndUpdatePreservesProgressAndOutputs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, KindVideo, Params{Topic: "glaciers"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := store.CompareAndUpdate(ctx, created.ID, StatusPending, func(task *Task) error {
		task.Status = StatusRunning
		task.SetProgress(40)
		task.AddStageOutput("script", Artifact("/tmp/script.json"))
		return nil
	}); err != nil {
		t.Fatalf("first update: %v", err)
	}

	// A mutator that tries to rewind progress or drop recorded outputs
	// is overridden by the store.
	updated, err := store.CompareAndUpdate(ctx, created.ID, StatusRunning, func(task *Task) error {
		task.Progress = 10
		task.StageOutputs = nil
		return nil
	})
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if updated.Progress != 40 {
		t.Fatalf("progress = %f, want 40", updated.Progress)
	}
	if updated.StageOutputs["script"] != Artifact("/tmp/script.json") {
		t.Fatalf("stage outputs = %v", updated.StageOutputs)
	}
}

func TestCompareAndUpdateMutatorError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, KindAudioOnly, Params{Topic: "noise"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	mutatorErr := errors.New("boom")
	if _, err := store.CompareAndUpdate(ctx, created.ID, StatusPending, func(*Task) error {
		return mutatorErr
	}); !errors.Is(err, mutatorErr) {
		t.Fatalf("expected mutator error, got %v", err)
	}

	fetched, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.Status != StatusPending {
		t.Fatalf("status = %s, want unchanged pending", fetched.Status)
	}
}

func TestListOrderingAndFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.Create(ctx, KindVideo, Params{Topic: "first"})
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := store.Create(ctx, KindVideo, Params{Topic: "second"})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	if _, err := store.CompareAndUpdate(ctx, first.ID, StatusPending, func(task *Task) error {
		task.Status = StatusRunning
		return nil
	}); err != nil {
		t.Fatalf("promote first: %v", err)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}

	running, err := store.List(ctx, StatusRunning)
	if err != nil {
		t.Fatalf("list running: %v", err)
	}
	if len(running) != 1 || running[0].ID != first.ID {
		t.Fatalf("running filter returned %v", running)
	}

	pending, err := store.PendingIDs(ctx)
	if err != nil {
		t.Fatalf("pending ids: %v", err)
	}
	if len(pending) != 1 || pending[0] != second.ID {
		t.Fatalf("pending ids = %v, want [%s]", pending, second.ID)
	}
}

func TestRemove(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, KindVideo, Params{Topic: "ephemeral"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	removed, err := store.Remove(ctx, created.ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !removed {
		t.Fatal("expected removal")
	}

	removed, err = store.Remove(ctx, created.ID)
	if err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if removed {
		t.Fatal("expected no rows for second removal")
	}
}

func TestRetryFailed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, KindVideo, Params{Topic: "flaky"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.CompareAndUpdate(ctx, created.ID, StatusPending, func(task *Task) error {
		task.Status = StatusRunning
		return nil
	}); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if _, err := store.CompareAndUpdate(ctx, created.ID, StatusRunning, func(task *Task) error {
		task.SetFailed("audio synthesis failed")
		return nil
	}); err != nil {
		t.Fatalf("fail: %v", err)
	}

	count, err := store.RetryFailed(ctx)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("retried %d tasks, want 1", count)
	}

	fetched, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.Status != StatusPending {
		t.Fatalf("status = %s, want pending after retry", fetched.Status)
	}
	if fetched.ErrorMessage != "" {
		t.Fatalf("error message = %q, want cleared", fetched.ErrorMessage)
	}
	if fetched.Progress != 0 {
		t.Fatalf("progress = %f, want reset to 0", fetched.Progress)
	}
}

func TestReclaimRunning(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	stranded, err := store.Create(ctx, KindVideo, Params{Topic: "interrupted"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.CompareAndUpdate(ctx, stranded.ID, StatusPending, func(task *Task) error {
		task.Status = StatusRunning
		task.SetProgress(40)
		task.AddStageOutput("script", "/tmp/script.json")
		return nil
	}); err != nil {
		t.Fatalf("promote: %v", err)
	}
	untouched, err := store.Create(ctx, KindAudioOnly, Params{Topic: "fine"})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	count, err := store.ReclaimRunning(ctx)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if count != 1 {
		t.Fatalf("reclaimed %d tasks, want 1", count)
	}

	fetched, err := store.GetByID(ctx, stranded.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.Status != StatusPending {
		t.Fatalf("status = %s, want pending after reclaim", fetched.Status)
	}
	if _, ok := fetched.Output("script"); !ok {
		t.Fatal("stage output lost during reclaim")
	}
	if fetched.Progress != 40 {
		t.Fatalf("progress = %f, want kept at 40", fetched.Progress)
	}

	ids, err := store.PendingIDs(ctx)
	if err != nil {
		t.Fatalf("pending ids: %v", err)
	}
	want := map[string]bool{stranded.ID: false, untouched.ID: false}
	for _, id := range ids {
		want[id] = true
	}
	for id, seen := range want {
		if !seen {
			t.Fatalf("task %s missing from pending ids %v", id, ids)
		}
	}
}

func TestSummary(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.Create(ctx, KindVideo, Params{Topic: "stats"}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	stats, err := store.Summary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if stats.Total != 3 || stats.Pending != 3 {
		t.Fatalf("stats = %+v", stats)
	}
}
