package workdir

import (
	"os"
	"path/filepath"
	"testing"

	"reelgen/internal/config"
)

func TestEnsureAndRemove(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()

	mgr := NewManager(cfg)
	dir, err := mgr.Ensure("task-123")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if dir != mgr.TaskDir("task-123") {
		t.Fatalf("dir = %s, want %s", dir, mgr.TaskDir("task-123"))
	}
	if _, err := os.Stat(filepath.Join(dir, "materials")); err != nil {
		t.Fatalf("materials dir missing: %v", err)
	}

	if err := mgr.Remove("task-123"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected dir removed, stat err = %v", err)
	}

	// Removing a missing directory is a no-op.
	if err := mgr.Remove("task-123"); err != nil {
		t.Fatalf("second remove: %v", err)
	}
}
