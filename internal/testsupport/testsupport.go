// Package testsupport provides shared helpers for package tests: temp-dir
// configs, store setup, and stub binaries.
package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"reelgen/internal/config"
	"reelgen/internal/task"
)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return cfg
}

// MustOpenStore opens a task.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *task.Store {
	t.Helper()

	store, err := task.Open(cfg)
	if err != nil {
		t.Fatalf("task.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// NewTask creates a pending task for tests using the provided store.
func NewTask(t testing.TB, store *task.Store, kind task.Kind, params task.Params) *task.Task {
	t.Helper()

	created, err := store.Create(context.Background(), kind, params)
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return created
}

// StubBinaries writes shell stubs for the provided binary names and prepends
// their directory to PATH for the duration of the test. With no names it
// stubs ffmpeg and ffprobe.
func StubBinaries(t *testing.T, names ...string) string {
	t.Helper()

	if len(names) == 0 {
		names = []string{"ffmpeg", "ffprobe"}
	}
	binDir := filepath.Join(t.TempDir(), "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	script := []byte("#!/bin/sh\nexit 0\n")
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(binDir, name), script, 0o755); err != nil {
			t.Fatalf("write stub %s: %v", name, err)
		}
	}
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	return binDir
}
