// Package workdir manages per-task scratch directories under the configured
// data directory. Every task gets an isolated directory holding its stage
// artifacts; deleting a task removes the directory wholesale.
package workdir

import (
	"fmt"
	"os"
	"path/filepath"

	"reelgen/internal/config"
)

// Manager resolves and maintains task working directories.
type Manager struct {
	root string
}

// NewManager builds a Manager rooted at the configured tasks directory.
func NewManager(cfg *config.Config) *Manager {
	return &Manager{root: cfg.TasksDir()}
}

// Root returns the directory under which all task directories live.
func (m *Manager) Root() string {
	return m.root
}

// TaskDir returns the directory for a task without creating it.
func (m *Manager) TaskDir(taskID string) string {
	return filepath.Join(m.root, taskID)
}

// Ensure creates the task directory (and the materials subdirectory used by
// the material stage) and returns its path.
func (m *Manager) Ensure(taskID string) (string, error) {
	dir := m.TaskDir(taskID)
	if err := os.MkdirAll(filepath.Join(dir, "materials"), 0o755); err != nil {
		return "", fmt.Errorf("create task workdir: %w", err)
	}
	return dir, nil
}

// Remove deletes a task directory and everything in it. Removing a
// directory that does not exist is not an error.
func (m *Manager) Remove(taskID string) error {
	dir := m.TaskDir(taskID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove task workdir: %w", err)
	}
	return nil
}
