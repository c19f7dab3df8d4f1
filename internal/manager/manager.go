// Package manager exposes the task lifecycle API used by the CLI and the
// daemon: submission with parameter validation, queries, cooperative
// cancellation, and deletion.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"reelgen/internal/config"
	"reelgen/internal/logging"
	"reelgen/internal/services"
	"reelgen/internal/task"
	"reelgen/internal/workdir"
)

// Manager coordinates task lifecycle operations against the record store.
type Manager struct {
	cfg      *config.Config
	store    *task.Store
	workdirs *workdir.Manager
	logger   *slog.Logger
}

// New builds a Manager.
func New(cfg *config.Config, store *task.Store, workdirs *workdir.Manager, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:      cfg,
		store:    store,
		workdirs: workdirs,
		logger:   logger.With(logging.String(logging.FieldComponent, "manager")),
	}
}

// CreateTask validates the parameters, fills configured defaults, and
// persists a new pending task.
func (m *Manager) CreateTask(ctx context.Context, kind task.Kind, params task.Params) (*task.Task, error) {
	if _, ok := task.ParseKind(string(kind)); !ok {
		return nil, services.Wrap(services.ErrValidation, "manager", "create task",
			fmt.Sprintf("unknown task kind %q", kind), nil)
	}

	params.Topic = strings.TrimSpace(params.Topic)
	params.Script = strings.TrimSpace(params.Script)
	if params.Topic == "" && params.Script == "" {
		return nil, services.Wrap(services.ErrValidation, "manager", "create task",
			"either a topic or a prewritten script is required", nil)
	}

	if params.Voice == "" {
		params.Voice = m.cfg.TTS.DefaultVoice
	}
	if !m.cfg.SupportedVoice(params.Voice) {
		return nil, services.Wrap(services.ErrValidation, "manager", "create task",
			fmt.Sprintf("voice %q is not in the configured voice set", params.Voice), nil)
	}

	if kind == task.KindVideo {
		if params.Resolution == "" {
			params.Resolution = m.cfg.Assembly.Resolutions[0]
		}
		if !m.cfg.SupportedResolution(params.Resolution) {
			return nil, services.Wrap(services.ErrValidation, "manager", "create task",
				fmt.Sprintf("resolution %q is not supported", params.Resolution), nil)
		}
	}
	if params.DurationSeconds < 0 {
		return nil, services.Wrap(services.ErrValidation, "manager", "create task",
			"duration must not be negative", nil)
	}

	created, err := m.store.Create(ctx, kind, params)
	if err != nil {
		return nil, err
	}
	m.logger.Info(
		"task created",
		logging.String(logging.FieldTaskID, created.ID),
		logging.String("kind", string(kind)),
		logging.String("topic", params.Topic),
	)
	return created, nil
}

// GetTask returns a task by id.
func (m *Manager) GetTask(ctx context.Context, id string) (*task.Task, error) {
	return m.store.GetByID(ctx, id)
}

// ListTasks returns tasks newest first, optionally filtered by status.
func (m *Manager) ListTasks(ctx context.Context, statuses ...task.Status) ([]*task.Task, error) {
	return m.store.List(ctx, statuses...)
}

// CancelTask requests cancellation. Pending tasks move to cancelled
// immediately; running tasks get their cancel flag set and finish at the
// next stage boundary. Terminal tasks cannot be cancelled.
func (m *Manager) CancelTask(ctx context.Context, id string) (*task.Task, error) {
	current, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch current.Status {
	case task.StatusPending:
		updated, err := m.store.CompareAndUpdate(ctx, id, task.StatusPending, func(t *task.Task) error {
			t.Status = task.StatusCancelled
			t.CancelRequested = true
			return nil
		})
		if err != nil {
			return nil, err
		}
		m.logger.Info("pending task cancelled", logging.String(logging.FieldTaskID, id))
		return updated, nil
	case task.StatusRunning:
		updated, err := m.store.CompareAndUpdate(ctx, id, task.StatusRunning, func(t *task.Task) error {
			t.CancelRequested = true
			return nil
		})
		if err != nil {
			return nil, err
		}
		m.logger.Info("cancellation requested for running task", logging.String(logging.FieldTaskID, id))
		return updated, nil
	default:
		return nil, services.Wrap(services.ErrInvalidState, "manager", "cancel task",
			fmt.Sprintf("task is already %s", current.Status), nil)
	}
}

// DeleteTask removes a task record and its working directory. Running tasks
// must be cancelled first.
func (m *Manager) DeleteTask(ctx context.Context, id string) error {
	current, err := m.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == task.StatusRunning {
		return services.Wrap(services.ErrInvalidState, "manager", "delete task",
			"task is running; cancel it before deleting", nil)
	}

	removed, err := m.store.Remove(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: task %s", services.ErrNotFound, id)
	}
	if err := m.workdirs.Remove(id); err != nil {
		m.logger.Warn("failed to remove task workdir", logging.String(logging.FieldTaskID, id), logging.Error(err))
	}
	m.logger.Info("task deleted", logging.String(logging.FieldTaskID, id))
	return nil
}

// RetryTask moves a failed task back to pending so the scheduler reruns it.
func (m *Manager) RetryTask(ctx context.Context, id string) (*task.Task, error) {
	current, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != task.StatusFailed {
		return nil, services.Wrap(services.ErrInvalidState, "manager", "retry task",
			fmt.Sprintf("only failed tasks can be retried, task is %s", current.Status), nil)
	}
	if _, err := m.store.RetryFailed(ctx, id); err != nil {
		return nil, err
	}
	m.logger.Info("task queued for retry", logging.String(logging.FieldTaskID, id))
	return m.store.GetByID(ctx, id)
}

// Stats summarizes the store contents.
func (m *Manager) Stats(ctx context.Context) (task.Stats, error) {
	return m.store.Summary(ctx)
}
