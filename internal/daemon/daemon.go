// Package daemon ties the store, provider registry, and scheduler together
// into a single-instance background service.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"reelgen/internal/config"
	"reelgen/internal/logging"
	"reelgen/internal/scheduler"
	"reelgen/internal/stage"
	"reelgen/internal/task"
)

// Daemon coordinates background task processing and enforces
// single-instance execution through a lock file.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *task.Store
	registry  *stage.Registry
	scheduler *scheduler.Scheduler

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	QueueDepth   int
	Tasks        task.Stats
	StoreDBPath  string
	LockFilePath string
	Stages       []stage.Health
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *task.Store, registry *stage.Registry, sched *scheduler.Scheduler, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || registry == nil || sched == nil {
		return nil, errors.New("daemon requires config, store, registry, and scheduler")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "reelgend.lock")
	return &Daemon{
		cfg:       cfg,
		logger:    logger.With(logging.String(logging.FieldComponent, "daemon")),
		store:     store,
		registry:  registry,
		scheduler: sched,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the scheduler.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another reelgen daemon instance is already running")
	}

	// With the lock held, any task still marked running was stranded by a
	// crash or hard stop; return it to pending so the scheduler retries it.
	reclaimed, err := d.store.ReclaimRunning(ctx)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("reclaim interrupted tasks: %w", err)
	}
	if reclaimed > 0 {
		d.logger.Info("requeued tasks interrupted by a previous run", logging.Int("count", int(reclaimed)))
	}

	for _, health := range d.registry.HealthChecks(ctx) {
		if !health.Ready {
			d.logger.Warn("stage provider not ready",
				logging.String(logging.FieldStage, health.Name),
				logging.String("detail", health.Detail),
			)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.scheduler.Start(runCtx)
	d.running.Store(true)
	d.logger.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop shuts down the scheduler and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.scheduler.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Status reports runtime information for diagnostics.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	stats, err := d.store.Summary(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Running:      d.running.Load(),
		QueueDepth:   d.scheduler.QueueDepth(),
		Tasks:        stats,
		StoreDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		Stages:       d.registry.HealthChecks(ctx),
	}, nil
}
