// Package scheduler runs pending tasks on a bounded worker pool. Workers
// pull task ids from an in-memory FIFO; a polling feeder backfills the queue
// from the store so tasks created by other processes (or surviving a daemon
// restart) are picked up without any extra signaling channel.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"reelgen/internal/config"
	"reelgen/internal/logging"
	"reelgen/internal/task"
)

// Runner executes one task end to end. pipeline.Executor satisfies this.
type Runner interface {
	Run(ctx context.Context, taskID string) error
}

// Scheduler dispatches pending tasks to a fixed number of workers.
type Scheduler struct {
	store  *task.Store
	runner Runner
	logger *slog.Logger

	workers      int
	pollInterval time.Duration
	errorWait    time.Duration
	queue        chan string

	mu       sync.Mutex
	inflight map[string]struct{}

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New builds a Scheduler from configuration.
func New(cfg *config.Config, store *task.Store, runner Runner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	workers := cfg.Scheduler.Workers
	if workers < 1 {
		workers = 1
	}
	capacity := cfg.Scheduler.QueueCapacity
	if capacity < workers {
		capacity = workers * 4
	}
	poll := time.Duration(cfg.Scheduler.PollInterval) * time.Second
	if poll <= 0 {
		poll = 2 * time.Second
	}
	errorWait := time.Duration(cfg.Scheduler.ErrorRetryWaitSec) * time.Second
	if errorWait <= 0 {
		errorWait = 5 * time.Second
	}
	return &Scheduler{
		store:        store,
		runner:       runner,
		logger:       logger.With(logging.String(logging.FieldComponent, "scheduler")),
		workers:      workers,
		pollInterval: poll,
		errorWait:    errorWait,
		queue:        make(chan string, capacity),
		inflight:     make(map[string]struct{}),
	}
}

// Start launches the worker pool and the store feeder. It returns
// immediately; use Stop to shut down and wait for in-flight tasks.
func (s *Scheduler) Start(ctx context.Context) {
	if s.started {
		return
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.workers; i++ {
		workerID := i + 1
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.workerLoop(runCtx, workerID)
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.feedLoop(runCtx)
	}()

	s.logger.Info("scheduler started", logging.Int("workers", s.workers))
}

// Stop cancels all workers and blocks until they drain. Tasks currently
// executing observe the cancellation through their context.
func (s *Scheduler) Stop() {
	if !s.started {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Enqueue offers a task id to the queue without blocking. It is the single
// intake path: the feeder submits through it, and in-process callers may use
// it to skip a poll interval. It returns false when the task is already
// queued or running, or the queue is full; the feeder retries such tasks on
// its next poll.
func (s *Scheduler) Enqueue(taskID string) bool {
	if !s.markInflight(taskID) {
		return false
	}
	select {
	case s.queue <- taskID:
		return true
	default:
		s.clearInflight(taskID)
		return false
	}
}

// QueueDepth reports how many task ids are waiting for a worker.
func (s *Scheduler) QueueDepth() int {
	return len(s.queue)
}

func (s *Scheduler) workerLoop(ctx context.Context, workerID int) {
	logger := s.logger.With(logging.Int("worker", workerID))
	for {
		select {
		case <-ctx.Done():
			return
		case taskID := <-s.queue:
			s.runOne(ctx, logger, taskID)
		}
	}
}

func (s *Scheduler) runOne(ctx context.Context, logger *slog.Logger, taskID string) {
	defer s.clearInflight(taskID)

	taskLogger := logger.With(logging.String(logging.FieldTaskID, taskID))
	taskLogger.Debug("worker picked up task")

	if err := s.runner.Run(ctx, taskID); err != nil {
		if ctx.Err() != nil {
			taskLogger.Debug("task interrupted by shutdown")
			return
		}
		taskLogger.Error("task execution error", logging.Error(err))
		// Back off briefly so a broken store doesn't spin the pool.
		timer := time.NewTimer(s.errorWait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
}

func (s *Scheduler) feedLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	// Prime the queue once at startup so pending tasks from a previous run
	// resume without waiting a full poll interval.
	s.feedOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.feedOnce(ctx)
		}
	}
}

func (s *Scheduler) feedOnce(ctx context.Context) {
	ids, err := s.store.PendingIDs(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("failed to poll pending tasks", logging.Error(err))
		}
		return
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		// Enqueue refuses ids already queued or running and drops the id
		// when the queue is full; the next poll retries those.
		s.Enqueue(id)
	}
}

func (s *Scheduler) markInflight(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.inflight[taskID]; exists {
		return false
	}
	s.inflight[taskID] = struct{}{}
	return true
}

func (s *Scheduler) clearInflight(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, taskID)
}
