package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"reelgen/internal/config"
	"reelgen/internal/logging"
	"reelgen/internal/services"
	"reelgen/internal/stage"
	"reelgen/internal/task"
	"reelgen/internal/workdir"
)

// Executor drives a task through its pipeline definition. It owns retry and
// timeout policy; providers only classify failures. All task mutation is
// performed through the store's compare-and-update so a concurrent cancel or
// crash-recovery sweep can never be silently overwritten.
type Executor struct {
	store    *task.Store
	registry *stage.Registry
	workdirs *workdir.Manager
	logger   *slog.Logger

	attempts     int
	backoffBase  time.Duration
	stageTimeout time.Duration

	// sleep is swapped out in tests so retry backoff doesn't slow them down.
	sleep func(context.Context, time.Duration) error
}

// NewExecutor builds an Executor from configuration.
func NewExecutor(cfg *config.Config, store *task.Store, registry *stage.Registry, workdirs *workdir.Manager, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	attempts := cfg.Pipeline.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	base := time.Duration(cfg.Pipeline.RetryBaseSeconds) * time.Second
	if base <= 0 {
		base = time.Second
	}
	timeout := time.Duration(cfg.Pipeline.StageTimeoutSeconds) * time.Second
	return &Executor{
		store:        store,
		registry:     registry,
		workdirs:     workdirs,
		logger:       logger.With(logging.String(logging.FieldComponent, "pipeline")),
		attempts:     attempts,
		backoffBase:  base,
		stageTimeout: timeout,
		sleep:        sleepContext,
	}
}

type stageResult struct {
	descriptor Descriptor
	artifact   task.Artifact
	skipped    bool
	skipReason string
	err        error
}

// Run executes the full pipeline for one pending task. It returns an error
// only for infrastructure problems (store failures, unknown kinds); a task
// that fails its stages is finalized as failed and Run returns nil.
func (e *Executor) Run(ctx context.Context, taskID string) error {
	runCtx := logging.WithTaskID(ctx, taskID)
	runCtx = logging.WithCorrelationID(runCtx, uuid.NewString())
	logger := logging.WithContext(runCtx, e.logger)

	current, err := e.store.GetByID(runCtx, taskID)
	if err != nil {
		return err
	}
	if current.Status != task.StatusPending {
		logger.Debug("skipping task not in pending state", logging.String("status", string(current.Status)))
		return nil
	}
	if current.CancelRequested {
		_, err := e.store.CompareAndUpdate(runCtx, taskID, task.StatusPending, func(t *task.Task) error {
			t.Status = task.StatusCancelled
			return nil
		})
		return err
	}

	definition, err := DefinitionFor(current.Kind)
	if err != nil {
		_, updateErr := e.store.CompareAndUpdate(runCtx, taskID, task.StatusPending, func(t *task.Task) error {
			t.SetFailed(err.Error())
			return nil
		})
		if updateErr != nil {
			return updateErr
		}
		return nil
	}

	dir, err := e.workdirs.Ensure(taskID)
	if err != nil {
		return err
	}

	running, err := e.store.CompareAndUpdate(runCtx, taskID, task.StatusPending, func(t *task.Task) error {
		t.Status = task.StatusRunning
		return nil
	})
	if err != nil {
		if errors.Is(err, services.ErrConflict) {
			logger.Debug("task claimed or cancelled before start", logging.Error(err))
			return nil
		}
		return err
	}

	logger.Info(
		"pipeline started",
		logging.String(logging.FieldEventType, "pipeline_start"),
		logging.String("kind", string(running.Kind)),
		logging.Int("stages", definition.Stages()),
	)

	state := &runState{
		task:       running,
		definition: definition,
		workDir:    dir,
		outputs:    cloneOutputs(running.StageOutputs),
	}
	return e.runGroups(runCtx, logger, state)
}

type runState struct {
	task       *task.Task
	definition Definition
	workDir    string
	outputs    map[string]task.Artifact
	completed  int
	degraded   []string
}

func (e *Executor) runGroups(ctx context.Context, logger *slog.Logger, state *runState) error {
	total := state.definition.Stages()

	for _, group := range state.definition.Groups {
		if ctx.Err() != nil {
			return e.finalizeInterrupted(ctx, logger, state)
		}
		cancelled, err := e.cancelRequested(ctx, state.task.ID)
		if err != nil {
			return err
		}
		if cancelled {
			return e.finalizeCancelled(ctx, logger, state)
		}

		results, err := e.runGroup(ctx, logger, state, group)
		if errors.Is(err, errFinalized) {
			return nil
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			// The group was cut short by shutdown; its results are
			// cancellation noise, not stage verdicts.
			return e.finalizeInterrupted(ctx, logger, state)
		}

		for _, result := range results {
			if result.skipped {
				state.degraded = append(state.degraded, fmt.Sprintf("%s: %s", result.descriptor.Name, result.skipReason))
				state.completed++
				continue
			}
			if result.err != nil {
				if result.descriptor.Tolerable {
					logger.Warn(
						"tolerable stage failed, continuing",
						logging.String(logging.FieldStage, result.descriptor.Name),
						logging.Error(result.err),
					)
					state.degraded = append(state.degraded, fmt.Sprintf("%s: %s", result.descriptor.Name, result.err))
					state.completed++
					continue
				}
				return e.finalizeFailed(ctx, logger, state, result.descriptor.Name, result.err)
			}
			state.outputs[result.descriptor.Name] = result.artifact
			state.completed++

			artifact := result.artifact
			name := result.descriptor.Name
			progress := float64(state.completed) / float64(total) * 100
			updated, err := e.store.CompareAndUpdate(ctx, state.task.ID, task.StatusRunning, func(t *task.Task) error {
				t.AddStageOutput(name, artifact)
				t.SetProgress(progress)
				return nil
			})
			if err != nil {
				if ctx.Err() != nil {
					return e.finalizeInterrupted(ctx, logger, state)
				}
				return err
			}
			state.task = updated
		}
	}

	return e.finalizeSuccess(ctx, logger, state)
}

func (e *Executor) runGroup(ctx context.Context, logger *slog.Logger, state *runState, group []Descriptor) ([]stageResult, error) {
	results := make([]stageResult, len(group))

	// Stages in a group only read artifacts of earlier groups, so they can
	// run side by side. A required stage failing cancels its siblings;
	// tolerable failures are recorded and do not.
	grp, groupCtx := errgroup.WithContext(ctx)
	for i, descriptor := range group {
		results[i].descriptor = descriptor

		if missing := missingInputs(descriptor, state.outputs); len(missing) > 0 {
			results[i].skipped = true
			results[i].skipReason = "missing input from " + strings.Join(missing, ", ")
			if !descriptor.Tolerable {
				return nil, e.finalizeFailedResult(ctx, logger, state, descriptor.Name,
					fmt.Errorf("required stage %s cannot run: %s", descriptor.Name, results[i].skipReason))
			}
			continue
		}

		i, descriptor := i, descriptor
		grp.Go(func() error {
			artifact, err := e.runStage(groupCtx, logger, state, descriptor)
			results[i].artifact = artifact
			results[i].err = err
			if err != nil && !descriptor.Tolerable {
				return err
			}
			return nil
		})
	}
	// The first required failure is reported via the per-stage results;
	// Wait only collapses the group.
	_ = grp.Wait()
	return results, nil
}

// finalizeFailedResult exists so runGroup can fail a task before launching
// goroutines; it mirrors finalizeFailed and then returns errFinalized so
// runGroups stops without reporting an infrastructure error.
func (e *Executor) finalizeFailedResult(ctx context.Context, logger *slog.Logger, state *runState, stageName string, cause error) error {
	if err := e.finalizeFailed(ctx, logger, state, stageName, cause); err != nil {
		return err
	}
	return errFinalized
}

var errFinalized = errors.New("task finalized")

func (e *Executor) runStage(ctx context.Context, logger *slog.Logger, state *runState, descriptor Descriptor) (task.Artifact, error) {
	provider, err := e.registry.Resolve(descriptor.Name)
	if err != nil {
		return "", services.Wrap(services.ErrFatal, descriptor.Name, "resolve provider", "stage provider unavailable", err)
	}

	stageCtx := logging.WithStage(ctx, descriptor.Name)
	stageLogger := logging.WithContext(stageCtx, e.logger)
	if aware, ok := provider.(stage.LoggerAware); ok {
		aware.SetLogger(stageLogger)
	}

	request := &stage.Request{
		TaskID:  state.task.ID,
		Kind:    state.task.Kind,
		Params:  state.task.Params,
		Inputs:  cloneOutputs(state.outputs),
		WorkDir: state.workDir,
	}

	var lastErr error
	for attempt := 1; attempt <= e.attempts; attempt++ {
		start := time.Now()
		stageLogger.Info(
			"stage started",
			logging.String(logging.FieldEventType, "stage_start"),
			logging.Int("attempt", attempt),
		)

		artifact, err := e.generateOnce(stageCtx, provider, request)
		if err == nil {
			stageLogger.Info(
				"stage completed",
				logging.String(logging.FieldEventType, "stage_complete"),
				logging.String("artifact", string(artifact)),
				logging.Duration("stage_duration", time.Since(start)),
			)
			return artifact, nil
		}

		lastErr = err
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		if !services.IsTransient(err) || attempt == e.attempts {
			break
		}

		backoff := e.backoffBase << (attempt - 1)
		stageLogger.Warn(
			"stage attempt failed, retrying",
			logging.Int("attempt", attempt),
			logging.Duration("backoff", backoff),
			logging.Error(err),
		)
		if err := e.sleep(ctx, backoff); err != nil {
			return "", err
		}
	}

	stageLogger.Error(
		"stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.Error(lastErr),
	)
	return "", lastErr
}

func (e *Executor) generateOnce(ctx context.Context, provider stage.Provider, request *stage.Request) (task.Artifact, error) {
	attemptCtx := ctx
	if e.stageTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, e.stageTimeout)
		defer cancel()
	}
	artifact, err := provider.Generate(attemptCtx, request)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		// The attempt deadline fired, not the caller's context. Tag it so
		// the retry loop treats it as transient.
		err = services.Wrap(services.ErrTimeout, provider.Name(), "generate", "stage attempt timed out", err)
	}
	return artifact, err
}

func (e *Executor) cancelRequested(ctx context.Context, taskID string) (bool, error) {
	current, err := e.store.GetByID(ctx, taskID)
	if err != nil {
		return false, err
	}
	return current.CancelRequested, nil
}

func (e *Executor) finalizeCancelled(ctx context.Context, logger *slog.Logger, state *runState) error {
	// Finalization must survive caller cancellation.
	finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	_, err := e.store.CompareAndUpdate(finalizeCtx, state.task.ID, task.StatusRunning, func(t *task.Task) error {
		t.Status = task.StatusCancelled
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info(
		"pipeline cancelled",
		logging.String(logging.FieldEventType, "pipeline_cancelled"),
		logging.Int("stages_completed", state.completed),
	)
	return nil
}

// finalizeInterrupted returns a task to pending when the worker context is
// cancelled by daemon shutdown, so the feeder re-enqueues it after restart.
// An operator cancel observed at the same moment wins.
func (e *Executor) finalizeInterrupted(ctx context.Context, logger *slog.Logger, state *runState) error {
	finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	current, err := e.store.GetByID(finalizeCtx, state.task.ID)
	if err != nil {
		return err
	}
	if current.CancelRequested {
		return e.finalizeCancelled(ctx, logger, state)
	}

	_, err = e.store.CompareAndUpdate(finalizeCtx, state.task.ID, task.StatusRunning, func(t *task.Task) error {
		t.Status = task.StatusPending
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info(
		"pipeline interrupted, task returned to pending",
		logging.String(logging.FieldEventType, "pipeline_interrupted"),
		logging.Int("stages_completed", state.completed),
	)
	return nil
}

func (e *Executor) finalizeFailed(ctx context.Context, logger *slog.Logger, state *runState, stageName string, cause error) error {
	message := fmt.Sprintf("stage %s failed: %s", stageName, strings.TrimSpace(cause.Error()))
	_, err := e.store.CompareAndUpdate(ctx, state.task.ID, task.StatusRunning, func(t *task.Task) error {
		t.SetFailed(message)
		return nil
	})
	if err != nil {
		return err
	}
	logger.Error(
		"pipeline failed",
		logging.String(logging.FieldEventType, "pipeline_failure"),
		logging.String(logging.FieldStage, stageName),
		logging.Error(cause),
	)
	return nil
}

func (e *Executor) finalizeSuccess(ctx context.Context, logger *slog.Logger, state *runState) error {
	status := task.StatusCompleted
	var detail string
	if len(state.degraded) > 0 {
		status = task.StatusPartiallyCompleted
		detail = strings.Join(state.degraded, "; ")
	}

	_, err := e.store.CompareAndUpdate(ctx, state.task.ID, task.StatusRunning, func(t *task.Task) error {
		t.Status = status
		t.SetProgress(100)
		t.Degradation = detail
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info(
		"pipeline completed",
		logging.String(logging.FieldEventType, "pipeline_complete"),
		logging.String("status", string(status)),
		logging.String("degraded", detail),
	)
	return nil
}

func missingInputs(descriptor Descriptor, outputs map[string]task.Artifact) []string {
	var missing []string
	for _, name := range descriptor.Requires {
		if _, ok := outputs[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

func cloneOutputs(outputs map[string]task.Artifact) map[string]task.Artifact {
	cloned := make(map[string]task.Artifact, len(outputs))
	for name, ref := range outputs {
		cloned[name] = ref
	}
	return cloned
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
