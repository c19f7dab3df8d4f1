package stage

import (
	"context"
	"log/slog"

	"reelgen/internal/task"
)

// Request carries everything a stage provider needs to produce its artifact.
// Inputs holds the artifacts of already-completed upstream stages keyed by
// stage name; WorkDir is the task-private scratch directory where providers
// write their outputs.
type Request struct {
	TaskID  string
	Kind    task.Kind
	Params  task.Params
	Inputs  map[string]task.Artifact
	WorkDir string
}

// Input returns an upstream artifact by stage name.
func (r *Request) Input(name string) (task.Artifact, bool) {
	ref, ok := r.Inputs[name]
	return ref, ok
}

// Provider produces a single pipeline artifact. Implementations classify
// failures with the services sentinel markers; retry and timeout policy
// belong to the pipeline executor, not the provider.
type Provider interface {
	Name() string
	Generate(context.Context, *Request) (task.Artifact, error)
	HealthCheck(context.Context) Health
}

// LoggerAware providers receive a stage-scoped logger before execution.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}
