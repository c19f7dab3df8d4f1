package task

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a task.
type Status string

const (
	StatusPending            Status = "pending"
	StatusRunning            Status = "running"
	StatusPartiallyCompleted Status = "partially_completed"
	StatusCompleted          Status = "completed"
	StatusFailed             Status = "failed"
	StatusCancelled          Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusPartiallyCompleted,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Terminal reports whether a status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusPartiallyCompleted, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Kind selects which pipeline definition a task runs.
type Kind string

const (
	KindVideo        Kind = "video"
	KindAudioOnly    Kind = "audio-only"
	KindSubtitleOnly Kind = "subtitle-only"
)

// ParseKind converts a string into a known Kind.
func ParseKind(value string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case KindVideo:
		return KindVideo, true
	case KindAudioOnly:
		return KindAudioOnly, true
	case KindSubtitleOnly:
		return KindSubtitleOnly, true
	default:
		return "", false
	}
}

// Params carries the caller-supplied generation inputs.
type Params struct {
	Topic           string `json:"topic,omitempty"`
	Script          string `json:"script,omitempty"`
	Voice           string `json:"voice"`
	SubtitleStyle   string `json:"subtitle_style,omitempty"`
	Resolution      string `json:"resolution"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	Language        string `json:"language,omitempty"`
}

// Artifact references a file produced by a stage. Artifacts are owned by the
// task that produced them and are never mutated downstream.
type Artifact string

// Task is the persisted record for one generation request.
type Task struct {
	ID              string
	Kind            Kind
	Params          Params
	Status          Status
	Progress        float64
	StageOutputs    map[string]Artifact
	ErrorMessage    string
	Degradation     string
	CancelRequested bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Clone returns a deep copy safe to hand across goroutine boundaries.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.StageOutputs != nil {
		cp.StageOutputs = make(map[string]Artifact, len(t.StageOutputs))
		for name, ref := range t.StageOutputs {
			cp.StageOutputs[name] = ref
		}
	}
	return &cp
}

// SetProgress raises progress to pct, never lowering it, and clamps to [0, 100].
func (t *Task) SetProgress(pct float64) {
	if pct < t.Progress {
		return
	}
	if pct > 100 {
		pct = 100
	}
	t.Progress = pct
}

// AddStageOutput records an artifact for a stage. Outputs are append-only:
// writing a second value for the same stage is ignored.
func (t *Task) AddStageOutput(stage string, ref Artifact) {
	if stage == "" || ref == "" {
		return
	}
	if t.StageOutputs == nil {
		t.StageOutputs = make(map[string]Artifact, 4)
	}
	if _, exists := t.StageOutputs[stage]; exists {
		return
	}
	t.StageOutputs[stage] = ref
}

// Output returns the artifact recorded for a stage, if any.
func (t *Task) Output(stage string) (Artifact, bool) {
	ref, ok := t.StageOutputs[stage]
	return ref, ok
}

// SetFailed marks the task failed with the given error detail.
func (t *Task) SetFailed(message string) {
	t.Status = StatusFailed
	t.ErrorMessage = strings.TrimSpace(message)
	if t.ErrorMessage == "" {
		t.ErrorMessage = "task failed"
	}
}

// Stats aggregates task counts per status.
type Stats struct {
	Total     int
	Pending   int
	Running   int
	Partial   int
	Completed int
	Failed    int
	Cancelled int
}
