package pipeline

import (
	"fmt"

	"reelgen/internal/task"
)

// Stage names shared between definitions, providers, and artifact maps.
const (
	StageScript   = "script"
	StageAudio    = "audio"
	StageMaterial = "material"
	StageSubtitle = "subtitle"
	StageAssembly = "assembly"
)

// Descriptor declares one stage of a pipeline: which upstream artifacts it
// needs and whether the run can finish without it. A tolerable stage that
// fails (or whose inputs never materialized) is skipped and the task ends
// partially completed; a required stage failing fails the whole task.
type Descriptor struct {
	Name      string
	Requires  []string
	Tolerable bool
}

// Definition is an ordered sequence of stage groups. Groups run one after
// another; the stages inside a group run concurrently because they only
// depend on artifacts produced by earlier groups.
type Definition struct {
	Kind   task.Kind
	Groups [][]Descriptor
}

// Stages returns the flattened stage count, used for progress accounting.
func (d Definition) Stages() int {
	total := 0
	for _, group := range d.Groups {
		total += len(group)
	}
	return total
}

// Output names the stage whose artifact is the task's final deliverable.
func (d Definition) Output() string {
	last := d.Groups[len(d.Groups)-1]
	return last[len(last)-1].Name
}

// DefinitionFor returns the pipeline definition for a task kind.
func DefinitionFor(kind task.Kind) (Definition, error) {
	switch kind {
	case task.KindVideo:
		return Definition{
			Kind: task.KindVideo,
			Groups: [][]Descriptor{
				{{Name: StageScript}},
				{{Name: StageAudio, Requires: []string{StageScript}}},
				{
					{Name: StageMaterial, Requires: []string{StageScript}},
					{Name: StageSubtitle, Requires: []string{StageScript, StageAudio}, Tolerable: true},
				},
				{{Name: StageAssembly, Requires: []string{StageAudio, StageMaterial}}},
			},
		}, nil
	case task.KindAudioOnly:
		return Definition{
			Kind: task.KindAudioOnly,
			Groups: [][]Descriptor{
				{{Name: StageScript}},
				{{Name: StageAudio, Requires: []string{StageScript}}},
			},
		}, nil
	case task.KindSubtitleOnly:
		return Definition{
			Kind: task.KindSubtitleOnly,
			Groups: [][]Descriptor{
				{{Name: StageScript}},
				{{Name: StageAudio, Requires: []string{StageScript}}},
				{{Name: StageSubtitle, Requires: []string{StageScript, StageAudio}}},
			},
		}, nil
	default:
		return Definition{}, fmt.Errorf("no pipeline defined for kind %q", kind)
	}
}
