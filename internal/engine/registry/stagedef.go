package registry

import "github.com/neurobridge-backend/orcaengine/internal/engine/model"

// TaskSpec is one entry a StageDefinition's TaskGraph appends to a stage's
// task list: the loop markers notwithstanding, ordinal and implementing
// class are the only fields the engine cares about — everything else is
// derived at persist time.
type TaskSpec struct {
	Name              string
	ImplementingClass string
	IsStageStart      bool
	IsStageEnd        bool
	IsLoopStart       bool
	IsLoopEnd         bool
	RetryableTimeoutMS int64
	BackoffMS         int64
}

// Builder accumulates TaskSpecs for a stage's task graph. Passed by pointer
// to StageDefinition.TaskGraph so definitions can append in author order
// without needing to know about model.Task persistence fields.
type Builder struct {
	Tasks []TaskSpec
}

// Append adds spec as the next task in ordinal order.
func (b *Builder) Append(spec TaskSpec) {
	b.Tasks = append(b.Tasks, spec)
}

// SyntheticSpec describes one synthetic child stage a StageDefinition wants
// materialized around its parent.
type SyntheticSpec struct {
	RefIDSuffix string // combined with parent ref id + ordinal to form the deterministic synthetic ref id
	Type        string
	Name        string
}

// StageDefinition is the per-stage-type hook set: type tag, taskGraph, and
// the three synthetic-stage hooks.
type StageDefinition interface {
	// Type returns the stage type tag this definition handles.
	Type() string

	// TaskGraph appends the stage's own tasks (with loop markers if any)
	// to builder. Called once per StartStage, after synthetics have
	// already been resolved — so a parallel-branching definition appends
	// only its post-branch tasks here (see ParallelStages).
	TaskGraph(stage *model.Stage, builder *Builder)

	// BeforeStages returns synthetic STAGE_BEFORE children to insert
	// immediately before this stage.
	BeforeStages(stage *model.Stage) []SyntheticSpec

	// AfterStages returns synthetic STAGE_AFTER children to insert
	// immediately after this stage.
	AfterStages(stage *model.Stage) []SyntheticSpec

	// ParallelStages returns the N branch stages for a parallel-branching
	// stage definition, inserted as STAGE_BEFORE synthetics carrying this
	// stage's own type. An empty result means the stage is not
	// parallel-branching.
	ParallelStages(stage *model.Stage) []SyntheticSpec
}

// BaseStageDefinition gives StageDefinition implementations a default,
// no-op answer for every hook except TaskGraph, so a simple linear stage
// type only needs to embed this and implement Type/TaskGraph.
type BaseStageDefinition struct{}

func (BaseStageDefinition) BeforeStages(*model.Stage) []SyntheticSpec    { return nil }
func (BaseStageDefinition) AfterStages(*model.Stage) []SyntheticSpec     { return nil }
func (BaseStageDefinition) ParallelStages(*model.Stage) []SyntheticSpec  { return nil }
