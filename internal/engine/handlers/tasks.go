package handlers

import (
	"sort"

	"github.com/google/uuid"

	"github.com/neurobridge-backend/orcaengine/internal/engine/model"
)

// findTask locates a task by id within stage.
func findTask(stage *model.Stage, taskID uuid.UUID) *model.Task {
	for i := range stage.Tasks {
		if stage.Tasks[i].ID == taskID {
			return &stage.Tasks[i]
		}
	}
	return nil
}

// orderedTasks returns pointers into stage.Tasks sorted by Order ascending.
func orderedTasks(stage *model.Stage) []*model.Task {
	out := make([]*model.Task, len(stage.Tasks))
	for i := range stage.Tasks {
		out[i] = &stage.Tasks[i]
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// nextTask returns the task immediately following cur in ordinal order, or
// nil if cur is last.
func nextTask(stage *model.Stage, cur *model.Task) *model.Task {
	ordered := orderedTasks(stage)
	for i, t := range ordered {
		if t.ID == cur.ID && i+1 < len(ordered) {
			return ordered[i+1]
		}
	}
	return nil
}

// loopStartFor returns the isLoopStart task belonging to the same stage as
// cur, the counterpart a loop's isLoopEnd task rolls back to.
func loopStartFor(stage *model.Stage) *model.Task {
	return findTaskFlag(stage, func(t *model.Task) bool { return t.IsLoopStart })
}

// mergeOutputsIntoContext decodes stage.Context, overlays outputs, and
// re-encodes — the "stage context is merged with result.outputs" step of
// RunTask's SUCCEEDED branch.
func mergeOutputsIntoContext(stage *model.Stage, outputs map[string]any) {
	if len(outputs) == 0 {
		return
	}
	ctx := model.DecodeMap(stage.Context)
	for k, v := range outputs {
		ctx[k] = v
	}
	stage.Context = model.EncodeMap(ctx)
}

// mergeStageOutputs overlays outputs the task addressed to downstream
// consumers onto OutputsContext, kept separate from the stage's authored
// Context so later stages can reference them by this stage's ref id.
func mergeStageOutputs(stage *model.Stage, outputs map[string]any) {
	if len(outputs) == 0 {
		return
	}
	ctx := model.DecodeMap(stage.OutputsContext)
	for k, v := range outputs {
		ctx[k] = v
	}
	stage.OutputsContext = model.EncodeMap(ctx)
}
