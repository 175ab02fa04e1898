package handlers

import (
	"sort"

	"github.com/google/uuid"

	"github.com/neurobridge-backend/orcaengine/internal/engine/model"
)

// mergedContext returns the execution's context overlaid with the stage's
// own context, the input stageEnabled/template expressions evaluate
// against. Stage keys win on conflict.
func mergedContext(exec *model.Execution, stage *model.Stage) map[string]any {
	out := model.DecodeMap(exec.Context)
	for k, v := range model.DecodeMap(stage.Context) {
		out[k] = v
	}
	return out
}

// templateScope is what "${...}" references in a stage's authored context
// resolve against: the execution's merged context, plus each completed
// sibling's published outputs keyed by its ref id.
func templateScope(exec *model.Execution, stage *model.Stage) map[string]any {
	scope := mergedContext(exec, stage)
	for i := range exec.Stages {
		s := &exec.Stages[i]
		if s.ID == stage.ID || s.IsSynthetic() {
			continue
		}
		if outs := model.DecodeMap(s.OutputsContext); len(outs) > 0 {
			scope[s.RefID] = outs
		}
	}
	return scope
}

// stageEnabledExpression extracts the stageEnabled.expression control key,
// if present. A stage with no stageEnabled key is always enabled.
func stageEnabledExpression(stage *model.Stage) string {
	ctx := model.DecodeMap(stage.Context)
	raw, ok := ctx["stageEnabled"]
	if !ok {
		return ""
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return ""
	}
	expr, _ := m["expression"].(string)
	return expr
}

// restrictExecutionDuringTimeWindow extracts that boolean control key.
func restrictExecutionDuringTimeWindow(stage *model.Stage) bool {
	ctx := model.DecodeMap(stage.Context)
	b, _ := ctx["restrictExecutionDuringTimeWindow"].(bool)
	return b
}

// failPipeline extracts the failPipeline control key, defaulting to true.
func failPipeline(stage *model.Stage) bool {
	ctx := model.DecodeMap(stage.Context)
	v, ok := ctx["failPipeline"]
	if !ok {
		return true
	}
	b, ok := v.(bool)
	if !ok {
		return true
	}
	return b
}

// continuePipeline extracts the continuePipeline control key, defaulting
// to false.
func continuePipeline(stage *model.Stage) bool {
	ctx := model.DecodeMap(stage.Context)
	b, _ := ctx["continuePipeline"].(bool)
	return b
}

const restrictWindowStageType = "restrictExecutionDuringTimeWindow"

// findStage locates a stage by id within exec.
func findStage(exec *model.Execution, stageID uuid.UUID) (*model.Stage, int) {
	for i := range exec.Stages {
		if exec.Stages[i].ID == stageID {
			return &exec.Stages[i], i
		}
	}
	return nil, -1
}

// findStageByRefID locates a sibling stage (same execution) by its
// author-assigned reference id.
func findStageByRefID(exec *model.Execution, refID string) *model.Stage {
	for i := range exec.Stages {
		if exec.Stages[i].RefID == refID {
			return &exec.Stages[i]
		}
	}
	return nil
}

// childStages returns every stage whose ParentStageID equals parentID, in
// SyntheticOrdinal order.
func childStages(exec *model.Execution, parentID uuid.UUID, owner model.SyntheticOwner) []*model.Stage {
	var out []*model.Stage
	for i := range exec.Stages {
		s := &exec.Stages[i]
		if s.ParentStageID == nil || *s.ParentStageID != parentID {
			continue
		}
		if owner != model.SyntheticNone && s.SyntheticStageOwner != owner {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SyntheticOrdinal < out[j].SyntheticOrdinal })
	return out
}

// allComplete reports whether every stage in stages has completed its DAG
// slot (success-equivalent or SKIPPED).
func allComplete(stages []*model.Stage) bool {
	for _, s := range stages {
		if !s.Status.SatisfiesRequisite() {
			return false
		}
	}
	return true
}
