package handlers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neurobridge-backend/orcaengine/internal/engine/expr"
	"github.com/neurobridge-backend/orcaengine/internal/engine/message"
	"github.com/neurobridge-backend/orcaengine/internal/engine/model"
	"github.com/neurobridge-backend/orcaengine/internal/engine/registry"
)

// TestStartStage_JoinWaitsForAllRequisites exercises the join wait: a stage
// requiring two upstreams must not materialize tasks or start while one of
// them is still running.
func TestStartStage_JoinWaitsForAllRequisites(t *testing.T) {
	eng, _, rec := newTestEngine(t)
	require.NoError(t, eng.Tasks.Register("test.linear", linearTask{}))
	require.NoError(t, eng.Stages.Register(linearStageDef{typ: "linear"}))

	s1 := newStage("s1", "linear", 1)
	s1.Status = model.StageSucceeded
	s2 := newStage("s2", "linear", 2)
	s2.Status = model.StageRunning
	s3 := newStage("s3", "linear", 3, "s1", "s2")
	exec := newExec(t, eng, s1, s2, s3)

	require.NoError(t, eng.Handle(t.Context(), message.For(message.KindStartStage, model.ExecutionTypePipeline, exec.ID, exec.Application).WithStage(s3.ID)))

	got, err := eng.Store.Retrieve(t.Context(), model.ExecutionTypePipeline, exec.ID)
	require.NoError(t, err)
	join := stageByRefID(got, "s3")
	require.Equal(t, model.StageNotStarted, join.Status)
	require.Empty(t, join.Tasks)
	require.Empty(t, rec.Of("StageStarted"))

	// Nothing was enqueued either: the completing upstream re-triggers us.
	_, ok, err := eng.Queue.Poll(t.Context())
	require.NoError(t, err)
	require.False(t, ok)
}

// TestCompleteStage_JoinStartsOnceBothUpstreamsDone drives the same join to
// completion: once both upstreams finish, the join runs and the execution
// completes.
func TestCompleteStage_JoinStartsOnceBothUpstreamsDone(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	require.NoError(t, eng.Tasks.Register("test.linear", linearTask{}))
	require.NoError(t, eng.Stages.Register(linearStageDef{typ: "linear"}))

	s1 := newStage("s1", "linear", 1)
	s2 := newStage("s2", "linear", 2)
	s3 := newStage("s3", "linear", 3, "s1", "s2")
	exec := newExec(t, eng, s1, s2, s3)

	require.NoError(t, eng.Queue.Push(t.Context(), message.For(message.KindStartExecution, model.ExecutionTypePipeline, exec.ID, exec.Application)))
	drain(t, eng, 80)

	got, err := eng.Store.Retrieve(t.Context(), model.ExecutionTypePipeline, exec.ID)
	require.NoError(t, err)
	require.Equal(t, model.ExecutionSucceeded, got.Status)
	for _, refID := range []string{"s1", "s2", "s3"} {
		require.True(t, stageByRefID(got, refID).Status.IsSuccessEquivalent(), "stage %s", refID)
	}
}

// afterStageDef materializes one STAGE_AFTER synthetic of type "precursor"
// behind its own single-task graph.
type afterStageDef struct {
	registry.BaseStageDefinition
	typ string
}

func (d afterStageDef) Type() string { return d.typ }
func (d afterStageDef) TaskGraph(stage *model.Stage, b *registry.Builder) {
	b.Append(registry.TaskSpec{Name: "own", ImplementingClass: "test.linear", IsStageStart: true, IsStageEnd: true})
}
func (d afterStageDef) AfterStages(stage *model.Stage) []registry.SyntheticSpec {
	return []registry.SyntheticSpec{{RefIDSuffix: "post", Type: "precursor", Name: "post"}}
}

// TestCompleteStage_SyntheticAfterRunsAfterParentTasks asserts the
// STAGE_AFTER ordering invariant: the after child starts only once the
// parent's own tasks have succeeded, and the execution completes only after
// the after child does.
func TestCompleteStage_SyntheticAfterRunsAfterParentTasks(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	require.NoError(t, eng.Tasks.Register("test.linear", linearTask{}))
	require.NoError(t, eng.Stages.Register(afterStageDef{typ: "withAfter"}))
	require.NoError(t, eng.Stages.Register(precursorStageDef{typ: "precursor"}))

	s1 := newStage("s1", "withAfter", 1)
	exec := newExec(t, eng, s1)

	require.NoError(t, eng.Queue.Push(t.Context(), message.For(message.KindStartStage, model.ExecutionTypePipeline, exec.ID, exec.Application).WithStage(s1.ID)))
	drain(t, eng, 40)

	got, err := eng.Store.Retrieve(t.Context(), model.ExecutionTypePipeline, exec.ID)
	require.NoError(t, err)
	require.Len(t, got.Stages, 2)

	var parent, after *model.Stage
	for i := range got.Stages {
		s := &got.Stages[i]
		if s.ID == s1.ID {
			parent = s
		} else {
			after = s
		}
	}
	require.NotNil(t, after)
	require.Equal(t, model.SyntheticAfter, after.SyntheticStageOwner)
	require.True(t, after.Status.IsSuccessEquivalent())
	require.True(t, parent.Status.IsSuccessEquivalent())
	require.NotNil(t, after.StartedAt)
	require.NotNil(t, parent.Tasks[0].EndedAt)
	require.False(t, after.StartedAt.Before(*parent.Tasks[0].EndedAt))
}

// TestCompleteStage_FailingBeforeSyntheticFailsExecution: a STAGE_BEFORE
// child that ends TERMINAL must take the execution down rather than leave
// its parent waiting on it forever.
func TestCompleteStage_FailingBeforeSyntheticFailsExecution(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	require.NoError(t, eng.Tasks.Register("test.linear", linearTask{}))
	require.NoError(t, eng.Tasks.Register("test.fail", failingTask{}))
	require.NoError(t, eng.Stages.Register(beforeStageDef{typ: "withBefore"}))
	require.NoError(t, eng.Stages.Register(singleTaskStageDef{typ: "precursor", class: "test.fail"}))

	s1 := newStage("s1", "withBefore", 1)
	exec := newExec(t, eng, s1)

	require.NoError(t, eng.Queue.Push(t.Context(), message.For(message.KindStartStage, model.ExecutionTypePipeline, exec.ID, exec.Application).WithStage(s1.ID)))
	drain(t, eng, 40)

	got, err := eng.Store.Retrieve(t.Context(), model.ExecutionTypePipeline, exec.ID)
	require.NoError(t, err)
	require.Equal(t, model.ExecutionTerminal, got.Status)

	parent := stageByRefID(got, "s1")
	require.Equal(t, model.StageNotStarted, parent.Status)
	for _, task := range parent.Tasks {
		require.Equal(t, model.TaskNotStarted, task.Status) // parent's task phase never ran
	}
	for i := range got.Stages {
		if got.Stages[i].IsSynthetic() {
			require.Equal(t, model.StageTerminal, got.Stages[i].Status)
		}
	}
}

// TestCompleteStage_SkippedStageUnblocksDownstream: a stage disabled by its
// stageEnabled expression completes its DAG slot — downstream stages that
// name it as a requisite still run, and the execution succeeds.
func TestCompleteStage_SkippedStageUnblocksDownstream(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	guard, err := expr.NewStageEnabledEvaluator()
	require.NoError(t, err)
	eng.StageGuard = guard
	require.NoError(t, eng.Tasks.Register("test.linear", linearTask{}))
	require.NoError(t, eng.Stages.Register(linearStageDef{typ: "linear"}))

	s1 := newStage("s1", "linear", 1)
	s1.Context = model.EncodeMap(map[string]any{
		"stageEnabled": map[string]any{"expression": "false"},
	})
	s2 := newStage("s2", "linear", 2, "s1")
	exec := newExec(t, eng, s1, s2)

	require.NoError(t, eng.Queue.Push(t.Context(), message.For(message.KindStartExecution, model.ExecutionTypePipeline, exec.ID, exec.Application)))
	drain(t, eng, 40)

	got, err := eng.Store.Retrieve(t.Context(), model.ExecutionTypePipeline, exec.ID)
	require.NoError(t, err)
	require.Equal(t, model.ExecutionSucceeded, got.Status)
	require.Equal(t, model.StageSkipped, stageByRefID(got, "s1").Status)
	require.Empty(t, stageByRefID(got, "s1").Tasks)
	require.True(t, stageByRefID(got, "s2").Status.IsSuccessEquivalent())
}

// TestCompleteStage_FailPipelineTerminatesExecution covers the non-success
// rollup: a TERMINAL stage with the default failPipeline=true takes the
// whole execution down without starting downstream siblings.
func TestCompleteStage_FailPipelineTerminatesExecution(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	require.NoError(t, eng.Tasks.Register("test.fail", failingTask{}))
	require.NoError(t, eng.Tasks.Register("test.linear", linearTask{}))
	require.NoError(t, eng.Stages.Register(singleTaskStageDef{typ: "failer", class: "test.fail"}))
	require.NoError(t, eng.Stages.Register(linearStageDef{typ: "linear"}))

	s1 := newStage("s1", "failer", 1)
	s2 := newStage("s2", "linear", 2, "s1")
	exec := newExec(t, eng, s1, s2)

	require.NoError(t, eng.Queue.Push(t.Context(), message.For(message.KindStartExecution, model.ExecutionTypePipeline, exec.ID, exec.Application)))
	drain(t, eng, 40)

	got, err := eng.Store.Retrieve(t.Context(), model.ExecutionTypePipeline, exec.ID)
	require.NoError(t, err)
	require.Equal(t, model.ExecutionTerminal, got.Status)
	require.Equal(t, model.StageTerminal, stageByRefID(got, "s1").Status)
	require.Equal(t, model.StageNotStarted, stageByRefID(got, "s2").Status)
}
