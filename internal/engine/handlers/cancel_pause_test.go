package handlers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neurobridge-backend/orcaengine/internal/engine/message"
	"github.com/neurobridge-backend/orcaengine/internal/engine/model"
)

// TestCancelExecution_CancelsNonTerminalStages: cancel marks the execution
// CANCELED and fans CancelStage out to every stage that hasn't finished,
// leaving already-terminal stages alone.
func TestCancelExecution_CancelsNonTerminalStages(t *testing.T) {
	eng, _, rec := newTestEngine(t)
	require.NoError(t, eng.Tasks.Register("test.linear", linearTask{}))
	require.NoError(t, eng.Stages.Register(linearStageDef{typ: "linear"}))

	s1 := newStage("s1", "linear", 1)
	s1.Status = model.StageSucceeded
	s2 := newStage("s2", "linear", 2, "s1")
	s2.Status = model.StageRunning
	s3 := newStage("s3", "linear", 3, "s2")
	exec := newExec(t, eng, s1, s2, s3)
	exec.Status = model.ExecutionRunning
	require.NoError(t, eng.Store.Store(t.Context(), exec))

	require.NoError(t, eng.Queue.Push(t.Context(), message.For(message.KindCancelExecution, model.ExecutionTypePipeline, exec.ID, exec.Application)))
	drain(t, eng, 30)

	got, err := eng.Store.Retrieve(t.Context(), model.ExecutionTypePipeline, exec.ID)
	require.NoError(t, err)
	require.True(t, got.Canceled)
	require.Equal(t, model.ExecutionCanceled, got.Status)
	require.NotNil(t, got.EndedAt)
	require.Equal(t, model.StageSucceeded, stageByRefID(got, "s1").Status)
	require.Equal(t, model.StageCanceled, stageByRefID(got, "s2").Status)
	require.Equal(t, model.StageCanceled, stageByRefID(got, "s3").Status)
	require.Len(t, rec.Of("ExecutionComplete"), 1)
}

// TestCancelExecution_IdempotentReplay: a redelivered CancelExecution finds
// the canceled flag already set and changes nothing.
func TestCancelExecution_IdempotentReplay(t *testing.T) {
	eng, _, rec := newTestEngine(t)
	require.NoError(t, eng.Stages.Register(linearStageDef{typ: "linear"}))

	s1 := newStage("s1", "linear", 1)
	exec := newExec(t, eng, s1)

	msg := message.For(message.KindCancelExecution, model.ExecutionTypePipeline, exec.ID, exec.Application)
	require.NoError(t, eng.Handle(t.Context(), msg))
	require.NoError(t, eng.Handle(t.Context(), msg)) // redelivery
	drain(t, eng, 10)

	require.Len(t, rec.Of("ExecutionComplete"), 1)
}

// TestStartStage_DroppedAfterCancel: a StartStage arriving after the
// execution was canceled is dropped without starting anything.
func TestStartStage_DroppedAfterCancel(t *testing.T) {
	eng, _, rec := newTestEngine(t)
	require.NoError(t, eng.Tasks.Register("test.linear", linearTask{}))
	require.NoError(t, eng.Stages.Register(linearStageDef{typ: "linear"}))

	s1 := newStage("s1", "linear", 1)
	exec := newExec(t, eng, s1)

	require.NoError(t, eng.Handle(t.Context(), message.For(message.KindCancelExecution, model.ExecutionTypePipeline, exec.ID, exec.Application)))
	drain(t, eng, 10)
	rec.Reset()

	require.NoError(t, eng.Handle(t.Context(), message.For(message.KindStartStage, model.ExecutionTypePipeline, exec.ID, exec.Application).WithStage(s1.ID)))

	got, err := eng.Store.Retrieve(t.Context(), model.ExecutionTypePipeline, exec.ID)
	require.NoError(t, err)
	require.Empty(t, got.Stages[0].Tasks)
	require.Empty(t, rec.Of("StageStarted"))
}

// TestPauseExecution_MarksEveryOpenStage: the execution-wide pause flags
// every non-terminal stage and the matching resume clears them all.
func TestPauseExecution_MarksEveryOpenStage(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	require.NoError(t, eng.Stages.Register(linearStageDef{typ: "linear"}))

	s1 := newStage("s1", "linear", 1)
	s1.Status = model.StageSucceeded
	s2 := newStage("s2", "linear", 2, "s1")
	s3 := newStage("s3", "linear", 3, "s2")
	exec := newExec(t, eng, s1, s2, s3)

	require.NoError(t, eng.Handle(t.Context(), message.For(message.KindPauseExecution, model.ExecutionTypePipeline, exec.ID, exec.Application)))

	got, err := eng.Store.Retrieve(t.Context(), model.ExecutionTypePipeline, exec.ID)
	require.NoError(t, err)
	require.False(t, stageByRefID(got, "s1").Paused) // already terminal
	require.True(t, stageByRefID(got, "s2").Paused)
	require.True(t, stageByRefID(got, "s3").Paused)

	require.NoError(t, eng.Handle(t.Context(), message.For(message.KindResumeExecution, model.ExecutionTypePipeline, exec.ID, exec.Application)))

	got, err = eng.Store.Retrieve(t.Context(), model.ExecutionTypePipeline, exec.ID)
	require.NoError(t, err)
	require.False(t, stageByRefID(got, "s2").Paused)
	require.False(t, stageByRefID(got, "s3").Paused)
}

// TestPauseStage_DefersStartTaskUntilResume: a paused stage re-enqueues its
// StartTask with a delay instead of running it; resuming lets the replayed
// StartTask proceed.
func TestPauseStage_DefersStartTaskUntilResume(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	require.NoError(t, eng.Tasks.Register("test.linear", linearTask{}))
	require.NoError(t, eng.Stages.Register(linearStageDef{typ: "linear"}))

	s1 := newStage("s1", "linear", 1)
	exec := newExec(t, eng, s1)

	// StartStage materializes tasks and enqueues StartTask for the stage
	// start task.
	require.NoError(t, eng.Handle(t.Context(), message.For(message.KindStartStage, model.ExecutionTypePipeline, exec.ID, exec.Application).WithStage(s1.ID)))
	require.NoError(t, eng.Handle(t.Context(), message.For(message.KindPauseStage, model.ExecutionTypePipeline, exec.ID, exec.Application).WithStage(s1.ID)))

	d, ok, err := eng.Queue.Poll(t.Context())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, message.KindStartTask, d.Message.Kind)
	startTaskMsg := d.Message
	require.NoError(t, eng.Handle(t.Context(), startTaskMsg))
	require.NoError(t, eng.Queue.Ack(t.Context(), d.Token))

	got, err := eng.Store.Retrieve(t.Context(), model.ExecutionTypePipeline, exec.ID)
	require.NoError(t, err)
	require.True(t, got.Stages[0].Paused)
	for _, task := range got.Stages[0].Tasks {
		require.Equal(t, model.TaskNotStarted, task.Status)
	}

	// Resume, then replay the deferred StartTask directly rather than
	// waiting out its recheck delay.
	require.NoError(t, eng.Handle(t.Context(), message.For(message.KindResumeStage, model.ExecutionTypePipeline, exec.ID, exec.Application).WithStage(s1.ID)))
	require.NoError(t, eng.Handle(t.Context(), startTaskMsg))
	drain(t, eng, 30)

	got, err = eng.Store.Retrieve(t.Context(), model.ExecutionTypePipeline, exec.ID)
	require.NoError(t, err)
	require.False(t, got.Stages[0].Paused)
	require.True(t, got.Stages[0].Status.IsSuccessEquivalent())
}
