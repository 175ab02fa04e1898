package handlers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neurobridge-backend/orcaengine/internal/engine/message"
	"github.com/neurobridge-backend/orcaengine/internal/engine/model"
)

func TestStartExecution_StartsRootStages(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	require.NoError(t, eng.Tasks.Register("test.linear", linearTask{}))
	require.NoError(t, eng.Stages.Register(linearStageDef{typ: "linear"}))

	s1 := newStage("s1", "linear", 1)
	s2 := newStage("s2", "linear", 2, "s1")
	exec := newExec(t, eng, s1, s2)

	require.NoError(t, eng.Queue.Push(t.Context(), message.For(message.KindStartExecution, model.ExecutionTypePipeline, exec.ID, exec.Application)))
	drain(t, eng, 50)

	got, err := eng.Store.Retrieve(t.Context(), model.ExecutionTypePipeline, exec.ID)
	require.NoError(t, err)
	require.Equal(t, model.ExecutionSucceeded, got.Status)
	for _, s := range got.Stages {
		require.True(t, s.Status.IsSuccessEquivalent(), "stage %s ended %s", s.RefID, s.Status)
	}
}

// TestStartExecution_ImplicitOrderStartsOnlyFirst: with no explicit
// requisites anywhere, only the first stage in author order starts;
// the rest are sequenced by CompleteStage's fallback, not raced.
func TestStartExecution_ImplicitOrderStartsOnlyFirst(t *testing.T) {
	eng, _, rec := newTestEngine(t)
	require.NoError(t, eng.Tasks.Register("test.linear", linearTask{}))
	require.NoError(t, eng.Stages.Register(linearStageDef{typ: "linear"}))

	s1 := newStage("s1", "linear", 1)
	s2 := newStage("s2", "linear", 2)
	exec := newExec(t, eng, s1, s2)

	require.NoError(t, eng.Handle(t.Context(), message.For(message.KindStartExecution, model.ExecutionTypePipeline, exec.ID, exec.Application)))

	d, ok, err := eng.Queue.Poll(t.Context())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, message.KindStartStage, d.Message.Kind)
	require.Equal(t, s1.ID, d.Message.StageID)

	// Nothing else was enqueued: s2 waits for s1's completion to propagate.
	_, ok, err = eng.Queue.Poll(t.Context())
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, eng.Handle(t.Context(), d.Message))
	require.NoError(t, eng.Queue.Ack(t.Context(), d.Token))
	drain(t, eng, 50)
	got, err := eng.Store.Retrieve(t.Context(), model.ExecutionTypePipeline, exec.ID)
	require.NoError(t, err)
	require.Equal(t, model.ExecutionSucceeded, got.Status)
	require.Len(t, rec.Of("StageStarted"), 2)
}

func TestStartExecution_InvalidExecutionID(t *testing.T) {
	eng, _, rec := newTestEngine(t)
	msg := message.For(message.KindStartExecution, model.ExecutionTypePipeline, newUUID(), "app")
	require.NoError(t, eng.Handle(t.Context(), msg))
	found := rec.Of("InvalidExecutionId")
	require.Len(t, found, 1)
}

func TestStartExecution_IdempotentReplay(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	require.NoError(t, eng.Tasks.Register("test.linear", linearTask{}))
	require.NoError(t, eng.Stages.Register(linearStageDef{typ: "linear"}))

	s1 := newStage("s1", "linear", 1)
	exec := newExec(t, eng, s1)
	msg := message.For(message.KindStartExecution, model.ExecutionTypePipeline, exec.ID, exec.Application)
	require.NoError(t, eng.Handle(t.Context(), msg))
	require.NoError(t, eng.Handle(t.Context(), msg)) // redelivery

	got, err := eng.Store.Retrieve(t.Context(), model.ExecutionTypePipeline, exec.ID)
	require.NoError(t, err)
	require.Equal(t, model.ExecutionRunning, got.Status)
}
