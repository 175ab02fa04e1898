package handlers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neurobridge-backend/orcaengine/internal/engine/message"
	"github.com/neurobridge-backend/orcaengine/internal/engine/model"
)

// TestCompleteExecution_SetsStatusAndPublishes: the happy path sets the
// terminal status, stamps the end time, and publishes ExecutionComplete.
func TestCompleteExecution_SetsStatusAndPublishes(t *testing.T) {
	eng, _, rec := newTestEngine(t)
	require.NoError(t, eng.Stages.Register(linearStageDef{typ: "linear"}))

	s1 := newStage("s1", "linear", 1)
	s1.Status = model.StageSucceeded
	exec := newExec(t, eng, s1)
	exec.Status = model.ExecutionRunning
	require.NoError(t, eng.Store.Store(t.Context(), exec))

	msg := message.For(message.KindCompleteExecution, model.ExecutionTypePipeline, exec.ID, exec.Application).WithStatus(string(model.ExecutionSucceeded))
	require.NoError(t, eng.Handle(t.Context(), msg))

	got, err := eng.Store.Retrieve(t.Context(), model.ExecutionTypePipeline, exec.ID)
	require.NoError(t, err)
	require.Equal(t, model.ExecutionSucceeded, got.Status)
	require.NotNil(t, got.EndedAt)

	evts := rec.Of("ExecutionComplete")
	require.Len(t, evts, 1)
	require.Equal(t, string(model.ExecutionSucceeded), evts[0].Status)
	require.Equal(t, exec.ID, evts[0].ExecutionID)
}

// TestCompleteExecution_RedeliverySuppressesDuplicateEvent: the CAS guard
// makes the second delivery a silent no-op — exactly one ExecutionComplete
// is ever published.
func TestCompleteExecution_RedeliverySuppressesDuplicateEvent(t *testing.T) {
	eng, _, rec := newTestEngine(t)
	require.NoError(t, eng.Stages.Register(linearStageDef{typ: "linear"}))

	s1 := newStage("s1", "linear", 1)
	s1.Status = model.StageSucceeded
	exec := newExec(t, eng, s1)
	exec.Status = model.ExecutionRunning
	require.NoError(t, eng.Store.Store(t.Context(), exec))

	msg := message.For(message.KindCompleteExecution, model.ExecutionTypePipeline, exec.ID, exec.Application).WithStatus(string(model.ExecutionSucceeded))
	require.NoError(t, eng.Handle(t.Context(), msg))
	require.NoError(t, eng.Handle(t.Context(), msg)) // redelivery

	require.Len(t, rec.Of("ExecutionComplete"), 1)
}
