package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neurobridge-backend/orcaengine/internal/engine/message"
	"github.com/neurobridge-backend/orcaengine/internal/engine/model"
)

type alwaysFrozen struct{ reason string }

func (f alwaysFrozen) Frozen(context.Context, string) (bool, string) { return true, f.reason }

func TestStartTask_FrozenStageTypeDefersRedelivery(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	eng.Freeze = alwaysFrozen{reason: "structural rollback active"}

	require.NoError(t, eng.Tasks.Register("test.linear", linearTask{}))
	require.NoError(t, eng.Stages.Register(linearStageDef{typ: "frozen-type"}))

	stage := newStage("s1", "frozen-type", 0)
	exec := newExec(t, eng, stage)

	require.NoError(t, eng.Handle(t.Context(), message.For(message.KindStartStage, exec.Type, exec.ID, exec.Application).WithStage(stage.ID)))

	reloaded, err := eng.Store.Retrieve(t.Context(), exec.Type, exec.ID)
	require.NoError(t, err)
	s, idx := findStage(reloaded, stage.ID)
	require.GreaterOrEqual(t, idx, 0)
	require.Equal(t, model.StageRunning, s.Status)
	startTask := findTaskByOrdinal(s, "1")
	require.NotNil(t, startTask)
	require.Equal(t, model.TaskNotStarted, startTask.Status)

	d, ok, err := eng.Queue.Poll(t.Context())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, message.KindStartTask, d.Message.Kind)
	require.NoError(t, eng.Handle(t.Context(), d.Message))
	require.NoError(t, eng.Queue.Ack(t.Context(), d.Token))

	reloaded, err = eng.Store.Retrieve(t.Context(), exec.Type, exec.ID)
	require.NoError(t, err)
	s, idx = findStage(reloaded, stage.ID)
	require.GreaterOrEqual(t, idx, 0)
	startTask = findTaskByOrdinal(s, "1")
	require.Equal(t, model.TaskNotStarted, startTask.Status, "frozen stage type must not dispatch its task")

	_, ok, err = eng.Queue.Poll(t.Context())
	require.NoError(t, err)
	require.False(t, ok, "the redelivered StartTask must be delayed, not immediately re-pollable")
}

func findTaskByOrdinal(s *model.Stage, ordinal string) *model.Task {
	for i := range s.Tasks {
		if s.Tasks[i].Ordinal == ordinal {
			return &s.Tasks[i]
		}
	}
	return nil
}
