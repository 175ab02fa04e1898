package handlers

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/neurobridge-backend/orcaengine/internal/engine/clock"
	"github.com/neurobridge-backend/orcaengine/internal/engine/events"
	"github.com/neurobridge-backend/orcaengine/internal/engine/model"
	"github.com/neurobridge-backend/orcaengine/internal/engine/queue/memqueue"
	"github.com/neurobridge-backend/orcaengine/internal/engine/registry"
	"github.com/neurobridge-backend/orcaengine/internal/engine/store/gormstore"
)

// linearTask always succeeds immediately, returning its fixed outputs.
type linearTask struct {
	outputs map[string]any
}

func (t linearTask) Execute(*model.Stage) registry.TaskResult {
	return registry.TaskResult{Status: registry.TaskResultSucceeded, Outputs: t.outputs}
}

// failingTask always returns TERMINAL.
type failingTask struct{ err error }

func (t failingTask) Execute(*model.Stage) registry.TaskResult {
	return registry.TaskResult{Status: registry.TaskResultTerminal, Err: t.err}
}

// countingRunningTask returns RUNNING the first N-1 calls, then SUCCEEDED.
type countingRunningTask struct {
	remaining *int
}

func (t countingRunningTask) Execute(*model.Stage) registry.TaskResult {
	if *t.remaining > 0 {
		*t.remaining--
		return registry.TaskResult{Status: registry.TaskResultRunning}
	}
	return registry.TaskResult{Status: registry.TaskResultSucceeded}
}

func (t countingRunningTask) BackoffPeriodMillis() int64 { return 1 }
func (t countingRunningTask) TimeoutMillis() int64       { return 0 }

// linearStageDef is a simple non-synthetic, non-parallel StageDefinition
// with a fixed two-task graph: one isStageStart task, one isStageEnd task.
type linearStageDef struct {
	registry.BaseStageDefinition
	typ string
}

func (d linearStageDef) Type() string { return d.typ }

func (d linearStageDef) TaskGraph(stage *model.Stage, b *registry.Builder) {
	b.Append(registry.TaskSpec{Name: "start", ImplementingClass: "test.linear", IsStageStart: true})
	b.Append(registry.TaskSpec{Name: "end", ImplementingClass: "test.linear", IsStageEnd: true})
}

// singleTaskStageDef materializes exactly one task that is both start and
// end, bound to an arbitrary implementing class.
type singleTaskStageDef struct {
	registry.BaseStageDefinition
	typ   string
	class string
}

func (d singleTaskStageDef) Type() string { return d.typ }

func (d singleTaskStageDef) TaskGraph(stage *model.Stage, b *registry.Builder) {
	b.Append(registry.TaskSpec{Name: "only", ImplementingClass: d.class, IsStageStart: true, IsStageEnd: true})
}

func newTestEngine(t *testing.T) (*Engine, *clock.Fake, *events.Recording) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, gormstore.Migrate(db))

	st := gormstore.New(db)
	q := memqueue.New(5 * time.Second)
	tasks := registry.NewTaskRegistry()
	stages := registry.NewStageRegistry()
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	rec := events.NewRecording()

	eng := New(st, q, tasks, stages, rec, clk, nil)
	return eng, clk, rec
}

func newExec(t *testing.T, eng *Engine, stages ...model.Stage) *model.Execution {
	t.Helper()
	exec := &model.Execution{
		ID:          uuid.New(),
		Application: "test-app",
		Type:        model.ExecutionTypePipeline,
		Status:      model.ExecutionNotStarted,
	}
	require.NoError(t, eng.Store.Store(t.Context(), exec))
	for i := range stages {
		stages[i].ExecutionID = exec.ID
		require.NoError(t, eng.Store.StoreStage(t.Context(), &stages[i]))
	}
	exec.Stages = stages
	return exec
}

func newStage(refID, typ string, authorOrder int, requisites ...string) model.Stage {
	return model.Stage{
		ID:                   uuid.New(),
		RefID:                refID,
		Type:                 typ,
		Status:               model.StageNotStarted,
		AuthorOrder:          authorOrder,
		RequisiteStageRefIds: model.EncodeStringSlice(requisites),
	}
}

// drain repeatedly polls q and dispatches through eng until empty or maxIter
// messages have been processed, returning the number handled.
func drain(t *testing.T, eng *Engine, maxIter int) int {
	t.Helper()
	ctx := t.Context()
	n := 0
	for ; n < maxIter; n++ {
		d, ok, err := eng.Queue.Poll(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		if err := eng.Handle(ctx, d.Message); err != nil {
			require.NoError(t, eng.Queue.Nack(ctx, d.Token))
			t.Fatalf("handle %s: %v", d.Message.Kind, err)
		}
		require.NoError(t, eng.Queue.Ack(ctx, d.Token))
	}
	return n
}
