package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neurobridge-backend/orcaengine/internal/engine/engineerr"
	"github.com/neurobridge-backend/orcaengine/internal/engine/events"
	"github.com/neurobridge-backend/orcaengine/internal/engine/message"
	"github.com/neurobridge-backend/orcaengine/internal/engine/model"
)

// pausedRecheckDelay is how long a PauseStage-marked stage defers StartTask
// before rechecking.
const pausedRecheckDelay = 5 * time.Second

// handleStartTask marks a task RUNNING and enqueues RunTask.
func (e *Engine) handleStartTask(ctx context.Context, msg message.Message) error {
	exec, err := e.Store.Retrieve(ctx, msg.ExecutionType, msg.ExecutionID)
	if err != nil {
		if errors.Is(err, engineerr.ErrExecutionNotFound) {
			e.publishInvalid(message.KindInvalidExecutionID, msg)
			return nil
		}
		return fmt.Errorf("start task: retrieve: %w", err)
	}
	if exec.Canceled || exec.Status.IsTerminal() {
		return nil
	}

	stage, _ := findStage(exec, msg.StageID)
	if stage == nil {
		e.publishInvalid(message.KindInvalidStageID, msg)
		return nil
	}

	if stage.Paused {
		return e.Queue.PushDelay(ctx, msg, pausedRecheckDelay)
	}
	if frozen, _ := e.Freeze.Frozen(ctx, stage.Type); frozen {
		return e.Queue.PushDelay(ctx, msg, pausedRecheckDelay)
	}

	task := findTask(stage, msg.TaskID)
	if task == nil {
		e.publishInvalid(message.KindInvalidTaskType, msg)
		return nil
	}
	if task.Status != model.TaskNotStarted {
		// Already started by a prior delivery; idempotent no-op.
		return nil
	}

	now := e.Clock.Now()
	task.Status = model.TaskRunning
	task.StartedAt = &now
	if err := e.Store.StoreStage(ctx, stage); err != nil {
		return fmt.Errorf("start task: persist: %w", err)
	}

	e.Events.Publish(events.Event{
		Kind:          events.KindTaskStarted,
		ExecutionType: msg.ExecutionType,
		ExecutionID:   exec.ID,
		Application:   exec.Application,
		StageID:       stage.ID,
		TaskID:        task.ID,
		At:            now,
	})

	return e.Queue.Push(ctx, message.For(message.KindRunTask, msg.ExecutionType, exec.ID, exec.Application).WithStage(stage.ID).WithTask(task.ID))
}
