package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neurobridge-backend/orcaengine/internal/engine/engineerr"
	"github.com/neurobridge-backend/orcaengine/internal/engine/message"
	"github.com/neurobridge-backend/orcaengine/internal/engine/model"
	"github.com/neurobridge-backend/orcaengine/internal/engine/registry"
)

// defaultRunTaskBackoff is used when a Task implementation isn't a
// RetryableTask (so declares no backoff of its own) but still returns
// RUNNING, asking to be polled again.
const defaultRunTaskBackoff = 2 * time.Second

// handleRunTask resolves a task's implementation from the registry,
// invokes it, and interprets the returned TaskResult.
func (e *Engine) handleRunTask(ctx context.Context, msg message.Message) error {
	exec, err := e.Store.Retrieve(ctx, msg.ExecutionType, msg.ExecutionID)
	if err != nil {
		if errors.Is(err, engineerr.ErrExecutionNotFound) {
			e.publishInvalid(message.KindInvalidExecutionID, msg)
			return nil
		}
		return fmt.Errorf("run task: retrieve: %w", err)
	}

	stage, _ := findStage(exec, msg.StageID)
	if stage == nil {
		e.publishInvalid(message.KindInvalidStageID, msg)
		return nil
	}

	task := findTask(stage, msg.TaskID)
	if task == nil {
		e.publishInvalid(message.KindInvalidTaskType, msg)
		return nil
	}
	if task.Status != model.TaskRunning {
		// Already completed (or not yet started) by some other delivery.
		return nil
	}

	// Cancellation is cooperative: a RunTask observes the cancel flag on
	// every poll of the execution rather than being forcibly interrupted.
	if exec.Canceled {
		return e.Queue.Push(ctx, message.For(message.KindCompleteTask, msg.ExecutionType, exec.ID, exec.Application).
			WithStage(stage.ID).WithTask(task.ID).WithStatus(string(model.TaskTerminal)).WithReason("canceled"))
	}

	if frozen, _ := e.Freeze.Frozen(ctx, stage.Type); frozen {
		return e.Queue.PushDelay(ctx, msg, defaultRunTaskBackoff)
	}

	impl, ok := e.Tasks.Get(task.ImplementingClass)
	if !ok {
		e.publishInvalid(message.KindInvalidTaskType, msg)
		return e.Queue.Push(ctx, message.For(message.KindCompleteTask, msg.ExecutionType, exec.ID, exec.Application).
			WithStage(stage.ID).WithTask(task.ID).WithStatus(string(model.TaskTerminal)).WithReason("unknown implementing class"))
	}

	if retryable, ok := impl.(registry.RetryableTask); ok && task.StartedAt != nil {
		timeout := retryable.TimeoutMillis()
		if timeout > 0 && e.Clock.Now().Sub(*task.StartedAt) > time.Duration(timeout)*time.Millisecond {
			return e.Queue.Push(ctx, message.For(message.KindCompleteTask, msg.ExecutionType, exec.ID, exec.Application).
				WithStage(stage.ID).WithTask(task.ID).WithStatus(string(model.TaskTerminal)).WithReason("timeout"))
		}
	}

	result := impl.Execute(stage)

	switch result.Status {
	case registry.TaskResultSucceeded, registry.TaskResultRedirect:
		mergeOutputsIntoContext(stage, result.Outputs)
		mergeStageOutputs(stage, result.StageOutputs)
		if err := e.Store.StoreStage(ctx, stage); err != nil {
			return fmt.Errorf("run task: persist outputs: %w", err)
		}
		return e.Queue.Push(ctx, message.For(message.KindCompleteTask, msg.ExecutionType, exec.ID, exec.Application).
			WithStage(stage.ID).WithTask(task.ID).WithStatus(string(model.TaskSucceeded)))

	case registry.TaskResultRunning:
		delay := time.Duration(defaultRunTaskBackoff)
		if retryable, ok := impl.(registry.RetryableTask); ok {
			if ms := retryable.BackoffPeriodMillis(); ms > 0 {
				delay = time.Duration(ms) * time.Millisecond
			}
		}
		return e.Queue.PushDelay(ctx, msg, delay)

	case registry.TaskResultTerminal:
		reason := ""
		if result.Err != nil {
			reason = result.Err.Error()
		}
		return e.Queue.Push(ctx, message.For(message.KindCompleteTask, msg.ExecutionType, exec.ID, exec.Application).
			WithStage(stage.ID).WithTask(task.ID).WithStatus(string(model.TaskTerminal)).WithReason(reason))

	default:
		return fmt.Errorf("run task: unrecognized TaskResult status %q", result.Status)
	}
}
