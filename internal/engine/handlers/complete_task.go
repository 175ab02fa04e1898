package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/neurobridge-backend/orcaengine/internal/engine/engineerr"
	"github.com/neurobridge-backend/orcaengine/internal/engine/events"
	"github.com/neurobridge-backend/orcaengine/internal/engine/message"
	"github.com/neurobridge-backend/orcaengine/internal/engine/model"
)

// loopContinueKey is the stage context key a loop-end task's Outputs (or
// the stage's own context) set to signal another iteration.
const loopContinueKey = "loopContinue"

// handleCompleteTask is the five-branch algorithm that decides a stage's
// next step once one of its tasks completes.
func (e *Engine) handleCompleteTask(ctx context.Context, msg message.Message) error {
	exec, err := e.Store.Retrieve(ctx, msg.ExecutionType, msg.ExecutionID)
	if err != nil {
		if errors.Is(err, engineerr.ErrExecutionNotFound) {
			e.publishInvalid(message.KindInvalidExecutionID, msg)
			return nil
		}
		return fmt.Errorf("complete task: retrieve: %w", err)
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

	target := model.TaskStatus(msg.Status)

	if task.Status != model.TaskRunning {
		// A CompleteTask is only ever enqueued for a RUNNING task, so
		// anything else is a redelivery after the transition already
		// happened — including a loop reset that rewound this task to
		// NOT_STARTED, where repeating the rollup would enqueue a spurious
		// extra iteration.
		return nil
	}

	now := e.Clock.Now()
	task.Status = target
	task.EndedAt = &now
	if err := e.Store.StoreStage(ctx, stage); err != nil {
		return fmt.Errorf("complete task: persist: %w", err)
	}

	e.Events.Publish(events.Event{
		Kind:          events.KindTaskComplete,
		ExecutionType: msg.ExecutionType,
		ExecutionID:   exec.ID,
		Application:   exec.Application,
		StageID:       stage.ID,
		TaskID:        task.ID,
		Status:        string(target),
		At:            now,
	})

	switch target {
	case model.TaskSucceeded:
		if task.IsLoopEnd {
			ctxMap := model.DecodeMap(stage.Context)
			cont, _ := ctxMap[loopContinueKey].(bool)
			if cont {
				start := loopStartFor(stage)
				if start != nil {
					ordered := orderedTasks(stage)
					for _, t := range ordered {
						if t.Order >= start.Order {
							t.Status = model.TaskNotStarted
							t.StartedAt = nil
							t.EndedAt = nil
						}
					}
					if err := e.Store.StoreStage(ctx, stage); err != nil {
						return fmt.Errorf("complete task: persist loop reset: %w", err)
					}
					return e.Queue.Push(ctx, message.For(message.KindStartTask, msg.ExecutionType, exec.ID, exec.Application).WithStage(stage.ID).WithTask(start.ID))
				}
			}
		}

		if nt := nextTask(stage, task); nt != nil {
			return e.Queue.Push(ctx, message.For(message.KindStartTask, msg.ExecutionType, exec.ID, exec.Application).WithStage(stage.ID).WithTask(nt.ID))
		}

		if task.IsStageEnd {
			return e.Queue.Push(ctx, message.For(message.KindCompleteStage, msg.ExecutionType, exec.ID, exec.Application).WithStage(stage.ID).WithStatus(string(model.StageSucceeded)))
		}
		return nil

	case model.TaskTerminal:
		status := model.StageTerminal
		if continuePipeline(stage) {
			status = model.StageFailedContinue
		}
		return e.Queue.Push(ctx, message.For(message.KindCompleteStage, msg.ExecutionType, exec.ID, exec.Application).WithStage(stage.ID).WithStatus(string(status)).WithReason(msg.Reason))

	default:
		return fmt.Errorf("complete task: unrecognized status %q", target)
	}
}
