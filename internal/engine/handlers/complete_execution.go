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

// handleCompleteExecution finalizes the execution and publishes
// ExecutionComplete. The CAS guard makes redelivery a silent no-op
// instead of re-publishing the event.
func (e *Engine) handleCompleteExecution(ctx context.Context, msg message.Message) error {
	exec, err := e.Store.Retrieve(ctx, msg.ExecutionType, msg.ExecutionID)
	if err != nil {
		if errors.Is(err, engineerr.ErrExecutionNotFound) {
			e.publishInvalid(message.KindInvalidExecutionID, msg)
			return nil
		}
		return fmt.Errorf("complete execution: retrieve: %w", err)
	}
	if exec.Status.IsTerminal() {
		return nil
	}

	target := model.ExecutionStatus(msg.Status)
	if target == model.ExecutionSucceeded {
		for i := range exec.Stages {
			if exec.Stages[i].Status == model.StageRunning {
				// A sibling leaf is still in flight; its own completion
				// re-evaluates whether the execution is done.
				return nil
			}
		}
	}
	won, err := e.Store.CASExecutionStatus(ctx, exec.ID, exec.Status, target)
	if err != nil {
		return fmt.Errorf("complete execution: cas: %w", err)
	}
	if !won {
		return nil
	}

	now := e.Clock.Now()
	exec.Status = target
	exec.EndedAt = &now
	if err := e.Store.Store(ctx, exec); err != nil {
		return fmt.Errorf("complete execution: persist: %w", err)
	}

	e.Events.Publish(events.Event{
		Kind:          events.KindExecutionComplete,
		ExecutionType: exec.Type,
		ExecutionID:   exec.ID,
		Application:   exec.Application,
		Status:        string(target),
		At:            now,
	})
	return nil
}
