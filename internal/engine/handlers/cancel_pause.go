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

// handleCancelExecution marks the execution CANCELED and fans a CancelStage
// out to every non-terminal stage.
func (e *Engine) handleCancelExecution(ctx context.Context, msg message.Message) error {
	exec, err := e.Store.Retrieve(ctx, msg.ExecutionType, msg.ExecutionID)
	if err != nil {
		if errors.Is(err, engineerr.ErrExecutionNotFound) {
			e.publishInvalid(message.KindInvalidExecutionID, msg)
			return nil
		}
		return fmt.Errorf("cancel execution: retrieve: %w", err)
	}
	if exec.Canceled {
		return nil
	}

	now := e.Clock.Now()
	exec.Canceled = true
	exec.Status = model.ExecutionCanceled
	exec.EndedAt = &now
	if err := e.Store.Store(ctx, exec); err != nil {
		return fmt.Errorf("cancel execution: persist: %w", err)
	}

	for i := range exec.Stages {
		s := &exec.Stages[i]
		if s.Status.IsTerminal() {
			continue
		}
		if err := e.Queue.Push(ctx, message.For(message.KindCancelStage, msg.ExecutionType, exec.ID, exec.Application).WithStage(s.ID)); err != nil {
			return fmt.Errorf("cancel execution: enqueue cancel stage: %w", err)
		}
	}

	e.Events.Publish(events.Event{
		Kind:          events.KindExecutionComplete,
		ExecutionType: exec.Type,
		ExecutionID:   exec.ID,
		Application:   exec.Application,
		Status:        string(model.ExecutionCanceled),
		At:            now,
	})
	return nil
}

// handleCancelStage transitions RUNNING (or NOT_STARTED) to CANCELED and
// stops further task dispatch for this stage.
func (e *Engine) handleCancelStage(ctx context.Context, msg message.Message) error {
	exec, err := e.Store.Retrieve(ctx, msg.ExecutionType, msg.ExecutionID)
	if err != nil {
		if errors.Is(err, engineerr.ErrExecutionNotFound) {
			e.publishInvalid(message.KindInvalidExecutionID, msg)
			return nil
		}
		return fmt.Errorf("cancel stage: retrieve: %w", err)
	}
	stage, _ := findStage(exec, msg.StageID)
	if stage == nil {
		e.publishInvalid(message.KindInvalidStageID, msg)
		return nil
	}
	if stage.Status.IsTerminal() {
		return nil
	}

	won, err := e.Store.CASStageStatus(ctx, stage.ID, stage.Status, model.StageCanceled)
	if err != nil {
		return fmt.Errorf("cancel stage: cas: %w", err)
	}
	if !won {
		return nil
	}
	now := e.Clock.Now()
	stage.Status = model.StageCanceled
	stage.EndedAt = &now
	if err := e.Store.StoreStage(ctx, stage); err != nil {
		return fmt.Errorf("cancel stage: persist: %w", err)
	}

	e.Events.Publish(events.Event{
		Kind:          events.KindStageComplete,
		ExecutionType: msg.ExecutionType,
		ExecutionID:   exec.ID,
		Application:   exec.Application,
		StageID:       stage.ID,
		Status:        string(model.StageCanceled),
		At:            now,
	})
	return nil
}

// handlePauseStage sets the PAUSED marker StartTask checks before dispatch.
func (e *Engine) handlePauseStage(ctx context.Context, msg message.Message) error {
	exec, err := e.Store.Retrieve(ctx, msg.ExecutionType, msg.ExecutionID)
	if err != nil {
		if errors.Is(err, engineerr.ErrExecutionNotFound) {
			e.publishInvalid(message.KindInvalidExecutionID, msg)
			return nil
		}
		return fmt.Errorf("pause stage: retrieve: %w", err)
	}
	stage, _ := findStage(exec, msg.StageID)
	if stage == nil {
		e.publishInvalid(message.KindInvalidStageID, msg)
		return nil
	}
	if stage.Paused {
		return nil
	}
	stage.Paused = true
	if err := e.Store.StoreStage(ctx, stage); err != nil {
		return fmt.Errorf("pause stage: persist: %w", err)
	}
	return nil
}

// handlePauseExecution sets the PAUSED marker on every stage that hasn't
// finished, the execution-wide analogue of PauseStage.
func (e *Engine) handlePauseExecution(ctx context.Context, msg message.Message) error {
	exec, err := e.Store.Retrieve(ctx, msg.ExecutionType, msg.ExecutionID)
	if err != nil {
		if errors.Is(err, engineerr.ErrExecutionNotFound) {
			e.publishInvalid(message.KindInvalidExecutionID, msg)
			return nil
		}
		return fmt.Errorf("pause execution: retrieve: %w", err)
	}
	for i := range exec.Stages {
		s := &exec.Stages[i]
		if s.Status.IsTerminal() || s.Paused {
			continue
		}
		s.Paused = true
		if err := e.Store.StoreStage(ctx, s); err != nil {
			return fmt.Errorf("pause execution: persist stage %s: %w", s.ID, err)
		}
	}
	return nil
}

// handleResumeExecution clears every stage-level PAUSED marker.
func (e *Engine) handleResumeExecution(ctx context.Context, msg message.Message) error {
	exec, err := e.Store.Retrieve(ctx, msg.ExecutionType, msg.ExecutionID)
	if err != nil {
		if errors.Is(err, engineerr.ErrExecutionNotFound) {
			e.publishInvalid(message.KindInvalidExecutionID, msg)
			return nil
		}
		return fmt.Errorf("resume execution: retrieve: %w", err)
	}
	for i := range exec.Stages {
		s := &exec.Stages[i]
		if !s.Paused {
			continue
		}
		s.Paused = false
		if err := e.Store.StoreStage(ctx, s); err != nil {
			return fmt.Errorf("resume execution: persist stage %s: %w", s.ID, err)
		}
	}
	return nil
}

// handleResumeStage clears the PAUSED marker.
func (e *Engine) handleResumeStage(ctx context.Context, msg message.Message) error {
	exec, err := e.Store.Retrieve(ctx, msg.ExecutionType, msg.ExecutionID)
	if err != nil {
		if errors.Is(err, engineerr.ErrExecutionNotFound) {
			e.publishInvalid(message.KindInvalidExecutionID, msg)
			return nil
		}
		return fmt.Errorf("resume stage: retrieve: %w", err)
	}
	stage, _ := findStage(exec, msg.StageID)
	if stage == nil {
		e.publishInvalid(message.KindInvalidStageID, msg)
		return nil
	}
	if !stage.Paused {
		return nil
	}
	stage.Paused = false
	if err := e.Store.StoreStage(ctx, stage); err != nil {
		return fmt.Errorf("resume stage: persist: %w", err)
	}
	// The StartTask delivery that observed Paused re-enqueues itself with
	// pausedRecheckDelay; clearing the flag here is enough for it to
	// proceed on its next poll, no fresh enqueue needed.
	return nil
}
