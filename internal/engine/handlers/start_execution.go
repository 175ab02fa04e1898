package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/neurobridge-backend/orcaengine/internal/engine/engineerr"
	"github.com/neurobridge-backend/orcaengine/internal/engine/message"
	"github.com/neurobridge-backend/orcaengine/internal/engine/model"
)

// handleStartExecution transitions an execution from NOT_STARTED to
// RUNNING and kicks off the root stages that rootStages picks.
func (e *Engine) handleStartExecution(ctx context.Context, msg message.Message) error {
	exec, err := e.Store.Retrieve(ctx, msg.ExecutionType, msg.ExecutionID)
	if err != nil {
		if errors.Is(err, engineerr.ErrExecutionNotFound) {
			e.publishInvalid(message.KindInvalidExecutionID, msg)
			return nil
		}
		return fmt.Errorf("start execution: retrieve: %w", err)
	}

	if exec.Status != model.ExecutionNotStarted {
		// Already started by a prior delivery; idempotent no-op.
		return nil
	}

	won, err := e.Store.CASExecutionStatus(ctx, exec.ID, model.ExecutionNotStarted, model.ExecutionRunning)
	if err != nil {
		return fmt.Errorf("start execution: cas: %w", err)
	}
	if !won {
		return nil
	}
	now := e.Clock.Now()
	exec.Status = model.ExecutionRunning
	exec.StartedAt = &now
	if err := e.Store.Store(ctx, exec); err != nil {
		return fmt.Errorf("start execution: persist: %w", err)
	}

	for _, s := range rootStages(exec) {
		if err := e.Queue.Push(ctx, message.For(message.KindStartStage, msg.ExecutionType, exec.ID, exec.Application).WithStage(s.ID)); err != nil {
			return fmt.Errorf("start execution: enqueue StartStage: %w", err)
		}
	}
	return nil
}

// rootStages picks the stages to kick off first. When any stage declares
// explicit requisites, the roots are every stage with none. When no stage
// does, the execution is implicitly sequenced by author order — the same
// rule CompleteStage's downstream fallback uses — so only the first stage
// starts; starting them all would run the whole pipeline in parallel.
func rootStages(exec *model.Execution) []*model.Stage {
	explicit := false
	for i := range exec.Stages {
		s := &exec.Stages[i]
		if !s.IsSynthetic() && len(s.RequisiteIDs()) > 0 {
			explicit = true
			break
		}
	}

	var out []*model.Stage
	for i := range exec.Stages {
		s := &exec.Stages[i]
		if s.IsSynthetic() {
			continue
		}
		if explicit {
			if len(s.RequisiteIDs()) == 0 {
				out = append(out, s)
			}
			continue
		}
		if len(out) == 0 || s.AuthorOrder < out[0].AuthorOrder {
			out = []*model.Stage{s}
		}
	}
	return out
}
