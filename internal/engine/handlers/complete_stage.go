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

// handleCompleteStage rolls a stage's tasks/synthetics up into a final
// status and propagates to the parent (for STAGE_BEFORE/STAGE_AFTER
// synthetics) or downstream siblings and the execution.
func (e *Engine) handleCompleteStage(ctx context.Context, msg message.Message) error {
	exec, err := e.Store.Retrieve(ctx, msg.ExecutionType, msg.ExecutionID)
	if err != nil {
		if errors.Is(err, engineerr.ErrExecutionNotFound) {
			e.publishInvalid(message.KindInvalidExecutionID, msg)
			return nil
		}
		return fmt.Errorf("complete stage: retrieve: %w", err)
	}

	stage, _ := findStage(exec, msg.StageID)
	if stage == nil {
		e.publishInvalid(message.KindInvalidStageID, msg)
		return nil
	}

	target := model.StageStatus(msg.Status)
	if stage.Status != target {
		now := e.Clock.Now()
		stage.Status = target
		stage.EndedAt = &now
		if msg.Reason != "" {
			stage.LastError = msg.Reason
		}
		if err := e.Store.StoreStage(ctx, stage); err != nil {
			return fmt.Errorf("complete stage: persist: %w", err)
		}
	}

	e.Events.Publish(events.Event{
		Kind:          events.KindStageComplete,
		ExecutionType: msg.ExecutionType,
		ExecutionID:   exec.ID,
		Application:   exec.Application,
		StageID:       stage.ID,
		Status:        string(target),
		At:            e.Clock.Now(),
	})

	// STAGE_BEFORE synthetics only ever advance their parent; they never
	// participate in the top-level DAG themselves. A failing one takes the
	// execution down (or rolls the failure up to its parent) instead,
	// since the parent could otherwise wait on it forever.
	if stage.SyntheticStageOwner == model.SyntheticBefore && stage.ParentStageID != nil {
		if !target.SatisfiesRequisite() {
			if failPipeline(stage) {
				return e.Queue.Push(ctx, message.For(message.KindCompleteExecution, msg.ExecutionType, exec.ID, exec.Application).WithStatus(string(model.ExecutionTerminal)))
			}
			return e.Queue.Push(ctx, message.For(message.KindCompleteStage, msg.ExecutionType, exec.ID, exec.Application).WithStage(*stage.ParentStageID).WithStatus(string(target)).WithReason(msg.Reason))
		}
		parent, _ := findStage(exec, *stage.ParentStageID)
		if parent != nil && parent.Status == model.StageNotStarted {
			// Re-trigger the parent; its own gate either starts the next
			// pending synthetic or, with all of them complete, begins the
			// task phase.
			return e.Queue.Push(ctx, message.For(message.KindStartStage, msg.ExecutionType, exec.ID, exec.Application).WithStage(parent.ID))
		}
		return nil
	}

	effective := stage

	if stage.SyntheticStageOwner == model.SyntheticAfter && stage.ParentStageID != nil {
		parent, _ := findStage(exec, *stage.ParentStageID)
		if parent == nil {
			return nil
		}
		if target.SatisfiesRequisite() {
			afters := childStages(exec, parent.ID, model.SyntheticAfter)
			if !allComplete(afters) {
				return nil // more STAGE_AFTER siblings still pending.
			}
		} else if parent.Status != target {
			// A failing after-synthetic drags the parent down with it; a
			// SKIPPED or SUCCEEDED one leaves the parent's own rollup alone.
			now := e.Clock.Now()
			parent.Status = target
			parent.EndedAt = &now
			if err := e.Store.StoreStage(ctx, parent); err != nil {
				return fmt.Errorf("complete stage: persist parent rollup: %w", err)
			}
		}
		effective = parent
	} else if target.SatisfiesRequisite() {
		afters := childStages(exec, stage.ID, model.SyntheticAfter)
		if len(afters) > 0 && !allComplete(afters) {
			first := afters[0]
			if first.Status == model.StageNotStarted {
				return e.Queue.Push(ctx, message.For(message.KindStartStage, msg.ExecutionType, exec.ID, exec.Application).WithStage(first.ID))
			}
			return nil // an AFTER synthetic is running; its own completion will roll up.
		}
	}

	if !effective.Status.SatisfiesRequisite() && failPipeline(effective) {
		return e.Queue.Push(ctx, message.For(message.KindCompleteExecution, msg.ExecutionType, exec.ID, exec.Application).WithStatus(string(model.ExecutionTerminal)))
	}

	downstream := downstreamOf(exec, effective)
	if len(downstream) == 0 {
		return e.Queue.Push(ctx, message.For(message.KindCompleteExecution, msg.ExecutionType, exec.ID, exec.Application).WithStatus(string(model.ExecutionSucceeded)))
	}
	for _, d := range downstream {
		if err := e.Queue.Push(ctx, message.For(message.KindStartStage, msg.ExecutionType, exec.ID, exec.Application).WithStage(d.ID)); err != nil {
			return fmt.Errorf("complete stage: enqueue downstream: %w", err)
		}
	}
	return nil
}

// downstreamOf returns the sibling top-level stages whose requisites name
// stage's ref id, falling back to the next stage in author order when no
// explicit DAG edge exists.
func downstreamOf(exec *model.Execution, stage *model.Stage) []*model.Stage {
	var out []*model.Stage
	for i := range exec.Stages {
		s := &exec.Stages[i]
		if s.IsSynthetic() {
			continue
		}
		for _, r := range s.RequisiteIDs() {
			if r == stage.RefID {
				out = append(out, s)
				break
			}
		}
	}
	if len(out) > 0 {
		return out
	}
	for i := range exec.Stages {
		s := &exec.Stages[i]
		if s.IsSynthetic() {
			continue
		}
		if s.AuthorOrder == stage.AuthorOrder+1 {
			out = append(out, s)
			break
		}
	}
	return out
}
