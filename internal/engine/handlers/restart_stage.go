package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/neurobridge-backend/orcaengine/internal/engine/engineerr"
	"github.com/neurobridge-backend/orcaengine/internal/engine/message"
	"github.com/neurobridge-backend/orcaengine/internal/engine/model"
)

// handleRestartStage re-opens a terminal stage and every stage transitively
// downstream of it. A non-terminal target is a deliberate no-op — see
// DESIGN.md.
func (e *Engine) handleRestartStage(ctx context.Context, msg message.Message) error {
	exec, err := e.Store.Retrieve(ctx, msg.ExecutionType, msg.ExecutionID)
	if err != nil {
		if errors.Is(err, engineerr.ErrExecutionNotFound) {
			e.publishInvalid(message.KindInvalidExecutionID, msg)
			return nil
		}
		return fmt.Errorf("restart stage: retrieve: %w", err)
	}
	stage, _ := findStage(exec, msg.StageID)
	if stage == nil {
		e.publishInvalid(message.KindInvalidStageID, msg)
		return nil
	}
	if !stage.Status.IsTerminal() {
		return nil
	}

	set := restartSet(exec, stage)
	var removedIDs []uuid.UUID
	for _, s := range set {
		s.Status = model.StageNotStarted
		s.StartedAt = nil
		s.EndedAt = nil
		s.LastError = ""
		s.Tasks = nil
		s.Materialized = false // force StartStage to rebuild synthetics/tasks; author context (stageEnabled, failPipeline, ...) survives.

		for _, child := range childStages(exec, s.ID, model.SyntheticNone) {
			if err := e.Store.RemoveStage(ctx, exec.ID, child.ID); err != nil {
				return fmt.Errorf("restart stage: remove synthetic %s: %w", child.ID, err)
			}
			removedIDs = append(removedIDs, child.ID)
		}

		// StoreStage reconciles task rows against the now-empty list, so
		// the dropped tasks are really gone and the next StartStage
		// materializes from scratch.
		if err := e.Store.StoreStage(ctx, s); err != nil {
			return fmt.Errorf("restart stage: persist %s: %w", s.ID, err)
		}
	}

	if len(removedIDs) > 0 {
		exec.Stages = filterOutStages(exec.Stages, removedIDs)
	}
	exec.Status = model.ExecutionRunning
	exec.Canceled = false
	if err := e.Store.Store(ctx, exec); err != nil {
		return fmt.Errorf("restart stage: persist: %w", err)
	}

	return e.Queue.Push(ctx, message.For(message.KindStartStage, msg.ExecutionType, exec.ID, exec.Application).WithStage(stage.ID))
}

// restartSet returns start plus every stage transitively reachable
// forward from it, scoped to non-synthetic stages (synthetics are handled
// via removal, not restart). Forward reachability is computed with the
// same rule CompleteStage uses to pick its own downstream targets
// (downstreamOf: explicit requisiteStageRefIds, falling back to the next
// stage in author order when no sibling names this stage as a requisite) so a
// purely author-ordered pipeline restarts its full downstream tail just
// like one wired with explicit requisites — a restart scoped to explicit
// edges only would silently strand implicitly-sequenced stages at their
// old SUCCEEDED status forever.
func restartSet(exec *model.Execution, start *model.Stage) []*model.Stage {
	set := []*model.Stage{start}
	seen := map[uuid.UUID]bool{start.ID: true}
	queue := []*model.Stage{start}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, s := range downstreamOf(exec, cur) {
			if seen[s.ID] {
				continue
			}
			seen[s.ID] = true
			set = append(set, s)
			queue = append(queue, s)
		}
	}
	return set
}

// filterOutStages returns exec's stages with every id in removed dropped.
func filterOutStages(stages []model.Stage, removed []uuid.UUID) []model.Stage {
	drop := make(map[uuid.UUID]bool, len(removed))
	for _, id := range removed {
		drop[id] = true
	}
	out := make([]model.Stage, 0, len(stages))
	for _, s := range stages {
		if drop[s.ID] {
			continue
		}
		out = append(out, s)
	}
	return out
}
