package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/neurobridge-backend/orcaengine/internal/engine/engineerr"
	"github.com/neurobridge-backend/orcaengine/internal/engine/events"
	"github.com/neurobridge-backend/orcaengine/internal/engine/expr"
	"github.com/neurobridge-backend/orcaengine/internal/engine/message"
	"github.com/neurobridge-backend/orcaengine/internal/engine/model"
	"github.com/neurobridge-backend/orcaengine/internal/engine/registry"
)

// handleStartStage is the central algorithm that expands and dispatches a
// stage's tasks and synthetics.
func (e *Engine) handleStartStage(ctx context.Context, msg message.Message) error {
	exec, err := e.Store.Retrieve(ctx, msg.ExecutionType, msg.ExecutionID)
	if err != nil {
		if errors.Is(err, engineerr.ErrExecutionNotFound) {
			e.publishInvalid(message.KindInvalidExecutionID, msg)
			return nil
		}
		return fmt.Errorf("start stage: retrieve: %w", err)
	}

	if exec.Canceled || exec.Status.IsTerminal() {
		return nil
	}

	stage, stageIdx := findStage(exec, msg.StageID)
	if stage == nil {
		e.publishInvalid(message.KindInvalidStageID, msg)
		return nil
	}

	def, ok := e.Stages.Get(stage.Type)
	if !ok {
		return fmt.Errorf("%w: %s", engineerr.ErrUnknownStageType, stage.Type)
	}

	switch stage.Status {
	case model.StageNotStarted:
		// First (or still-gated) delivery; proceed below.
	case model.StageRunning:
		// Redelivery after a crash between the status CAS and the
		// follow-up writes: re-drive task materialization and the first
		// StartTask. Both are guarded, so a message that raced a healthy
		// worker is harmless.
		return e.resumeRunningStage(ctx, msg, exec, stage, def)
	case model.StageSkipped:
		// Redelivery after a crash between the skip CAS and the
		// CompleteStage enqueue; CompleteStage is idempotent.
		return e.Queue.Push(ctx, message.For(message.KindCompleteStage, msg.ExecutionType, exec.ID, exec.Application).WithStage(stage.ID).WithStatus(string(model.StageSkipped)))
	default:
		// Completed by a prior delivery.
		return nil
	}

	// Step 4: requisites.
	for _, refID := range stage.RequisiteIDs() {
		req := findStageByRefID(exec, refID)
		if req == nil || !req.Status.SatisfiesRequisite() {
			return nil // ack; the completing upstream stage re-enqueues us.
		}
	}

	evalCtx := mergedContext(exec, stage)

	// Step 5: stageEnabled. An evaluation failure is TERMINAL on this
	// stage, not a transient handler error — retrying a malformed
	// expression never helps.
	if e.StageGuard != nil {
		enabled, err := e.StageGuard.Eval(stageEnabledExpression(stage), evalCtx)
		if err != nil {
			return e.Queue.Push(ctx, message.For(message.KindCompleteStage, msg.ExecutionType, exec.ID, exec.Application).WithStage(stage.ID).WithStatus(string(model.StageTerminal)).WithReason(err.Error()))
		}
		if !enabled {
			won, err := e.Store.CASStageStatus(ctx, stage.ID, model.StageNotStarted, model.StageSkipped)
			if err != nil {
				return fmt.Errorf("start stage: cas skip: %w", err)
			}
			if !won {
				return nil
			}
			now := e.Clock.Now()
			stage.Status = model.StageSkipped
			stage.EndedAt = &now
			if err := e.Store.StoreStage(ctx, stage); err != nil {
				return fmt.Errorf("start stage: persist skip: %w", err)
			}
			return e.Queue.Push(ctx, message.For(message.KindCompleteStage, msg.ExecutionType, exec.ID, exec.Application).WithStage(stage.ID).WithStatus(string(model.StageSkipped)))
		}
	}

	// Step 6: execution window.
	if restrictExecutionDuringTimeWindow(stage) {
		if existing := childStages(exec, stage.ID, model.SyntheticBefore); !hasType(existing, restrictWindowStageType) {
			windowStage := newSyntheticStage(exec, stage, registry.SyntheticSpec{
				RefIDSuffix: "window",
				Type:        restrictWindowStageType,
				Name:        "Restrict execution during time window",
			}, model.SyntheticBefore, len(existing)+1)
			if err := e.Store.StoreStage(ctx, windowStage); err != nil {
				return fmt.Errorf("start stage: persist window synthetic: %w", err)
			}
			exec.Stages = append(exec.Stages, *windowStage)
			return e.Queue.Push(ctx, message.For(message.KindStartStage, msg.ExecutionType, exec.ID, exec.Application).WithStage(windowStage.ID))
		}
	}

	// Step 7: synthetic expansion, only on first visit. The flag guards
	// against re-expanding on redelivery; a dedicated column rather than
	// inferred from before/after emptiness so it survives an
	// execution-window synthetic already having been inserted ahead of the
	// stage's own synthetics. Each new synthetic is persisted individually
	// (never a whole-execution save, which would clobber sibling rows a
	// concurrent worker just transitioned), keyed by its deterministic ref
	// id so a crash mid-expansion re-creates only what is missing.
	if !stage.Materialized {
		// A parallel branch child carries its parent's own type; asking the
		// definition to expand it again would fan out forever.
		var branches []registry.SyntheticSpec
		if !stage.IsSynthetic() {
			branches = def.ParallelStages(stage)
		}
		beforeSpecs := def.BeforeStages(stage)
		afterSpecs := def.AfterStages(stage)

		existingRefs := map[string]bool{}
		windowChildren := 0
		for _, c := range childStages(exec, stage.ID, model.SyntheticNone) {
			existingRefs[c.RefID] = true
			if c.Type == restrictWindowStageType {
				windowChildren++
			}
		}

		var newStages []model.Stage
		// Ordinals continue after the execution-window synthetic when one
		// is present, keeping it first in completion order; counting only
		// window children (never partial inserts) keeps the assignment
		// stable across redeliveries.
		ordinal := windowChildren + 1
		for _, spec := range beforeSpecs {
			s := newSyntheticStage(exec, stage, spec, model.SyntheticBefore, ordinal)
			ordinal++
			if existingRefs[s.RefID] {
				continue
			}
			newStages = append(newStages, *s)
		}
		for _, spec := range branches {
			s := newSyntheticStage(exec, stage, spec, model.SyntheticBefore, ordinal)
			s.ParallelBranch = true
			ordinal++
			if existingRefs[s.RefID] {
				continue
			}
			newStages = append(newStages, *s)
		}
		ordinal = 1
		for _, spec := range afterSpecs {
			s := newSyntheticStage(exec, stage, spec, model.SyntheticAfter, ordinal)
			ordinal++
			if existingRefs[s.RefID] {
				continue
			}
			newStages = append(newStages, *s)
		}

		for i := range newStages {
			if err := e.Store.StoreStage(ctx, &newStages[i]); err != nil {
				return fmt.Errorf("start stage: persist synthetic %s: %w", newStages[i].RefID, err)
			}
		}
		exec.Stages = append(exec.Stages, newStages...)
		stage = &exec.Stages[stageIdx] // appends above may have reallocated the backing array
		stage.Materialized = true
		// Persist the flag now only when there are synthetics to guard;
		// otherwise the CAS winner's StoreStage below carries it, so a
		// loser racing this delivery never writes this stage's rows at all.
		if len(newStages) > 0 {
			if err := e.Store.StoreStage(ctx, stage); err != nil {
				return fmt.Errorf("start stage: persist expansion flag: %w", err)
			}
		}
	}

	// Step 10. Tasks are deliberately not built yet: a stage gated behind
	// STAGE_BEFORE synthetics carries no task list until it actually
	// starts.
	before := childStages(exec, stage.ID, model.SyntheticBefore)
	if len(before) > 0 && !allComplete(before) {
		for _, b := range nextBeforeStages(before) {
			if err := e.Queue.Push(ctx, message.For(message.KindStartStage, msg.ExecutionType, exec.ID, exec.Application).WithStage(b.ID)); err != nil {
				return fmt.Errorf("start stage: enqueue synthetic: %w", err)
			}
		}
		return nil // their completions re-trigger us via the parent.
	}

	won, err := e.Store.CASStageStatus(ctx, stage.ID, model.StageNotStarted, model.StageRunning)
	if err != nil {
		return fmt.Errorf("start stage: cas running: %w", err)
	}
	if !won {
		return nil
	}
	now := e.Clock.Now()
	stage.Status = model.StageRunning
	stage.StartedAt = &now

	// Resolve ${...} references in the authored context now that every
	// upstream output is final; unresolved references stay verbatim.
	stage.Context = model.EncodeMap(expr.SubstituteMap(model.DecodeMap(stage.Context), templateScope(exec, stage)))

	// Step 8: the CAS winner materializes the task list, so it is built
	// exactly once per stage opening (restart clears it along with the
	// Materialized flag). This StoreStage also persists the flag for
	// stages whose expansion produced no synthetics.
	materializeTasks(def, stage)
	if err := e.Store.StoreStage(ctx, stage); err != nil {
		return fmt.Errorf("start stage: persist running: %w", err)
	}

	e.Events.Publish(events.Event{
		Kind:          events.KindStageStarted,
		ExecutionType: msg.ExecutionType,
		ExecutionID:   exec.ID,
		Application:   exec.Application,
		StageID:       stage.ID,
		At:            now,
	})

	return e.dispatchFirstTask(ctx, msg, exec, stage)
}

// nextBeforeStages picks which pending STAGE_BEFORE children to start,
// walking in ordinal order: ordinary befores run one at a time (each
// completion re-triggers the parent, which starts the next), while parallel
// branches all fan out at once and never block each other.
func nextBeforeStages(before []*model.Stage) []*model.Stage {
	var out []*model.Stage
	for _, b := range before {
		if b.Status.SatisfiesRequisite() {
			continue
		}
		if b.Status == model.StageNotStarted {
			out = append(out, b)
			if b.ParallelBranch {
				continue
			}
			break
		}
		// In flight (or failed, which CompleteStage resolves). A running
		// branch doesn't block its siblings; a running sequential before
		// blocks everything after it.
		if !b.ParallelBranch {
			break
		}
	}
	return out
}

// resumeRunningStage re-drives a stage a crashed worker left RUNNING:
// rebuild the task list if the crash predates its persist, then re-enqueue
// the first task if it never started. StartTask's own status guard makes a
// duplicate enqueue harmless.
func (e *Engine) resumeRunningStage(ctx context.Context, msg message.Message, exec *model.Execution, stage *model.Stage, def registry.StageDefinition) error {
	if len(stage.Tasks) == 0 {
		materializeTasks(def, stage)
		if err := e.Store.StoreStage(ctx, stage); err != nil {
			return fmt.Errorf("start stage: persist resumed tasks: %w", err)
		}
	}
	start := findTaskFlag(stage, func(t *model.Task) bool { return t.IsStageStart })
	if start != nil && start.Status != model.TaskNotStarted {
		return nil // the stage is genuinely mid-flight.
	}
	return e.dispatchFirstTask(ctx, msg, exec, stage)
}

// dispatchFirstTask enqueues StartTask for the stage-start task, or rolls a
// stage with an empty task graph straight up as SUCCEEDED.
func (e *Engine) dispatchFirstTask(ctx context.Context, msg message.Message, exec *model.Execution, stage *model.Stage) error {
	startTask := findTaskFlag(stage, func(t *model.Task) bool { return t.IsStageStart })
	if startTask == nil {
		return e.Queue.Push(ctx, message.For(message.KindCompleteStage, msg.ExecutionType, exec.ID, exec.Application).WithStage(stage.ID).WithStatus(string(model.StageSucceeded)))
	}
	return e.Queue.Push(ctx, message.For(message.KindStartTask, msg.ExecutionType, exec.ID, exec.Application).WithStage(stage.ID).WithTask(startTask.ID))
}

// materializeTasks runs the definition's task graph and appends the result
// to the stage's (empty) task list.
func materializeTasks(def registry.StageDefinition, stage *model.Stage) {
	if len(stage.Tasks) > 0 {
		return
	}
	builder := &registry.Builder{}
	def.TaskGraph(stage, builder)
	for i, ts := range builder.Tasks {
		stage.Tasks = append(stage.Tasks, taskFromSpec(ts, i))
	}
	for i := range stage.Tasks {
		stage.Tasks[i].StageID = stage.ID
	}
}

func hasType(stages []*model.Stage, typ string) bool {
	for _, s := range stages {
		if s.Type == typ {
			return true
		}
	}
	return false
}

func findTaskFlag(stage *model.Stage, pred func(*model.Task) bool) *model.Task {
	for i := range stage.Tasks {
		if pred(&stage.Tasks[i]) {
			return &stage.Tasks[i]
		}
	}
	return nil
}

func newSyntheticStage(exec *model.Execution, parent *model.Stage, spec registry.SyntheticSpec, owner model.SyntheticOwner, ordinal int) *model.Stage {
	id := newUUID()
	parentID := parent.ID
	return &model.Stage{
		ID:                  id,
		ExecutionID:         exec.ID,
		RefID:               fmt.Sprintf("%s-%d-%s", parent.RefID, ordinal, spec.RefIDSuffix),
		Type:                spec.Type,
		Name:                spec.Name,
		Status:              model.StageNotStarted,
		ParentStageID:       &parentID,
		SyntheticStageOwner: owner,
		SyntheticOrdinal:    ordinal,
		AuthorOrder:         parent.AuthorOrder,
	}
}

func taskFromSpec(ts registry.TaskSpec, ordinal int) model.Task {
	return model.Task{
		ID:                 newUUID(),
		Ordinal:            fmt.Sprintf("%d", ordinal+1),
		Name:               ts.Name,
		ImplementingClass:  ts.ImplementingClass,
		Status:             model.TaskNotStarted,
		IsStageStart:       ts.IsStageStart,
		IsStageEnd:         ts.IsStageEnd,
		IsLoopStart:        ts.IsLoopStart,
		IsLoopEnd:          ts.IsLoopEnd,
		RetryableTimeoutMS: ts.RetryableTimeoutMS,
		BackoffMS:          ts.BackoffMS,
		Order:              ordinal,
	}
}
