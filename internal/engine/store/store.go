// Package store defines the execution store interface, plus the
// compare-and-set primitive the concurrency model depends on to make
// StartStage's NOT_STARTED->RUNNING transition race-safe.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/neurobridge-backend/orcaengine/internal/engine/model"
)

// Store is the execution store interface:
// retrieve(type, id), store(execution), storeStage(stage),
// removeStage(execution, stageId), updateStatus(executionId, status).
type Store interface {
	// Retrieve loads an execution (with its stages and tasks) by type and
	// id. Returns engineerr.ErrExecutionNotFound if absent.
	Retrieve(ctx context.Context, execType model.ExecutionType, id uuid.UUID) (*model.Execution, error)

	// Store upserts the execution row only. Stage and task rows are
	// written exclusively through StoreStage, so one handler's stale
	// in-memory snapshot of a sibling stage can never overwrite a
	// transition a concurrent worker just made.
	Store(ctx context.Context, exec *model.Execution) error

	// StoreStage upserts a single stage row and reconciles its task rows
	// against the stage's in-memory task list, deleting rows the caller
	// dropped.
	StoreStage(ctx context.Context, stage *model.Stage) error

	// RemoveStage hard-deletes a stage (and its tasks) from the execution.
	// Synthetic stages are not recoverable audit trail; only the root
	// Execution soft-deletes.
	RemoveStage(ctx context.Context, executionID, stageID uuid.UUID) error

	// UpdateStatus sets an execution's status unconditionally.
	UpdateStatus(ctx context.Context, executionID uuid.UUID, status model.ExecutionStatus) error

	// CASStageStatus performs the compare-and-set the StartStage race
	// requires: it updates the stage status only if the stage's
	// current persisted status is exactly from, reporting whether the
	// write happened. A false result (no error) means a concurrent winner
	// already made this transition.
	CASStageStatus(ctx context.Context, stageID uuid.UUID, from, to model.StageStatus) (bool, error)

	// CASExecutionStatus is the execution-level analogue of CASStageStatus,
	// used by CompleteExecution to detect first-transition idempotently.
	CASExecutionStatus(ctx context.Context, executionID uuid.UUID, from, to model.ExecutionStatus) (bool, error)
}
