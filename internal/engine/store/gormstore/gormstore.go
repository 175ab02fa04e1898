// Package gormstore implements internal/engine/store.Store on top of
// gorm.io/gorm: CAS-guarded updates via conditional WHERE clauses, with
// postgres as the primary driver and sqlite wired for embeddable
// deployment and fast unit tests.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/neurobridge-backend/orcaengine/internal/engine/engineerr"
	"github.com/neurobridge-backend/orcaengine/internal/engine/model"
)

// Store implements store.Store against a *gorm.DB.
type Store struct {
	db *gorm.DB
}

// New wraps db. Callers are expected to have already run Migrate.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the executions/stages/tasks tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Execution{}, &model.Stage{}, &model.Task{})
}

func (s *Store) Retrieve(ctx context.Context, execType model.ExecutionType, id uuid.UUID) (*model.Execution, error) {
	var exec model.Execution
	err := s.db.WithContext(ctx).
		Preload("Stages").
		Preload("Stages.Tasks").
		Where("id = ? AND type = ?", id, execType).
		First(&exec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", engineerr.ErrExecutionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

// Store saves the execution row only. Stage and task rows always go
// through StoreStage: a whole-execution save would rewrite sibling rows
// from this handler's possibly stale in-memory snapshot, undoing
// transitions a concurrent worker just CAS'd in.
func (s *Store) Store(ctx context.Context, exec *model.Execution) error {
	exec.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).
		Omit(clause.Associations).
		Save(exec).Error
}

// StoreStage saves the stage row and reconciles its task rows against the
// in-memory list: tasks present are upserted, tasks absent are deleted.
// Callers always pass stages loaded by Retrieve with their full task list,
// so the prune only bites when a handler deliberately dropped tasks
// (RestartStage clearing a rewound stage).
func (s *Store) StoreStage(ctx context.Context, stage *model.Stage) error {
	stage.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(stage).Error; err != nil {
			return err
		}
		kept := make([]uuid.UUID, 0, len(stage.Tasks))
		for i := range stage.Tasks {
			stage.Tasks[i].StageID = stage.ID
			stage.Tasks[i].UpdatedAt = time.Now()
			if err := tx.Save(&stage.Tasks[i]).Error; err != nil {
				return err
			}
			kept = append(kept, stage.Tasks[i].ID)
		}
		del := tx.Unscoped().Where("stage_id = ?", stage.ID)
		if len(kept) > 0 {
			del = del.Where("id NOT IN ?", kept)
		}
		return del.Delete(&model.Task{}).Error
	})
}

func (s *Store) RemoveStage(ctx context.Context, executionID, stageID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("stage_id = ?", stageID).Delete(&model.Task{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().
			Where("id = ? AND execution_id = ?", stageID, executionID).
			Delete(&model.Stage{}).Error
	})
}

func (s *Store) UpdateStatus(ctx context.Context, executionID uuid.UUID, status model.ExecutionStatus) error {
	return s.db.WithContext(ctx).
		Model(&model.Execution{}).
		Where("id = ?", executionID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

// CASStageStatus is a single conditional UPDATE whose RowsAffected tells
// the caller whether it won the race, rather than a read-then-write round
// trip.
func (s *Store) CASStageStatus(ctx context.Context, stageID uuid.UUID, from, to model.StageStatus) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&model.Stage{}).
		Where("id = ? AND status = ?", stageID, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) CASExecutionStatus(ctx context.Context, executionID uuid.UUID, from, to model.ExecutionStatus) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&model.Execution{}).
		Where("id = ? AND status = ?", executionID, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
