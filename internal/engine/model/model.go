// Package model defines the durable entities of the execution engine:
// Execution, Stage, and Task. These are persisted verbatim by
// internal/engine/store implementations and mutated only by handlers in
// internal/engine/handlers.
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ExecutionType distinguishes a full pipeline from an ad-hoc orchestration.
type ExecutionType string

const (
	ExecutionTypePipeline     ExecutionType = "pipeline"
	ExecutionTypeOrchestration ExecutionType = "orchestration"
)

// ExecutionStatus is the lifecycle status of an Execution. It progresses
// monotonically from NotStarted through Running to exactly one terminal
// value.
type ExecutionStatus string

const (
	ExecutionNotStarted ExecutionStatus = "NOT_STARTED"
	ExecutionRunning    ExecutionStatus = "RUNNING"
	ExecutionSucceeded  ExecutionStatus = "SUCCEEDED"
	ExecutionTerminal   ExecutionStatus = "TERMINAL"
	ExecutionCanceled   ExecutionStatus = "CANCELED"
	ExecutionStopped    ExecutionStatus = "STOPPED"
)

// IsTerminal reports whether s is one of the four terminal execution states.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionSucceeded, ExecutionTerminal, ExecutionCanceled, ExecutionStopped:
		return true
	default:
		return false
	}
}

// StageStatus is the lifecycle status of a Stage.
type StageStatus string

const (
	StageNotStarted     StageStatus = "NOT_STARTED"
	StageRunning        StageStatus = "RUNNING"
	StageSucceeded      StageStatus = "SUCCEEDED"
	StageTerminal       StageStatus = "TERMINAL"
	StageCanceled       StageStatus = "CANCELED"
	StageStopped        StageStatus = "STOPPED"
	StageSkipped        StageStatus = "SKIPPED"
	StageFailedContinue StageStatus = "FAILED_CONTINUE"
)

// IsTerminal reports whether s is a terminal (or terminal-equivalent) stage
// status. SKIPPED and FAILED_CONTINUE count as terminal-success for
// downstream gating purposes — see SatisfiesRequisite.
func (s StageStatus) IsTerminal() bool {
	switch s {
	case StageSucceeded, StageTerminal, StageCanceled, StageStopped, StageSkipped, StageFailedContinue:
		return true
	default:
		return false
	}
}

// IsSuccessEquivalent reports whether s counts as success: SUCCEEDED or
// FAILED_CONTINUE. Requisite gating also accepts SKIPPED; see
// SatisfiesRequisite.
func (s StageStatus) IsSuccessEquivalent() bool {
	return s == StageSucceeded || s == StageFailedContinue
}

// SatisfiesRequisite reports whether s completes its slot in the DAG so
// downstream work may proceed: success-equivalent, or SKIPPED — a skipped
// stage never ran, but it must not block (or fail) what follows it.
func (s StageStatus) SatisfiesRequisite() bool {
	return s.IsSuccessEquivalent() || s == StageSkipped
}

// SyntheticOwner tags a synthetic stage's relationship to its parent.
type SyntheticOwner string

const (
	SyntheticNone   SyntheticOwner = ""
	SyntheticBefore SyntheticOwner = "STAGE_BEFORE"
	SyntheticAfter  SyntheticOwner = "STAGE_AFTER"
)

// TaskStatus is the lifecycle status of a Task.
type TaskStatus string

const (
	TaskNotStarted TaskStatus = "NOT_STARTED"
	TaskRunning    TaskStatus = "RUNNING"
	TaskSucceeded  TaskStatus = "SUCCEEDED"
	TaskTerminal   TaskStatus = "TERMINAL"
)

// Execution is the root entity: one in-flight pipeline or orchestration.
type Execution struct {
	ID            uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Application   string          `gorm:"column:application;not null;index" json:"application"`
	Type          ExecutionType   `gorm:"column:type;not null;index" json:"type"`
	Status        ExecutionStatus `gorm:"column:status;not null;index" json:"status"`
	Canceled      bool            `gorm:"column:canceled;not null;default:false" json:"canceled"`
	Origin        string          `gorm:"column:origin" json:"origin,omitempty"`
	StartedAt     *time.Time      `gorm:"column:started_at" json:"started_at,omitempty"`
	EndedAt       *time.Time      `gorm:"column:ended_at" json:"ended_at,omitempty"`
	Context       datatypes.JSON  `gorm:"column:context;type:jsonb" json:"context,omitempty"`
	Trigger       datatypes.JSON  `gorm:"column:trigger;type:jsonb" json:"trigger,omitempty"`
	Stages        []Stage         `gorm:"foreignKey:ExecutionID" json:"stages,omitempty"`
	CreatedAt     time.Time       `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt     gorm.DeletedAt  `gorm:"index" json:"deleted_at,omitempty"`
}

func (Execution) TableName() string { return "executions" }

// Stage is a node in the execution DAG.
type Stage struct {
	ID                   uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ExecutionID          uuid.UUID      `gorm:"type:uuid;not null;index;uniqueIndex:uq_stages_execution_ref,priority:1" json:"execution_id"`
	RefID                string         `gorm:"column:ref_id;not null;uniqueIndex:uq_stages_execution_ref,priority:2" json:"ref_id"`
	Type                 string         `gorm:"column:type;not null" json:"type"`
	Name                 string         `gorm:"column:name" json:"name,omitempty"`
	Status               StageStatus    `gorm:"column:status;not null;index" json:"status"`
	StartedAt            *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	EndedAt              *time.Time     `gorm:"column:ended_at" json:"ended_at,omitempty"`
	ParentStageID        *uuid.UUID     `gorm:"type:uuid;column:parent_stage_id;index" json:"parent_stage_id,omitempty"`
	SyntheticStageOwner  SyntheticOwner `gorm:"column:synthetic_stage_owner" json:"synthetic_stage_owner,omitempty"`
	RequisiteStageRefIds datatypes.JSON `gorm:"column:requisite_stage_ref_ids;type:jsonb" json:"requisite_stage_ref_ids,omitempty"`
	SyntheticOrdinal     int            `gorm:"column:synthetic_ordinal" json:"synthetic_ordinal,omitempty"`
	ParallelBranch       bool           `gorm:"column:parallel_branch;not null;default:false" json:"parallel_branch,omitempty"`
	AuthorOrder          int            `gorm:"column:author_order;not null" json:"author_order"`
	Context              datatypes.JSON `gorm:"column:context;type:jsonb" json:"context,omitempty"`
	OutputsContext       datatypes.JSON `gorm:"column:outputs_context;type:jsonb" json:"outputs_context,omitempty"`
	Paused               bool           `gorm:"column:paused;not null;default:false" json:"paused"`
	Materialized         bool           `gorm:"column:materialized;not null;default:false" json:"materialized,omitempty"`
	LastError            string         `gorm:"column:last_error" json:"last_error,omitempty"`
	Tasks                []Task         `gorm:"foreignKey:StageID" json:"tasks,omitempty"`
	CreatedAt            time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt            time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (Stage) TableName() string { return "stages" }

// RequisiteIDs decodes RequisiteStageRefIds into a []string.
func (s *Stage) RequisiteIDs() []string {
	return decodeStringSlice(s.RequisiteStageRefIds)
}

// IsSynthetic reports whether this stage was materialized by a parent
// stage's StageDefinition rather than authored directly.
func (s *Stage) IsSynthetic() bool {
	return s.ParentStageID != nil && s.SyntheticStageOwner != SyntheticNone
}

// Task is a leaf unit of work inside a Stage.
type Task struct {
	ID                 uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	StageID            uuid.UUID  `gorm:"type:uuid;not null;index" json:"stage_id"`
	Ordinal            string     `gorm:"column:ordinal;not null" json:"ordinal"`
	Name               string     `gorm:"column:name" json:"name,omitempty"`
	ImplementingClass  string     `gorm:"column:implementing_class;not null" json:"implementing_class"`
	Status             TaskStatus `gorm:"column:status;not null;index" json:"status"`
	StartedAt          *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	EndedAt            *time.Time `gorm:"column:ended_at" json:"ended_at,omitempty"`
	IsStageStart       bool       `gorm:"column:is_stage_start;not null;default:false" json:"is_stage_start"`
	IsStageEnd         bool       `gorm:"column:is_stage_end;not null;default:false" json:"is_stage_end"`
	IsLoopStart        bool       `gorm:"column:is_loop_start;not null;default:false" json:"is_loop_start"`
	IsLoopEnd          bool       `gorm:"column:is_loop_end;not null;default:false" json:"is_loop_end"`
	RetryableTimeoutMS int64      `gorm:"column:retryable_timeout_ms" json:"retryable_timeout_ms,omitempty"`
	BackoffMS          int64      `gorm:"column:backoff_ms" json:"backoff_ms,omitempty"`
	Order               int       `gorm:"column:task_order;not null" json:"order"`
	CreatedAt          time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (Task) TableName() string { return "tasks" }

// IsRetryable reports whether this task declares a nonzero timeout, marking
// it as a RetryableTask.
func (t *Task) IsRetryable() bool { return t.RetryableTimeoutMS > 0 }
