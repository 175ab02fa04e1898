// Package message defines the envelope that travels over the queue:
// discriminated variants for every engine command and error signal.
// Messages own no persistent state — they are routing tokens; handlers
// always reload authoritative state from the store.
package message

import (
	"time"

	"github.com/google/uuid"

	"github.com/neurobridge-backend/orcaengine/internal/engine/model"
)

// Kind discriminates a Message's variant. The queue transport serializes
// Message as flat JSON, so Kind plays the same dispatch role a job_type
// column plays on a persisted job-run row.
type Kind string

const (
	KindStartExecution    Kind = "StartExecution"
	KindStartStage        Kind = "StartStage"
	KindStartTask         Kind = "StartTask"
	KindRunTask           Kind = "RunTask"
	KindCompleteTask      Kind = "CompleteTask"
	KindCompleteStage     Kind = "CompleteStage"
	KindCompleteExecution Kind = "CompleteExecution"
	KindPauseStage        Kind = "PauseStage"
	KindPauseExecution    Kind = "PauseExecution"
	KindResumeStage       Kind = "ResumeStage"
	KindResumeExecution   Kind = "ResumeExecution"
	KindCancelExecution   Kind = "CancelExecution"
	KindCancelStage       Kind = "CancelStage"
	KindRestartStage      Kind = "RestartStage"

	// Error signals, emitted by handlers rather than enqueued by callers,
	// but modeled as the same Message type so events.Sink can render them
	// uniformly.
	KindInvalidExecutionID Kind = "InvalidExecutionId"
	KindInvalidStageID     Kind = "InvalidStageId"
	KindInvalidTaskType    Kind = "InvalidTaskType"
)

// Message is the envelope common to every variant. Fields not relevant to a
// given Kind are left zero-valued.
type Message struct {
	Kind Kind `json:"kind"`

	ExecutionType model.ExecutionType `json:"execution_type"`
	ExecutionID   uuid.UUID           `json:"execution_id"`
	Application   string              `json:"application"`
	StageID       uuid.UUID           `json:"stage_id,omitempty"`
	TaskID        uuid.UUID           `json:"task_id,omitempty"`

	// Status carries the terminal status to roll up to on Complete*
	// messages. Left as a string (not model.StageStatus etc.) since a
	// single field spans the execution/stage/task vocabularies depending
	// on Kind.
	Status string `json:"status,omitempty"`
	Reason string `json:"reason,omitempty"`

	// EnqueuedAt lets a handler compute queue latency for observability; it
	// is informational only and never interpreted for correctness.
	EnqueuedAt time.Time `json:"enqueued_at,omitempty"`
}

// For builds a minimal Message of the given kind addressed to an execution.
func For(kind Kind, execType model.ExecutionType, execID uuid.UUID, application string) Message {
	return Message{Kind: kind, ExecutionType: execType, ExecutionID: execID, Application: application}
}

// WithStage returns a copy of m addressed to a specific stage.
func (m Message) WithStage(stageID uuid.UUID) Message {
	m.StageID = stageID
	return m
}

// WithTask returns a copy of m addressed to a specific task.
func (m Message) WithTask(taskID uuid.UUID) Message {
	m.TaskID = taskID
	return m
}

// WithStatus returns a copy of m carrying the given terminal status.
func (m Message) WithStatus(status string) Message {
	m.Status = status
	return m
}

// WithReason returns a copy of m carrying a human-readable reason (used by
// Invalid* and Cancel* variants).
func (m Message) WithReason(reason string) Message {
	m.Reason = reason
	return m
}
