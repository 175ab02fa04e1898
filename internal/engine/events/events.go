// Package events defines an injected Sink interface for the five
// lifecycle events the engine publishes. The engine has no UI to notify,
// so the production Sink only logs and optionally fans out to Redis
// pub/sub; tests use Recording to assert on emitted events without a
// broker.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/neurobridge-backend/orcaengine/internal/engine/model"
)

// Kind names one of the five lifecycle event types the engine publishes.
type Kind string

const (
	KindStageStarted      Kind = "StageStarted"
	KindStageComplete     Kind = "StageComplete"
	KindTaskStarted       Kind = "TaskStarted"
	KindTaskComplete      Kind = "TaskComplete"
	KindExecutionComplete Kind = "ExecutionComplete"
)

// Event carries execution type tag, execution id, application, and (where
// applicable) stage/task ids and final status — the common fields every
// published event carries.
type Event struct {
	Kind          Kind                `json:"kind"`
	ExecutionType model.ExecutionType `json:"execution_type"`
	ExecutionID   uuid.UUID           `json:"execution_id"`
	Application   string              `json:"application"`
	StageID       uuid.UUID           `json:"stage_id,omitempty"`
	TaskID        uuid.UUID           `json:"task_id,omitempty"`
	Status        string              `json:"status,omitempty"`
	At            time.Time           `json:"at"`
}

// Sink is the injected seam every handler publishes through. Implementations
// must not block the caller on slow downstream consumers; Logging and
// Recording below are both effectively non-blocking.
type Sink interface {
	Publish(e Event)
}

// SinkFunc adapts a plain function to Sink, mirroring the stdlib http.HandlerFunc idiom.
type SinkFunc func(Event)

func (f SinkFunc) Publish(e Event) { f(e) }

// Multi fans a single Publish out to several sinks, in order. Used to wire
// Logging and a Redis-backed sink together without either depending on the
// other.
type Multi []Sink

func (m Multi) Publish(e Event) {
	for _, s := range m {
		if s != nil {
			s.Publish(e)
		}
	}
}
