package handlers

import (
	"github.com/neurobridge-backend/orcaengine/internal/engine/events"
	"github.com/neurobridge-backend/orcaengine/internal/engine/message"
)

// publishInvalid emits one of the Invalid* signals as an event, reusing
// msg's addressing fields. Any not-found/unresolvable reference (e.g. an
// unknown executionType) is treated as a fatal-but-droppable condition:
// the message is acked, never retried.
func (e *Engine) publishInvalid(kind message.Kind, msg message.Message) {
	e.Events.Publish(events.Event{
		Kind:          events.Kind(kind),
		ExecutionType: msg.ExecutionType,
		ExecutionID:   msg.ExecutionID,
		Application:   msg.Application,
		StageID:       msg.StageID,
		TaskID:        msg.TaskID,
		At:            e.Clock.Now(),
	})
}
