// Package queue defines the at-least-once queue contract: push,
// push-with-delay, poll, ack, nack, with a visibility timeout hiding a
// polled message from other consumers. internal/engine/queue/memqueue,
// redisqueue, and sqsqueue each implement it against a different transport.
package queue

import (
	"context"
	"time"

	"github.com/neurobridge-backend/orcaengine/internal/engine/message"
)

// AckToken is the opaque handle poll() returns alongside a message; callers
// pass it back to Ack or Nack. Transports define their own concrete type.
type AckToken interface{}

// Delivery pairs a decoded Message with the token needed to ack/nack it.
type Delivery struct {
	Message message.Message
	Token   AckToken
}

// Queue is the transport-agnostic contract every handler dispatch loop
// depends on.
type Queue interface {
	// Push enqueues msg for immediate delivery.
	Push(ctx context.Context, msg message.Message) error

	// PushDelay enqueues msg to become visible only after delay elapses —
	// used for RunTask backoff, PAUSED re-checks, and execution windows.
	PushDelay(ctx context.Context, msg message.Message, delay time.Duration) error

	// Poll returns the next visible message, or ok=false if none is ready.
	// A returned message becomes invisible to other Poll calls for the
	// transport's configured visibility timeout until Ack or Nack.
	Poll(ctx context.Context) (d Delivery, ok bool, err error)

	// Ack permanently removes the delivered message.
	Ack(ctx context.Context, token AckToken) error

	// Nack returns the delivered message to the queue immediately, making
	// it visible again without waiting out the visibility timeout.
	Nack(ctx context.Context, token AckToken) error

	// Close releases any transport resources (connections, tickers).
	Close() error
}
