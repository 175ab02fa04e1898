/*
Package handlers implements the message handlers that drive the execution
engine forward: StartExecution, StartStage, StartTask, RunTask,
CompleteTask, CompleteStage, CompleteExecution, Cancel/Pause/Resume, and
RestartStage. Every handler is synchronous, short-running, and idempotent
under redelivery — the contract worker.Pool depends on to safely
nack-and-retry on any transient error.

Each handler follows the same shape: load authoritative state from the
store, decide the next transition, persist it, then enqueue whatever
follow-up messages the transition implies — generalized here to a full
stage/task DAG with synthetic expansion, joins, and restart.
*/
package handlers

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neurobridge-backend/orcaengine/internal/engine/clock"
	"github.com/neurobridge-backend/orcaengine/internal/engine/events"
	"github.com/neurobridge-backend/orcaengine/internal/engine/expr"
	"github.com/neurobridge-backend/orcaengine/internal/engine/message"
	"github.com/neurobridge-backend/orcaengine/internal/engine/queue"
	"github.com/neurobridge-backend/orcaengine/internal/engine/registry"
	"github.com/neurobridge-backend/orcaengine/internal/engine/store"
)

// tracer names every handler-dispatch span; with no HTTP surface in front
// of the engine, dispatch is the only boundary worth tracing.
var tracer = otel.Tracer("github.com/neurobridge-backend/orcaengine/internal/engine/handlers")

// Engine wires the store, queue, registries, event sink, clock, and
// expression evaluator every handler needs. It implements
// worker.Dispatcher.
type Engine struct {
	Store      store.Store
	Queue      queue.Queue
	Tasks      *registry.TaskRegistry
	Stages     *registry.StageRegistry
	Events     events.Sink
	Clock      clock.Clock
	StageGuard *expr.StageEnabledEvaluator
	Freeze     Freezer
}

// New constructs an Engine. Events and Clock default to events.NewRecording
// and clock.System if nil, so callers in tests only need to pass what they
// care about asserting on. Freeze defaults to NoFreeze.
func New(s store.Store, q queue.Queue, tasks *registry.TaskRegistry, stages *registry.StageRegistry, sink events.Sink, clk clock.Clock, guard *expr.StageEnabledEvaluator) *Engine {
	if sink == nil {
		sink = events.NewRecording()
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Engine{Store: s, Queue: q, Tasks: tasks, Stages: stages, Events: sink, Clock: clk, StageGuard: guard, Freeze: NoFreeze{}}
}

// Handle dispatches msg to the handler for its Kind inside a span named
// after the message variant, with execution/stage/task ids as attributes.
func (e *Engine) Handle(ctx context.Context, msg message.Message) error {
	ctx, span := tracer.Start(ctx, string(msg.Kind), trace.WithAttributes(
		attribute.String("execution.type", string(msg.ExecutionType)),
		attribute.String("execution.id", msg.ExecutionID.String()),
	))
	defer span.End()
	if msg.StageID != uuid.Nil {
		span.SetAttributes(attribute.String("stage.id", msg.StageID.String()))
	}
	if msg.TaskID != uuid.Nil {
		span.SetAttributes(attribute.String("task.id", msg.TaskID.String()))
	}
	err := e.dispatch(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (e *Engine) dispatch(ctx context.Context, msg message.Message) error {
	switch msg.Kind {
	case message.KindStartExecution:
		return e.handleStartExecution(ctx, msg)
	case message.KindStartStage:
		return e.handleStartStage(ctx, msg)
	case message.KindStartTask:
		return e.handleStartTask(ctx, msg)
	case message.KindRunTask:
		return e.handleRunTask(ctx, msg)
	case message.KindCompleteTask:
		return e.handleCompleteTask(ctx, msg)
	case message.KindCompleteStage:
		return e.handleCompleteStage(ctx, msg)
	case message.KindCompleteExecution:
		return e.handleCompleteExecution(ctx, msg)
	case message.KindCancelExecution:
		return e.handleCancelExecution(ctx, msg)
	case message.KindCancelStage:
		return e.handleCancelStage(ctx, msg)
	case message.KindPauseStage:
		return e.handlePauseStage(ctx, msg)
	case message.KindPauseExecution:
		return e.handlePauseExecution(ctx, msg)
	case message.KindResumeStage:
		return e.handleResumeStage(ctx, msg)
	case message.KindResumeExecution:
		return e.handleResumeExecution(ctx, msg)
	case message.KindRestartStage:
		return e.handleRestartStage(ctx, msg)
	default:
		return fmt.Errorf("handlers: unrecognized message kind %q", msg.Kind)
	}
}
