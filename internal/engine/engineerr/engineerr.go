// Package engineerr defines the sentinel errors the engine's handlers and
// store implementations check for with errors.Is: plain stdlib sentinels,
// wrapped with fmt.Errorf("...: %w", ...) at call sites rather than a
// stack-trace-carrying errors library.
package engineerr

import "errors"

var (
	// ErrExecutionNotFound maps to the InvalidExecutionId message.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrStageNotFound maps to the InvalidStageId message.
	ErrStageNotFound = errors.New("stage not found")

	// ErrUnknownTaskType maps to the InvalidTaskType message.
	ErrUnknownTaskType = errors.New("unknown task implementation class")

	// ErrUnknownStageType is raised when a stage references a type with no
	// registered StageDefinition.
	ErrUnknownStageType = errors.New("unknown stage type")

	// ErrCycleDetected is raised by DAG validation when requisites form a cycle.
	ErrCycleDetected = errors.New("cycle detected in stage requisites")

	// ErrInvalidRestart is raised when a restart target cannot be resolved.
	ErrInvalidRestart = errors.New("invalid restart target")

	// ErrExpressionFailed wraps a stageEnabled / template evaluation failure.
	ErrExpressionFailed = errors.New("expression evaluation failed")

	// ErrQueueClosed is returned by Queue operations after Close.
	ErrQueueClosed = errors.New("queue closed")

	// ErrNotFound is a generic not-found sentinel for store lookups that
	// don't need a more specific error.
	ErrNotFound = errors.New("not found")
)
