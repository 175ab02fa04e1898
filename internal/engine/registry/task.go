package registry

import "github.com/neurobridge-backend/orcaengine/internal/engine/model"

// TaskStatus is the result a Task.Execute reports back to the RunTask
// handler.
type TaskStatus string

const (
	TaskResultSucceeded TaskStatus = "SUCCEEDED"
	TaskResultRunning   TaskStatus = "RUNNING"
	TaskResultTerminal  TaskStatus = "TERMINAL"
	TaskResultRedirect  TaskStatus = "REDIRECT"
)

// TaskResult is the return value of Task.Execute: status, outputs, and
// stageOutputs.
type TaskResult struct {
	Status       TaskStatus
	Outputs      map[string]any
	StageOutputs map[string]any
	Err          error
}

// Task is the minimal contract every implementing class registered under
// Task.ImplementingClass satisfies.
type Task interface {
	Execute(stage *model.Stage) TaskResult
}

// RetryableTask extends Task with the backoff and timeout RunTask honors
// when a task reports RUNNING.
type RetryableTask interface {
	Task
	BackoffPeriodMillis() int64
	TimeoutMillis() int64
}
