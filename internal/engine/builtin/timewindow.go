/*
Package builtin holds the one concrete stage/task implementation the
engine ships itself rather than leaving to a stage-type catalog: a
dedicated synthetic stage type for wall-clock execution-window waits, so
the dispatch loop is never itself responsible for scheduling them.

Every other stage/task implementation (deploy, bake, webhook, ...) is an
external concern registered by the application embedding this engine and
has no home here.
*/
package builtin

import (
	"fmt"
	"time"

	"github.com/neurobridge-backend/orcaengine/internal/engine/clock"
	"github.com/neurobridge-backend/orcaengine/internal/engine/model"
	"github.com/neurobridge-backend/orcaengine/internal/engine/registry"
)

// TimeWindowStageType is the registry.StageDefinition.Type() and
// registry.Task ImplementingClass this package registers, matching the
// constant start_stage.go inserts as a synthetic type.
const TimeWindowStageType = "restrictExecutionDuringTimeWindow"

// Window is one permitted hour-of-day range, inclusive of Start, exclusive
// of End, evaluated in the engine process's local time zone. A window that
// wraps midnight (StartHour > EndHour) is permitted e.g.
// {StartHour: 22, EndHour: 6}.
type Window struct {
	StartHour int
	EndHour   int
}

func (w Window) permits(hour int) bool {
	if w.StartHour == w.EndHour {
		return true // degenerate window means "always" rather than "never"
	}
	if w.StartHour < w.EndHour {
		return hour >= w.StartHour && hour < w.EndHour
	}
	return hour >= w.StartHour || hour < w.EndHour
}

// nextPermittedHour returns the smallest non-negative number of hours from
// now until w next permits execution; 0 if w already permits now.
func (w Window) nextPermittedHour(now time.Time) int {
	for delta := 0; delta < 24; delta++ {
		if w.permits(now.Add(time.Duration(delta) * time.Hour).Hour()) {
			return delta
		}
	}
	return 0
}

// StageDefinition registers the single-task graph for the synthetic
// restrictExecutionDuringTimeWindow stage: one task, both stage-start and
// stage-end, implementing class TimeWindowStageType.
type StageDefinition struct {
	registry.BaseStageDefinition
}

func (StageDefinition) Type() string { return TimeWindowStageType }

func (StageDefinition) TaskGraph(stage *model.Stage, builder *registry.Builder) {
	builder.Append(registry.TaskSpec{
		Name:              "restrictExecutionDuringTimeWindow",
		ImplementingClass: TimeWindowStageType,
		IsStageStart:      true,
		IsStageEnd:        true,
	})
}

// Task polls the clock against its configured Windows (the stage itself is
// not read) and, outside all of them, reports RUNNING so it rides the
// engine's ordinary RetryableTask re-enqueue path, re-polled at the fixed
// BackoffPeriodMillis interval, rather than blocking a worker goroutine on
// a long wait.
type Task struct {
	Clock   clock.Clock
	Windows []Window
}

// Execute reports SUCCEEDED as soon as any configured window permits the
// current hour; with no windows configured the stage always succeeds
// immediately (an authored restrictExecutionDuringTimeWindow=true with no
// window detail is a no-op restriction).
func (t Task) Execute(stage *model.Stage) registry.TaskResult {
	clk := t.Clock
	if clk == nil {
		clk = clock.System{}
	}
	now := clk.Now()
	if len(t.Windows) == 0 {
		return registry.TaskResult{Status: registry.TaskResultSucceeded}
	}
	best := -1
	for _, w := range t.Windows {
		if w.permits(now.Hour()) {
			return registry.TaskResult{Status: registry.TaskResultSucceeded}
		}
		if d := w.nextPermittedHour(now); best < 0 || d < best {
			best = d
		}
	}
	return registry.TaskResult{
		Status: registry.TaskResultRunning,
		Outputs: map[string]any{
			"waitReason": fmt.Sprintf("outside permitted execution window, retrying in ~%dh", best),
		},
	}
}

// BackoffPeriodMillis reports a fixed re-poll interval; the task recomputes
// its remaining wait on every invocation rather than sleeping the full gap
// in one step, so a PauseStage/CancelExecution mid-wait still takes effect
// promptly.
func (t Task) BackoffPeriodMillis() int64 { return 5 * 60 * 1000 }

// TimeoutMillis is 0 (no timeout): an execution window wait is expected to
// run indefinitely until the window opens.
func (t Task) TimeoutMillis() int64 { return 0 }
