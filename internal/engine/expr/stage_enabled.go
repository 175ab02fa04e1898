// Package expr evaluates the two small expression languages stages carry in
// their authored context: a CEL boolean guard for stageEnabled, and a
// minimal "${...}" template substitution for output interpolation. Grounded
// on google/cel-go, present in the pack's dependency graph (88lin-divinesense's
// go.mod) though unused by any of its own handwritten packages — here it
// gets an actual caller.
package expr

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/neurobridge-backend/orcaengine/internal/engine/engineerr"
)

// StageEnabledEvaluator compiles and evaluates the stageEnabled CEL
// expression stored on a stage's authored context. A stage with no
// expression is always enabled.
type StageEnabledEvaluator struct {
	env *cel.Env
}

// NewStageEnabledEvaluator builds a CEL environment with one variable,
// "context", bound to the execution's merged context map — the only input
// stageEnabled expressions may reference.
func NewStageEnabledEvaluator() (*StageEnabledEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("context", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("build cel env: %w", err)
	}
	return &StageEnabledEvaluator{env: env}, nil
}

// Eval compiles expression against execCtx and returns its boolean result.
// An empty expression is treated as "true" (stage enabled unconditionally).
func (e *StageEnabledEvaluator) Eval(expression string, execCtx map[string]any) (bool, error) {
	if expression == "" {
		return true, nil
	}
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return false, fmt.Errorf("%w: compile %q: %v", engineerr.ErrExpressionFailed, expression, issues.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return false, fmt.Errorf("%w: plan %q: %v", engineerr.ErrExpressionFailed, expression, err)
	}
	out, _, err := prg.Eval(map[string]any{"context": execCtx})
	if err != nil {
		return false, fmt.Errorf("%w: eval %q: %v", engineerr.ErrExpressionFailed, expression, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: %q did not evaluate to a bool", engineerr.ErrExpressionFailed, expression)
	}
	return b, nil
}
