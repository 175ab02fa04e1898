/*
Package registry is the dispatch table for the execution engine: it maps a
Task's ImplementingClass to a concrete Task implementation, and a Stage's
Type to a concrete StageDefinition, exactly the one-to-one binding role the
teacher's runtime.Registry plays for job_type -> Handler.

Indirection is intentional here too: RunTask and StartStage never know
about concrete task/stage code, only that the registry will resolve a name
to an implementation or report that none is registered. RunTask turns an
unknown implementing class into an InvalidTaskType event; StartStage
returns engineerr.ErrUnknownStageType for an unknown stage type.
*/
package registry

import (
	"fmt"
	"sync"
)

// TaskRegistry is a concurrency-safe map of ImplementingClass -> Task.
type TaskRegistry struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

// NewTaskRegistry returns an empty TaskRegistry.
func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{tasks: make(map[string]Task)}
}

// Register binds name to t. Registration is expected at process startup;
// a duplicate name is a wiring error and returns an error rather than
// silently overwriting.
func (r *TaskRegistry) Register(name string, t Task) error {
	if t == nil {
		return fmt.Errorf("registry: nil task for %q", name)
	}
	if name == "" {
		return fmt.Errorf("registry: empty implementing class")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[name]; exists {
		return fmt.Errorf("registry: task already registered for implementing class %q", name)
	}
	r.tasks[name] = t
	return nil
}

// Get resolves an ImplementingClass to its Task. Safe for concurrent
// lookup from every worker goroutine.
func (r *TaskRegistry) Get(name string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[name]
	return t, ok
}

// StageRegistry is a concurrency-safe map of stage Type -> StageDefinition.
type StageRegistry struct {
	mu     sync.RWMutex
	stages map[string]StageDefinition
}

// NewStageRegistry returns an empty StageRegistry.
func NewStageRegistry() *StageRegistry {
	return &StageRegistry{stages: make(map[string]StageDefinition)}
}

// Register binds def's Type() to def.
func (r *StageRegistry) Register(def StageDefinition) error {
	if def == nil {
		return fmt.Errorf("registry: nil stage definition")
	}
	t := def.Type()
	if t == "" {
		return fmt.Errorf("registry: stage definition Type() is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.stages[t]; exists {
		return fmt.Errorf("registry: stage definition already registered for type %q", t)
	}
	r.stages[t] = def
	return nil
}

// Get resolves a stage Type to its StageDefinition.
func (r *StageRegistry) Get(stageType string) (StageDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.stages[stageType]
	return d, ok
}
