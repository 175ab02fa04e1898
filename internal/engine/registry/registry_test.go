package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neurobridge-backend/orcaengine/internal/engine/model"
)

type noopTask struct{}

func (noopTask) Execute(*model.Stage) TaskResult { return TaskResult{Status: TaskResultSucceeded} }

func TestTaskRegistry_RegisterAndGet(t *testing.T) {
	r := NewTaskRegistry()
	require.NoError(t, r.Register("wait.task", noopTask{}))

	got, ok := r.Get("wait.task")
	require.True(t, ok)
	require.Equal(t, TaskResultSucceeded, got.Execute(&model.Stage{}).Status)

	_, ok = r.Get("missing.task")
	require.False(t, ok)
}

func TestTaskRegistry_DuplicateRejected(t *testing.T) {
	r := NewTaskRegistry()
	require.NoError(t, r.Register("wait.task", noopTask{}))
	require.Error(t, r.Register("wait.task", noopTask{}))
}

type noopStageDef struct {
	BaseStageDefinition
	typ string
}

func (d noopStageDef) Type() string { return d.typ }
func (d noopStageDef) TaskGraph(*model.Stage, *Builder) {}

func TestStageRegistry_RegisterAndGet(t *testing.T) {
	r := NewStageRegistry()
	require.NoError(t, r.Register(noopStageDef{typ: "wait"}))

	got, ok := r.Get("wait")
	require.True(t, ok)
	require.Equal(t, "wait", got.Type())
}

func TestCatalog_LoadAndRegister(t *testing.T) {
	yamlDoc := []byte(`
- type: wait
  tasks:
    - name: WaitTask
      implementing_class: builtin.wait
      is_stage_start: true
      is_stage_end: true
`)
	cat, err := LoadCatalogBytes(yamlDoc)
	require.NoError(t, err)

	reg := NewStageRegistry()
	require.NoError(t, cat.RegisterInto(reg))

	def, ok := reg.Get("wait")
	require.True(t, ok)

	b := &Builder{}
	def.TaskGraph(&model.Stage{}, b)
	require.Len(t, b.Tasks, 1)
	require.Equal(t, "builtin.wait", b.Tasks[0].ImplementingClass)
}
