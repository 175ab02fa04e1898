package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/neurobridge-backend/orcaengine/internal/engine/model"
)

// CatalogEntry describes one stage type's static shape: its own tasks, and
// any fixed STAGE_BEFORE/STAGE_AFTER siblings. This covers the common case
// of a stage type whose task graph and synthetics never depend on the
// stage's runtime context; definitions that do vary by context (parallel
// branching, execution windows) are registered directly as Go
// StageDefinitions instead and never appear here.
type CatalogEntry struct {
	Type  string        `yaml:"type"`
	Tasks []CatalogTask `yaml:"tasks"`
	Before []string     `yaml:"before,omitempty"`
	After  []string     `yaml:"after,omitempty"`
}

// CatalogTask is one YAML-authored task entry.
type CatalogTask struct {
	Name               string `yaml:"name"`
	ImplementingClass  string `yaml:"implementing_class"`
	IsStageStart       bool   `yaml:"is_stage_start,omitempty"`
	IsStageEnd         bool   `yaml:"is_stage_end,omitempty"`
	IsLoopStart        bool   `yaml:"is_loop_start,omitempty"`
	IsLoopEnd          bool   `yaml:"is_loop_end,omitempty"`
	RetryableTimeoutMS int64  `yaml:"retryable_timeout_ms,omitempty"`
	BackoffMS          int64  `yaml:"backoff_ms,omitempty"`
}

// Catalog is a parsed set of CatalogEntry, keyed by Type.
type Catalog struct {
	entries map[string]CatalogEntry
}

// LoadCatalogFile reads and parses a YAML stage-type catalog from path.
func LoadCatalogFile(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: read catalog %s: %w", path, err)
	}
	return LoadCatalogBytes(b)
}

// LoadCatalogBytes parses a YAML stage-type catalog from raw bytes.
func LoadCatalogBytes(b []byte) (*Catalog, error) {
	var entries []CatalogEntry
	if err := yaml.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("registry: parse catalog: %w", err)
	}
	c := &Catalog{entries: make(map[string]CatalogEntry, len(entries))}
	for _, e := range entries {
		if e.Type == "" {
			return nil, fmt.Errorf("registry: catalog entry missing type")
		}
		c.entries[e.Type] = e
	}
	return c, nil
}

// Get returns the catalog entry for a stage type.
func (c *Catalog) Get(stageType string) (CatalogEntry, bool) {
	e, ok := c.entries[stageType]
	return e, ok
}

// RegisterInto builds a catalogStageDefinition for every entry and
// registers it against reg, letting an operator author whole stage
// catalogs in YAML instead of Go for the common linear-task case.
func (c *Catalog) RegisterInto(reg *StageRegistry) error {
	for _, e := range c.entries {
		if err := reg.Register(&catalogStageDefinition{entry: e}); err != nil {
			return err
		}
	}
	return nil
}

type catalogStageDefinition struct {
	BaseStageDefinition
	entry CatalogEntry
}

func (d *catalogStageDefinition) Type() string { return d.entry.Type }

func (d *catalogStageDefinition) TaskGraph(stage *model.Stage, builder *Builder) {
	for _, t := range d.entry.Tasks {
		builder.Append(TaskSpec{
			Name:               t.Name,
			ImplementingClass:  t.ImplementingClass,
			IsStageStart:       t.IsStageStart,
			IsStageEnd:         t.IsStageEnd,
			IsLoopStart:        t.IsLoopStart,
			IsLoopEnd:          t.IsLoopEnd,
			RetryableTimeoutMS: t.RetryableTimeoutMS,
			BackoffMS:          t.BackoffMS,
		})
	}
}

func (d *catalogStageDefinition) BeforeStages(stage *model.Stage) []SyntheticSpec {
	return namesToSynthetics(d.entry.Before)
}

func (d *catalogStageDefinition) AfterStages(stage *model.Stage) []SyntheticSpec {
	return namesToSynthetics(d.entry.After)
}

func namesToSynthetics(types []string) []SyntheticSpec {
	if len(types) == 0 {
		return nil
	}
	out := make([]SyntheticSpec, 0, len(types))
	for i, t := range types {
		out = append(out, SyntheticSpec{RefIDSuffix: fmt.Sprintf("%d", i), Type: t, Name: t})
	}
	return out
}
