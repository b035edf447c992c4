// Package catalog loads declarative task definitions from YAML files, so
// pipelines can be configured without recompiling.
package catalog

import (
	"fmt"
	"os"

	"github.com/aretw0/skein/pkg/domain"
	"github.com/aretw0/skein/pkg/schema"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// TaskSpec is the on-disk shape of one task definition. Schemas are
// declared as field-name -> type-name maps (e.g. "tags: [string]").
type TaskSpec struct {
	ID             string            `yaml:"id" mapstructure:"id"`
	Description    string            `yaml:"description" mapstructure:"description"`
	PromptTemplate string            `yaml:"prompt" mapstructure:"prompt"`
	PromptVersion  string            `yaml:"prompt_version" mapstructure:"prompt_version"`
	Model          string            `yaml:"model" mapstructure:"model"`
	Input          map[string]string `yaml:"input" mapstructure:"input"`
	Output         map[string]string `yaml:"output" mapstructure:"output"`
	MaxRetries     int               `yaml:"max_retries" mapstructure:"max_retries"`
}

// File is the structure of a tasks.yaml catalog.
type File struct {
	Tasks []TaskSpec `yaml:"tasks"`
}

// Catalog is a set of named tasks loaded from configuration.
type Catalog struct {
	tasks map[string]*domain.Task
	order []string
}

// Load reads a catalog file and materializes its tasks.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Parse materializes a catalog from YAML bytes.
func Parse(data []byte) (*Catalog, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse catalog yaml: %w", err)
	}

	var file File
	if err := mapstructure.Decode(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	cat := &Catalog{tasks: make(map[string]*domain.Task)}
	for i, spec := range file.Tasks {
		task, err := materialize(spec)
		if err != nil {
			return nil, fmt.Errorf("task %d (%q): %w", i, spec.ID, err)
		}
		if _, exists := cat.tasks[task.ID]; exists {
			return nil, fmt.Errorf("duplicate task id %q", task.ID)
		}
		cat.tasks[task.ID] = task
		cat.order = append(cat.order, task.ID)
	}
	return cat, nil
}

// materialize converts a spec into a validated domain.Task.
func materialize(spec TaskSpec) (*domain.Task, error) {
	task := &domain.Task{
		ID:             spec.ID,
		Description:    spec.Description,
		PromptTemplate: spec.PromptTemplate,
		PromptVersion:  spec.PromptVersion,
		Model:          spec.Model,
		MaxRetries:     spec.MaxRetries,
	}
	if spec.PromptVersion == "" {
		task.PromptVersion = "v1"
	}

	if len(spec.Input) > 0 {
		s, err := schema.ParseTypeMap(spec.Input)
		if err != nil {
			return nil, fmt.Errorf("input schema: %w", err)
		}
		task.InputSchema = s
	}
	if len(spec.Output) > 0 {
		s, err := schema.ParseTypeMap(spec.Output)
		if err != nil {
			return nil, fmt.Errorf("output schema: %w", err)
		}
		task.OutputSchema = s
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}
	return task, nil
}

// Task returns a task by ID.
func (c *Catalog) Task(id string) (*domain.Task, bool) {
	task, ok := c.tasks[id]
	return task, ok
}

// IDs returns the task IDs in declaration order.
func (c *Catalog) IDs() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Len returns the number of tasks in the catalog.
func (c *Catalog) Len() int {
	return len(c.tasks)
}
