package domain

import (
	"fmt"

	"github.com/aretw0/skein/pkg/schema"
)

// Task is the immutable definition of one model-backed operation.
// A Task is configuration: it is defined once and outlives all Runs.
// It is never mutated at call time.
type Task struct {
	// ID identifies the task. It participates in the fingerprint.
	ID string `json:"id"`

	// Description is optional human-readable context. Not fingerprinted.
	Description string `json:"description,omitempty"`

	// PromptTemplate is a text/template body rendered with the invocation
	// inputs to produce the gateway prompt.
	PromptTemplate string `json:"prompt_template"`

	// PromptVersion participates in the fingerprint. Bumping it makes all
	// prior cache entries unreachable without touching the cache itself.
	PromptVersion string `json:"prompt_version"`

	// Model identifies the gateway model this task targets.
	// It participates in the fingerprint.
	Model string `json:"model"`

	// InputSchema validates the inputs passed to Execute. Optional.
	InputSchema schema.Schema `json:"-"`

	// OutputSchema is the contract the raw model response must satisfy.
	// Optional; without it any well-formed response is accepted.
	OutputSchema schema.Schema `json:"-"`

	// MaxRetries overrides the engine-wide corrective retry budget when > 0.
	MaxRetries int `json:"max_retries,omitempty"`
}

// Validate checks that the task definition is usable.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task missing ID")
	}
	if t.PromptTemplate == "" {
		return fmt.Errorf("task %q missing prompt template", t.ID)
	}
	return nil
}
