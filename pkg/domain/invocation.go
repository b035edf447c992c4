package domain

import (
	"time"

	"github.com/google/uuid"
)

// Invocation is one execution attempt of a Task within a Run.
// It is immutable once completed: retries and refinements create new
// invocations instead of rewriting existing ones.
type Invocation struct {
	ID     string `json:"id"`
	TaskID string `json:"task_id"`
	RunID  string `json:"run_id"`

	// Fingerprint is the deterministic cache key this attempt resolved to.
	Fingerprint string `json:"fingerprint"`

	// Inputs is the input snapshot taken at call time.
	Inputs map[string]any `json:"inputs,omitempty"`

	// Result is set on success; Error on failure. Exactly one is set once
	// the invocation completes.
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`

	// CacheHit marks results served from the cache without a gateway call.
	CacheHit bool `json:"cache_hit,omitempty"`

	// ParentID links refinements (and corrective retries) to the
	// invocation they build on.
	ParentID string `json:"parent_id,omitempty"`

	// Attempts counts gateway calls made for this invocation, including
	// corrective validation retries.
	Attempts int `json:"attempts"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
}

// NewInvocation starts a new attempt record for a task in a run.
func NewInvocation(taskID, runID, fingerprint string, inputs map[string]any) *Invocation {
	return &Invocation{
		ID:          uuid.NewString(),
		TaskID:      taskID,
		RunID:       runID,
		Fingerprint: fingerprint,
		Inputs:      inputs,
		StartedAt:   time.Now().UTC(),
	}
}

// Completed reports whether the attempt has finished (success or failure).
func (inv *Invocation) Completed() bool {
	return !inv.CompletedAt.IsZero()
}

// Failed reports whether the attempt completed with an error.
func (inv *Invocation) Failed() bool {
	return inv.Completed() && inv.Error != ""
}
