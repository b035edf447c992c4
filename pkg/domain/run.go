package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus defines the lifecycle state of a Run.
type RunStatus string

const (
	RunCreated   RunStatus = "created"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is a sink state.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	}
	return false
}

// Run is one concrete execution instance of a flow.
// It owns its invocation history and the per-task conversations.
//
// A Run is plain data; the runtime serializes concurrent access through
// keyed locks, so Run carries no synchronization of its own.
type Run struct {
	ID        string    `json:"id"`
	Status    RunStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`

	// Invocations is append-only once persisted. Completed entries are
	// never rewritten; retries and refinements append new records.
	Invocations []*Invocation `json:"invocations"`

	// Conversations holds the append-only message history per task ID.
	Conversations map[string]*Conversation `json:"conversations"`
}

// NewRun creates a Run in the CREATED state.
// An empty id is replaced with a fresh UUID.
func NewRun(id string) *Run {
	if id == "" {
		id = uuid.NewString()
	}
	return &Run{
		ID:            id,
		Status:        RunCreated,
		CreatedAt:     time.Now().UTC(),
		Invocations:   []*Invocation{},
		Conversations: make(map[string]*Conversation),
	}
}

// Begin moves the Run into RUNNING. RUNNING is the steady state and may be
// re-entered between invocations.
func (r *Run) Begin() error {
	return r.transition(RunRunning, RunCreated, RunRunning)
}

// Complete moves the Run into the COMPLETED terminal state.
func (r *Run) Complete() error {
	return r.transition(RunCompleted, RunRunning)
}

// Fail moves the Run into the FAILED terminal state.
// Invocations completed before the failure remain queryable.
func (r *Run) Fail() error {
	return r.transition(RunFailed, RunCreated, RunRunning)
}

// Cancel moves the Run into the CANCELLED terminal state.
// Already-persisted invocations are not discarded.
func (r *Run) Cancel() error {
	return r.transition(RunCancelled, RunCreated, RunRunning)
}

func (r *Run) transition(to RunStatus, from ...RunStatus) error {
	for _, s := range from {
		if r.Status == s {
			r.Status = to
			return nil
		}
	}
	if r.Status.Terminal() {
		return fmt.Errorf("run %s is %s: %w", r.ID, r.Status, ErrRunTerminal)
	}
	return fmt.Errorf("run %s: illegal transition %s -> %s", r.ID, r.Status, to)
}

// Conversation returns the message history for a task, creating an empty
// one on first use. There is no cross-task leakage: each task ID maps to
// its own history.
func (r *Run) Conversation(taskID string) *Conversation {
	if r.Conversations == nil {
		r.Conversations = make(map[string]*Conversation)
	}
	conv, ok := r.Conversations[taskID]
	if !ok {
		conv = &Conversation{}
		r.Conversations[taskID] = conv
	}
	return conv
}

// AppendInvocation records an execution attempt. The invocation list is
// append-only; callers must not rewrite completed entries.
func (r *Run) AppendInvocation(inv *Invocation) {
	r.Invocations = append(r.Invocations, inv)
}

// Invocation returns the invocation with the given ID, if present.
func (r *Run) Invocation(id string) (*Invocation, bool) {
	for _, inv := range r.Invocations {
		if inv.ID == id {
			return inv, true
		}
	}
	return nil, false
}

// LastResult returns the most recent successful result for a task,
// or nil if the task has not produced one in this run.
func (r *Run) LastResult(taskID string) *Invocation {
	for i := len(r.Invocations) - 1; i >= 0; i-- {
		inv := r.Invocations[i]
		if inv.TaskID == taskID && inv.Result != nil {
			return inv
		}
	}
	return nil
}
