package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Lifecycle(t *testing.T) {
	run := NewRun("")
	assert.NotEmpty(t, run.ID, "empty id gets a generated UUID")
	assert.Equal(t, RunCreated, run.Status)
	assert.False(t, run.Status.Terminal())

	require.NoError(t, run.Begin())
	assert.Equal(t, RunRunning, run.Status)

	// RUNNING is the steady state and may be re-entered.
	require.NoError(t, run.Begin())

	require.NoError(t, run.Complete())
	assert.Equal(t, RunCompleted, run.Status)
	assert.True(t, run.Status.Terminal())

	// Terminal states are sinks.
	assert.ErrorIs(t, run.Begin(), ErrRunTerminal)
	assert.ErrorIs(t, run.Cancel(), ErrRunTerminal)
}

func TestRun_IllegalTransitions(t *testing.T) {
	run := NewRun("r")
	// COMPLETED requires RUNNING.
	err := run.Complete()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRunTerminal)

	require.NoError(t, run.Fail())
	assert.Equal(t, RunFailed, run.Status)
	assert.ErrorIs(t, run.Complete(), ErrRunTerminal)
}

func TestRun_CancelKeepsHistory(t *testing.T) {
	run := NewRun("r")
	require.NoError(t, run.Begin())

	inv := NewInvocation("task", run.ID, "fp", nil)
	run.AppendInvocation(inv)

	require.NoError(t, run.Cancel())
	assert.Equal(t, RunCancelled, run.Status)
	assert.Len(t, run.Invocations, 1)
}

func TestRun_InvocationLookup(t *testing.T) {
	run := NewRun("r")
	a := NewInvocation("task-a", run.ID, "fp-a", nil)
	b := NewInvocation("task-b", run.ID, "fp-b", nil)
	run.AppendInvocation(a)
	run.AppendInvocation(b)

	got, ok := run.Invocation(b.ID)
	require.True(t, ok)
	assert.Equal(t, "task-b", got.TaskID)

	_, ok = run.Invocation("missing")
	assert.False(t, ok)
}

func TestRun_LastResult(t *testing.T) {
	run := NewRun("r")

	failed := NewInvocation("task", run.ID, "fp-1", nil)
	failed.Error = "boom"
	run.AppendInvocation(failed)
	assert.Nil(t, run.LastResult("task"), "failed attempts have no result")

	first := NewInvocation("task", run.ID, "fp-2", nil)
	first.Result = &Result{Raw: "one", Valid: true}
	run.AppendInvocation(first)

	second := NewInvocation("task", run.ID, "fp-3", nil)
	second.Result = &Result{Raw: "two", Valid: true}
	run.AppendInvocation(second)

	got := run.LastResult("task")
	require.NotNil(t, got)
	assert.Equal(t, "two", got.Result.Raw)

	assert.Nil(t, run.LastResult("other"))
}

func TestRun_ConversationScoping(t *testing.T) {
	run := NewRun("r")

	a := run.Conversation("task-a")
	a.Append(NewMessage(RoleUser, "hello"))

	// Same key returns the same history; different keys never leak.
	assert.Equal(t, 1, run.Conversation("task-a").Len())
	assert.Equal(t, 0, run.Conversation("task-b").Len())
}
