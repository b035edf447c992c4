package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/skein/pkg/domain"
	"github.com/aretw0/skein/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedGateway replays canned responses and records every call.
type scriptedGateway struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	respond func(call int, prompt string) (string, error)
}

func (g *scriptedGateway) Invoke(ctx context.Context, prompt string, history []domain.Message, schemaHint string) (string, error) {
	g.mu.Lock()
	g.calls++
	call := g.calls
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	return g.respond(call, prompt)
}

func (g *scriptedGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func constGateway(response string) *scriptedGateway {
	return &scriptedGateway{respond: func(int, string) (string, error) {
		return response, nil
	}}
}

func summarizeTask() *domain.Task {
	return &domain.Task{
		ID:             "summarize",
		PromptTemplate: "Summarize in {{.max_words}} words: {{.text}}",
		PromptVersion:  "v1",
		Model:          "gemini-flash",
		OutputSchema: schema.Schema{
			"summary": schema.String(),
		},
	}
}

func summarizeInputs() map[string]any {
	return map[string]any{
		"text":      "Go is a statically typed language.",
		"max_words": 20,
	}
}

func TestEngine_ExecuteThenCacheHit(t *testing.T) {
	gw := constGateway(`{"summary": "Go is statically typed."}`)
	eng := New(gw)
	run := domain.NewRun("")
	ctx := context.Background()

	inv1, err := eng.Execute(ctx, run, summarizeTask(), summarizeInputs())
	require.NoError(t, err)
	assert.False(t, inv1.CacheHit)
	assert.Equal(t, 1, inv1.Attempts)
	require.NotNil(t, inv1.Result)
	assert.True(t, inv1.Result.Valid)
	assert.Equal(t, "Go is statically typed.", inv1.Result.Payload["summary"])
	assert.Equal(t, domain.RunRunning, run.Status)

	// Identical inputs resolve to the same fingerprint and skip the gateway.
	inv2, err := eng.Execute(ctx, run, summarizeTask(), summarizeInputs())
	require.NoError(t, err)
	assert.True(t, inv2.CacheHit)
	assert.Equal(t, inv1.Fingerprint, inv2.Fingerprint)
	assert.Equal(t, 1, gw.callCount())
	assert.True(t, inv1.Result.Equal(inv2.Result))

	assert.Len(t, run.Invocations, 2)
	// Only the miss touched the conversation.
	assert.Equal(t, 2, run.Conversation("summarize").Len())
}

func TestEngine_PromptRendering(t *testing.T) {
	gw := constGateway(`{"summary": "ok"}`)
	eng := New(gw)
	run := domain.NewRun("")

	_, err := eng.Execute(context.Background(), run, summarizeTask(), summarizeInputs())
	require.NoError(t, err)

	require.Len(t, gw.prompts, 1)
	assert.Equal(t, "Summarize in 20 words: Go is a statically typed language.", gw.prompts[0])
}

func TestEngine_MissingTemplateKey(t *testing.T) {
	gw := constGateway(`{"summary": "ok"}`)
	eng := New(gw)
	run := domain.NewRun("")

	task := summarizeTask()
	_, err := eng.Execute(context.Background(), run, task, map[string]any{"text": "no max_words"})
	require.Error(t, err)
	assert.Zero(t, gw.callCount())
}

func TestEngine_CorrectiveRetrySucceeds(t *testing.T) {
	gw := &scriptedGateway{respond: func(call int, prompt string) (string, error) {
		if call == 1 {
			return `{"wrong_field": true}`, nil
		}
		return `{"summary": "fixed"}`, nil
	}}

	var validationFailures int
	eng := New(gw, WithHooks(domain.LifecycleHooks{
		OnValidationFailure: func(context.Context, *domain.InvocationEvent) {
			validationFailures++
		},
	}))
	run := domain.NewRun("")

	inv, err := eng.Execute(context.Background(), run, summarizeTask(), summarizeInputs())
	require.NoError(t, err)
	assert.Equal(t, 2, inv.Attempts)
	assert.Equal(t, "fixed", inv.Result.Payload["summary"])
	assert.Equal(t, 1, validationFailures)

	// The second turn carries the corrective message and the schema hint.
	require.Len(t, gw.prompts, 2)
	assert.Contains(t, gw.prompts[1], "invalid")
	assert.Contains(t, gw.prompts[1], `"summary": string`)
}

func TestEngine_ValidationBudgetExhausted(t *testing.T) {
	gw := constGateway(`not json at all`)
	eng := New(gw, WithMaxRetries(2))
	run := domain.NewRun("")

	inv, err := eng.Execute(context.Background(), run, summarizeTask(), summarizeInputs())
	require.Error(t, err)

	var vErr *domain.ValidationFailedError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "summarize", vErr.TaskID)

	// Initial attempt plus two corrective retries, then stop.
	assert.Equal(t, 3, gw.callCount())
	assert.Equal(t, 3, inv.Attempts)
	assert.True(t, inv.Failed())
	assert.Equal(t, domain.RunFailed, run.Status)

	// The failed invocation is still part of the run history.
	recorded, ok := run.Invocation(inv.ID)
	require.True(t, ok)
	assert.NotEmpty(t, recorded.Error)
}

func TestEngine_TaskRetryBudgetOverride(t *testing.T) {
	gw := constGateway(`not json`)
	eng := New(gw, WithMaxRetries(5))
	run := domain.NewRun("")

	task := summarizeTask()
	task.MaxRetries = 1

	_, err := eng.Execute(context.Background(), run, task, summarizeInputs())
	require.Error(t, err)
	assert.Equal(t, 2, gw.callCount())
}

func TestEngine_ContinueOnError(t *testing.T) {
	gw := &scriptedGateway{respond: func(int, string) (string, error) {
		return "", &domain.GatewayError{Retryable: false, Err: errors.New("model unavailable")}
	}}
	eng := New(gw)
	run := domain.NewRun("")

	_, err := eng.Execute(context.Background(), run, summarizeTask(), summarizeInputs(), ContinueOnError())
	require.Error(t, err)
	assert.Equal(t, domain.RunRunning, run.Status, "run should survive the failed invocation")

	_, err = eng.Execute(context.Background(), run, summarizeTask(), summarizeInputs())
	require.Error(t, err)
	assert.Equal(t, domain.RunFailed, run.Status)
}

func TestEngine_RetryableGatewayError(t *testing.T) {
	gw := &scriptedGateway{respond: func(call int, prompt string) (string, error) {
		if call == 1 {
			return "", &domain.GatewayError{Retryable: true, Err: errors.New("timeout")}
		}
		return `{"summary": "ok"}`, nil
	}}
	eng := New(gw)
	run := domain.NewRun("")

	inv, err := eng.Execute(context.Background(), run, summarizeTask(), summarizeInputs())
	require.NoError(t, err)
	assert.Equal(t, 2, inv.Attempts)

	// The failed transport attempt leaves no trace in the conversation.
	assert.Equal(t, 2, run.Conversation("summarize").Len())
}

func TestEngine_TerminalGatewayErrorFailsRun(t *testing.T) {
	gw := &scriptedGateway{respond: func(int, string) (string, error) {
		return "", &domain.GatewayError{Retryable: false, Err: errors.New("invalid api key")}
	}}
	eng := New(gw)
	run := domain.NewRun("")

	_, err := eng.Execute(context.Background(), run, summarizeTask(), summarizeInputs())
	require.Error(t, err)
	assert.Equal(t, 1, gw.callCount(), "terminal errors are not retried")
	assert.Equal(t, domain.RunFailed, run.Status)
}

func TestEngine_Refine(t *testing.T) {
	gw := &scriptedGateway{respond: func(call int, prompt string) (string, error) {
		if call == 1 {
			return `{"summary": "a long-winded summary"}`, nil
		}
		return `{"summary": "terse"}`, nil
	}}
	eng := New(gw)
	run := domain.NewRun("")
	ctx := context.Background()

	inv1, err := eng.Execute(ctx, run, summarizeTask(), summarizeInputs())
	require.NoError(t, err)

	inv2, err := eng.Refine(ctx, run, summarizeTask(), inv1.ID, "shorten it")
	require.NoError(t, err)
	assert.NotEqual(t, inv1.Fingerprint, inv2.Fingerprint)
	assert.Equal(t, inv1.ID, inv2.ParentID)
	assert.Equal(t, "terse", inv2.Result.Payload["summary"])
	assert.Equal(t, 2, gw.callCount())

	// The refinement turn carries the prior output and the feedback.
	assert.Contains(t, gw.prompts[1], "a long-winded summary")
	assert.Contains(t, gw.prompts[1], "shorten it")

	// Identical feedback on the same parent is a repeat: cache hit.
	inv3, err := eng.Refine(ctx, run, summarizeTask(), inv1.ID, "shorten it")
	require.NoError(t, err)
	assert.True(t, inv3.CacheHit)
	assert.Equal(t, inv2.Fingerprint, inv3.Fingerprint)
	assert.Equal(t, 2, gw.callCount())
}

func TestEngine_RefineTaskMismatch(t *testing.T) {
	gw := constGateway(`{"summary": "x"}`)
	eng := New(gw)
	run := domain.NewRun("")
	ctx := context.Background()

	inv, err := eng.Execute(ctx, run, summarizeTask(), summarizeInputs())
	require.NoError(t, err)

	other := summarizeTask()
	other.ID = "translate"

	// Refining through a different task would merge the exchange into the
	// wrong conversation; reject it before touching the gateway.
	_, err = eng.Refine(ctx, run, other, inv.ID, "make it French")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `belongs to task "summarize"`)
	assert.Equal(t, 1, gw.callCount())
	assert.NotContains(t, run.Conversations, "translate")
}

func TestEngine_RefineUnknownParent(t *testing.T) {
	eng := New(constGateway(`{}`))
	run := domain.NewRun("")

	_, err := eng.Refine(context.Background(), run, summarizeTask(), "missing", "feedback")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestEngine_SingleFlightPerFingerprint(t *testing.T) {
	gw := &scriptedGateway{respond: func(int, string) (string, error) {
		time.Sleep(50 * time.Millisecond)
		return `{"summary": "shared"}`, nil
	}}
	eng := New(gw)
	run := domain.NewRun("")
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]*domain.Invocation, 10)
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = eng.Execute(ctx, run, summarizeTask(), summarizeInputs())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, gw.callCount(), "concurrent callers for one fingerprint share a single gateway call")
	hits := 0
	for i := range results {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i].Result)
		assert.Equal(t, "shared", results[i].Result.Payload["summary"])
		if results[i].CacheHit {
			hits++
		}
	}
	assert.Equal(t, 9, hits)
}

// Concurrent executes against the same (task, run) with distinct inputs
// must leave the conversation as whole user/assistant pairs in append
// order, never interleaved across exchanges.
func TestEngine_ConversationPairsStayWholeUnderConcurrency(t *testing.T) {
	gw := &scriptedGateway{respond: func(call int, prompt string) (string, error) {
		// A small delay widens the window for interleaving if the
		// conversation lock ever stops covering the whole exchange.
		time.Sleep(time.Millisecond)
		return fmt.Sprintf(`{"summary": %q}`, prompt), nil
	}}
	eng := New(gw)
	run := domain.NewRun("")
	ctx := context.Background()

	const writers = 16
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inputs := map[string]any{
				"text":      fmt.Sprintf("document %d", i),
				"max_words": 5,
			}
			_, errs[i] = eng.Execute(ctx, run, summarizeTask(), inputs)
		}(i)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
	}
	assert.Equal(t, writers, gw.callCount(), "distinct inputs never share a fingerprint")

	history := run.Conversation("summarize").History()
	require.Len(t, history, 2*writers)
	for i := 0; i < len(history); i += 2 {
		user, assistant := history[i], history[i+1]
		require.Equal(t, domain.RoleUser, user.Role)
		require.Equal(t, domain.RoleAssistant, assistant.Role)
		// The gateway echoes the prompt, so each reply must sit directly
		// behind the user turn that produced it.
		assert.Contains(t, assistant.Content, user.Content)
	}
}

func TestEngine_Cancellation(t *testing.T) {
	gw := &scriptedGateway{respond: func(int, string) (string, error) {
		return "", fmt.Errorf("gateway: %w", context.Canceled)
	}}
	eng := New(gw)
	run := domain.NewRun("")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Execute(ctx, run, summarizeTask(), summarizeInputs())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.RunCancelled, run.Status)
}

func TestEngine_TerminalRunRejected(t *testing.T) {
	eng := New(constGateway(`{"summary": "x"}`))
	run := domain.NewRun("")
	require.NoError(t, run.Begin())
	require.NoError(t, run.Cancel())

	_, err := eng.Execute(context.Background(), run, summarizeTask(), summarizeInputs())
	assert.ErrorIs(t, err, domain.ErrRunTerminal)
}

func TestEngine_InputSchemaRejectsBadInputs(t *testing.T) {
	gw := constGateway(`{"summary": "x"}`)
	eng := New(gw)
	run := domain.NewRun("")

	task := summarizeTask()
	task.InputSchema = schema.Schema{
		"text":      schema.String(),
		"max_words": schema.Int(),
	}

	_, err := eng.Execute(context.Background(), run, task, map[string]any{
		"text":      42,
		"max_words": 20,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid inputs")
	assert.Zero(t, gw.callCount())
}

func TestEngine_UnstructuredTask(t *testing.T) {
	gw := constGateway("Plain prose, no JSON here.")
	eng := New(gw)
	run := domain.NewRun("")

	task := summarizeTask()
	task.OutputSchema = nil

	inv, err := eng.Execute(context.Background(), run, task, summarizeInputs())
	require.NoError(t, err)
	assert.True(t, inv.Result.Valid)
	assert.Equal(t, "Plain prose, no JSON here.", inv.Result.Raw)
	assert.Equal(t, 1, inv.Attempts)
}

func TestEngine_FencedJSONAccepted(t *testing.T) {
	gw := constGateway("Here you go:\n```json\n{\"summary\": \"fenced\"}\n```\n")
	eng := New(gw)
	run := domain.NewRun("")

	inv, err := eng.Execute(context.Background(), run, summarizeTask(), summarizeInputs())
	require.NoError(t, err)
	assert.Equal(t, "fenced", inv.Result.Payload["summary"])
}
