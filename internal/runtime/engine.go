// Package runtime implements the orchestration core: fingerprinted cache
// lookups, validator-wrapped gateway invocations, conversation ordering,
// and refinement chaining. It owns no persistence; the facade in the root
// package wires a run store around it.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/aretw0/skein/internal/fingerprint"
	"github.com/aretw0/skein/internal/locking"
	"github.com/aretw0/skein/internal/logging"
	"github.com/aretw0/skein/pkg/adapters/memory"
	"github.com/aretw0/skein/pkg/domain"
	"github.com/aretw0/skein/pkg/ports"
	"github.com/aretw0/skein/pkg/schema"
)

// DefaultMaxRetries bounds corrective validation retries per invocation
// when the task does not declare its own budget.
const DefaultMaxRetries = 3

// Engine executes tasks against a gateway with content-addressed caching.
// One Engine serves many concurrent runs; all shared state lives behind
// the cache port and the keyed lock manager.
type Engine struct {
	gateway    ports.Gateway
	cache      ports.ResultCache
	locks      *locking.Manager
	hooks      domain.LifecycleHooks
	logger     *slog.Logger
	maxRetries int
}

// Option configures the Engine.
type Option func(*Engine)

// WithCache sets the result cache. Defaults to an in-memory cache.
func WithCache(cache ports.ResultCache) Option {
	return func(e *Engine) { e.cache = cache }
}

// WithLockManager sets the keyed lock manager, e.g. one configured with a
// distributed locker for multi-process deployments.
func WithLockManager(m *locking.Manager) Option {
	return func(e *Engine) { e.locks = m }
}

// WithHooks installs lifecycle observers. Hooks run synchronously at
// their call sites.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) { e.hooks = hooks }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMaxRetries sets the engine-wide corrective retry budget.
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

// New creates an Engine around a gateway.
func New(gateway ports.Gateway, opts ...Option) *Engine {
	e := &Engine{
		gateway:    gateway,
		cache:      memory.NewCache(),
		locks:      locking.NewManager(),
		logger:     logging.NewNop(),
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cache exposes the configured result cache, e.g. for explicit clears.
func (e *Engine) Cache() ports.ResultCache { return e.cache }

// execConfig holds per-call execution options.
type execConfig struct {
	continueOnError bool
}

// ExecOption adjusts a single Execute or Refine call.
type ExecOption func(*execConfig)

// ContinueOnError keeps the run in RUNNING after a failed invocation
// instead of propagating the failure to the run status. The failed
// invocation is still recorded.
func ContinueOnError() ExecOption {
	return func(c *execConfig) { c.continueOnError = true }
}

// Execute runs one task invocation within a run.
//
// The fingerprint of (task identity, prompt version, model, inputs) is
// looked up in the cache first; a hit is returned without a gateway call.
// A miss renders the prompt template, invokes the gateway with the task's
// conversation history, validates the response against the output schema
// with bounded corrective retries, and inserts the result into the cache.
func (e *Engine) Execute(ctx context.Context, run *domain.Run, task *domain.Task, inputs map[string]any, opts ...ExecOption) (*domain.Invocation, error) {
	cfg := applyExecOptions(opts)

	if err := e.begin(ctx, run, task, inputs); err != nil {
		return nil, err
	}

	fp := fingerprint.New(task.ID, task.PromptVersion, task.Model, inputs)
	prompt, err := renderPrompt(task, inputs)
	if err != nil {
		return nil, fmt.Errorf("task %q: %w", task.ID, err)
	}

	return e.invoke(ctx, run, task, invocationSpec{
		fingerprint: fp,
		inputs:      inputs,
		prompt:      prompt,
	}, cfg)
}

// Refine re-executes a task informed by feedback on a prior invocation.
//
// The refinement fingerprint chains the parent fingerprint, the parent
// invocation ID and the feedback text, so it is distinct from the original
// yet repeatable: re-refining with identical feedback is a cache hit. The
// new invocation links to the parent via ParentID.
func (e *Engine) Refine(ctx context.Context, run *domain.Run, task *domain.Task, parentInvocationID, feedback string, opts ...ExecOption) (*domain.Invocation, error) {
	cfg := applyExecOptions(opts)

	parent, ok := run.Invocation(parentInvocationID)
	if !ok {
		return nil, fmt.Errorf("run %s: parent invocation %q not found", run.ID, parentInvocationID)
	}
	if parent.TaskID != task.ID {
		return nil, fmt.Errorf("run %s: invocation %q belongs to task %q, not %q", run.ID, parentInvocationID, parent.TaskID, task.ID)
	}
	if parent.Result == nil {
		return nil, fmt.Errorf("run %s: parent invocation %q has no result to refine", run.ID, parentInvocationID)
	}
	if strings.TrimSpace(feedback) == "" {
		return nil, fmt.Errorf("run %s: empty refinement feedback", run.ID)
	}

	if err := e.begin(ctx, run, task, nil); err != nil {
		return nil, err
	}

	fp := fingerprint.Chain(parent.Fingerprint, parent.ID, feedback)
	prompt := refinementPrompt(parent.Result, feedback)

	return e.invoke(ctx, run, task, invocationSpec{
		fingerprint: fp,
		inputs:      parent.Inputs,
		prompt:      prompt,
		parentID:    parent.ID,
	}, cfg)
}

// CompleteRun moves the run into the COMPLETED terminal state.
// Run is plain data, so the transition takes the per-run lock like every
// other status change.
func (e *Engine) CompleteRun(ctx context.Context, run *domain.Run) error {
	return e.locks.WithLock(ctx, "run:"+run.ID, func(context.Context) error {
		return run.Complete()
	})
}

// CancelRun moves the run into the CANCELLED terminal state. Safe to call
// while invocations are in flight: the transition is serialized against
// them through the per-run lock, and recorded invocations are kept.
func (e *Engine) CancelRun(ctx context.Context, run *domain.Run) error {
	return e.locks.WithLock(ctx, "run:"+run.ID, func(context.Context) error {
		return run.Cancel()
	})
}

// begin validates the call and moves the run into RUNNING. Run is plain
// data, so every status transition goes through the per-run lock.
func (e *Engine) begin(ctx context.Context, run *domain.Run, task *domain.Task, inputs map[string]any) error {
	if err := task.Validate(); err != nil {
		return err
	}
	if task.InputSchema != nil && inputs != nil {
		if err := schema.Validate(task.InputSchema, inputs); err != nil {
			return fmt.Errorf("task %q: invalid inputs: %w", task.ID, err)
		}
	}
	return e.locks.WithLock(ctx, "run:"+run.ID, func(context.Context) error {
		if run.Status.Terminal() {
			return fmt.Errorf("run %s is %s: %w", run.ID, run.Status, domain.ErrRunTerminal)
		}
		return run.Begin()
	})
}

// invocationSpec bundles the resolved parameters of one invocation.
type invocationSpec struct {
	fingerprint string
	inputs      map[string]any
	prompt      string
	parentID    string
}

// invoke serves a cache hit or computes a result under the per-fingerprint
// lease. Concurrent callers for the same fingerprint share one gateway
// call: the first holder computes and inserts, later holders hit the cache.
func (e *Engine) invoke(ctx context.Context, run *domain.Run, task *domain.Task, spec invocationSpec, cfg execConfig) (*domain.Invocation, error) {
	var inv *domain.Invocation
	var invErr error

	err := e.locks.WithLock(ctx, "fp:"+spec.fingerprint, func(ctx context.Context) error {
		if entry, err := e.cache.Get(ctx, spec.fingerprint); err == nil {
			inv = e.recordHit(ctx, run, task, spec, entry)
			return nil
		} else if !errors.Is(err, domain.ErrCacheEntryNotFound) {
			return fmt.Errorf("cache lookup for %q: %w", spec.fingerprint, err)
		}
		inv, invErr = e.compute(ctx, run, task, spec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if invErr != nil {
		_ = e.locks.WithLock(ctx, "run:"+run.ID, func(context.Context) error {
			var transErr error
			if errors.Is(invErr, context.Canceled) {
				// Cooperative cancellation: already-recorded invocations stay.
				transErr = run.Cancel()
			} else if !cfg.continueOnError {
				transErr = run.Fail()
			}
			if transErr != nil {
				e.logger.Warn("Could not settle run status", "run_id", run.ID, "err", transErr)
			}
			return nil
		})
		return inv, invErr
	}
	return inv, nil
}

// recordHit materializes a cache hit as a completed invocation.
func (e *Engine) recordHit(ctx context.Context, run *domain.Run, task *domain.Task, spec invocationSpec, entry *domain.CacheEntry) *domain.Invocation {
	inv := domain.NewInvocation(task.ID, run.ID, spec.fingerprint, spec.inputs)
	inv.CacheHit = true
	inv.ParentID = spec.parentID
	inv.Result = entry.Result.Clone()
	inv.CompletedAt = time.Now().UTC()

	e.appendInvocation(ctx, run, inv)

	event := &domain.InvocationEvent{
		TaskID:      task.ID,
		RunID:       run.ID,
		Fingerprint: spec.fingerprint,
		CacheHit:    true,
	}
	if e.hooks.OnCacheHit != nil {
		e.hooks.OnCacheHit(ctx, event)
	}
	e.logger.Debug("Cache hit", "task_id", task.ID, "run_id", run.ID, "fingerprint", spec.fingerprint)
	return inv
}

// compute performs the gateway call with validation retries and inserts
// the result into the cache. The returned invocation is always recorded
// on the run, failed or not.
func (e *Engine) compute(ctx context.Context, run *domain.Run, task *domain.Task, spec invocationSpec) (*domain.Invocation, error) {
	inv := domain.NewInvocation(task.ID, run.ID, spec.fingerprint, spec.inputs)
	inv.ParentID = spec.parentID

	startEvent := &domain.InvocationEvent{
		TaskID:      task.ID,
		RunID:       run.ID,
		Fingerprint: spec.fingerprint,
	}
	if e.hooks.OnInvocationStart != nil {
		e.hooks.OnInvocationStart(ctx, startEvent)
	}

	start := time.Now()
	result, err := e.converse(ctx, run, task, inv, spec.prompt)
	latency := time.Since(start)

	inv.CompletedAt = time.Now().UTC()
	if err != nil {
		inv.Error = err.Error()
	} else {
		inv.Result = result
		e.insert(ctx, spec.fingerprint, result)
	}
	e.appendInvocation(ctx, run, inv)

	endEvent := &domain.InvocationEvent{
		TaskID:             task.ID,
		RunID:              run.ID,
		Fingerprint:        spec.fingerprint,
		Latency:            latency,
		ValidationAttempts: inv.Attempts,
		Err:                err,
	}
	if e.hooks.OnInvocationEnd != nil {
		e.hooks.OnInvocationEnd(ctx, endEvent)
	}

	if err != nil {
		e.logger.Error("Invocation failed",
			"task_id", task.ID,
			"run_id", run.ID,
			"fingerprint", spec.fingerprint,
			"attempts", inv.Attempts,
			"err", err,
		)
		return inv, err
	}
	e.logger.Info("Invocation completed",
		"task_id", task.ID,
		"run_id", run.ID,
		"fingerprint", spec.fingerprint,
		"attempts", inv.Attempts,
		"latency", latency,
	)
	return inv, nil
}

// converse drives the validation loop over the task's conversation. Each
// pass sends one user turn, records the assistant reply, and on a schema
// mismatch appends a corrective turn for the next pass. The whole exchange
// holds the (task, run) conversation lock, which preserves total message
// ordering per key.
func (e *Engine) converse(ctx context.Context, run *domain.Run, task *domain.Task, inv *domain.Invocation, prompt string) (*domain.Result, error) {
	budget := task.MaxRetries
	if budget <= 0 {
		budget = e.maxRetries
	}
	hint := ""
	if task.OutputSchema != nil {
		hint = schema.Hint(task.OutputSchema)
	}

	var result *domain.Result
	var lastErr error

	// Conversation creation mutates the run's map, so it happens under the
	// run lock; the exchange itself only needs the (task, run) key.
	var conv *domain.Conversation
	if lockErr := e.locks.WithLock(ctx, "run:"+run.ID, func(context.Context) error {
		conv = run.Conversation(task.ID)
		return nil
	}); lockErr != nil {
		return nil, lockErr
	}

	lockKey := "conv:" + task.ID + ":" + run.ID
	err := e.locks.WithLock(ctx, lockKey, func(ctx context.Context) error {
		turn := prompt

		// One initial attempt plus up to budget corrective retries.
		for attempt := 0; attempt <= budget; attempt++ {
			if err := ctx.Err(); err != nil {
				lastErr = err
				return nil
			}

			inv.Attempts++
			raw, err := e.gateway.Invoke(ctx, turn, conv.History(), hint)
			if err != nil {
				if domain.IsRetryable(err) && attempt < budget {
					e.logger.Warn("Retryable gateway failure",
						"task_id", task.ID,
						"run_id", run.ID,
						"attempt", inv.Attempts,
						"err", err,
					)
					continue
				}
				lastErr = err
				return nil
			}
			// Nothing is appended on transport failure, so a retried turn
			// does not duplicate itself in the history.
			conv.Append(domain.NewMessage(domain.RoleUser, turn))
			conv.Append(domain.NewMessage(domain.RoleAssistant, raw))

			res, vErr := parseResponse(task, raw)
			if vErr == nil {
				result = res
				return nil
			}
			lastErr = vErr

			if e.hooks.OnValidationFailure != nil {
				e.hooks.OnValidationFailure(ctx, &domain.InvocationEvent{
					TaskID:             task.ID,
					RunID:              run.ID,
					Fingerprint:        inv.Fingerprint,
					ValidationAttempts: inv.Attempts,
					Err:                vErr,
				})
			}
			e.logger.Warn("Response failed validation",
				"task_id", task.ID,
				"run_id", run.ID,
				"attempt", inv.Attempts,
				"err", vErr,
			)
			turn = correctiveMessage(vErr, hint)
		}

		lastErr = &domain.ValidationFailedError{
			TaskID:   task.ID,
			Attempts: inv.Attempts,
			Last:     lastErr,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return result, nil
}

// insert writes a computed result into the cache. Drift and transient
// cache failures are logged, never fatal: the caller already holds a
// valid result.
func (e *Engine) insert(ctx context.Context, fp string, result *domain.Result) {
	err := e.cache.Put(ctx, domain.NewCacheEntry(fp, result))
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrCacheDrift):
		e.logger.Warn("Cache drift detected, keeping original entry", "fingerprint", fp, "err", err)
	default:
		e.logger.Warn("Cache write failed", "fingerprint", fp, "err", err)
	}
}

// appendInvocation serializes appends to the run's invocation list.
func (e *Engine) appendInvocation(ctx context.Context, run *domain.Run, inv *domain.Invocation) {
	_ = e.locks.WithLock(ctx, "run:"+run.ID, func(context.Context) error {
		run.AppendInvocation(inv)
		return nil
	})
}

func applyExecOptions(opts []ExecOption) execConfig {
	var cfg execConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// renderPrompt executes the task's prompt template over the inputs.
// Unknown template keys are an error: a silently empty slot would still
// fingerprint on the full input map and poison the cache.
func renderPrompt(task *domain.Task, inputs map[string]any) (string, error) {
	tmpl, err := template.New(task.ID).Option("missingkey=error").Parse(task.PromptTemplate)
	if err != nil {
		return "", fmt.Errorf("parse prompt template: %w", err)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, inputs); err != nil {
		return "", fmt.Errorf("render prompt template: %w", err)
	}
	return sb.String(), nil
}

// correctiveMessage describes a schema mismatch back to the model.
func correctiveMessage(vErr error, hint string) string {
	var sb strings.Builder
	sb.WriteString("Your previous response was invalid: ")
	sb.WriteString(vErr.Error())
	sb.WriteString("\nRespond again with only a JSON object matching ")
	sb.WriteString(hint)
	sb.WriteString(".")
	return sb.String()
}

// refinementPrompt frames the feedback against the prior raw output.
func refinementPrompt(prior *domain.Result, feedback string) string {
	var sb strings.Builder
	sb.WriteString("Revise your previous response:\n\n")
	sb.WriteString(prior.Raw)
	sb.WriteString("\n\nFeedback: ")
	sb.WriteString(feedback)
	return sb.String()
}

// parseResponse converts a raw gateway response into a Result, enforcing
// the task's output schema when one is declared.
func parseResponse(task *domain.Task, raw string) (*domain.Result, error) {
	payload, parseErr := decodePayload(raw)

	if task.OutputSchema == nil {
		// Unstructured task: any response is accepted, the payload is
		// best-effort.
		return &domain.Result{Payload: payload, Raw: raw, Valid: true}, nil
	}

	if parseErr != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", parseErr)
	}
	if err := schema.Validate(task.OutputSchema, payload); err != nil {
		return nil, err
	}
	return &domain.Result{Payload: payload, Raw: raw, Valid: true}, nil
}

// decodePayload extracts a JSON object from the raw response, tolerating
// surrounding prose and markdown fences the way models tend to wrap JSON.
func decodePayload(raw string) (map[string]any, error) {
	candidate := strings.TrimSpace(raw)
	if start := strings.Index(candidate, "{"); start >= 0 {
		if end := strings.LastIndex(candidate, "}"); end > start {
			candidate = candidate[start : end+1]
		}
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
		return nil, err
	}
	return payload, nil
}
