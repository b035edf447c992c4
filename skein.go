package skein

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/skein/internal/locking"
	"github.com/aretw0/skein/internal/logging"
	"github.com/aretw0/skein/internal/runtime"
	"github.com/aretw0/skein/pkg/adapters/memory"
	"github.com/aretw0/skein/pkg/domain"
	"github.com/aretw0/skein/pkg/ports"
	"github.com/aretw0/skein/pkg/record"
)

// Version is the library version, reported by the CLI and the HTTP server.
const Version = "0.1.0"

// Engine is the top-level orchestrator: it sequences task executions,
// owns the run state machine, and wires the cache, run store and lock
// manager together.
type Engine struct {
	rt     *runtime.Engine
	store  ports.RunStore
	logger *slog.Logger
}

type config struct {
	cache      ports.ResultCache
	store      ports.RunStore
	locker     ports.DistributedLocker
	lockTTL    time.Duration
	hooks      domain.LifecycleHooks
	logger     *slog.Logger
	maxRetries int
}

// Option configures the Engine.
type Option func(*config)

// WithCache sets the result cache backend. Defaults to an in-memory cache
// retained for the process lifetime.
func WithCache(cache ports.ResultCache) Option {
	return func(c *config) { c.cache = cache }
}

// WithRunStore sets the run persistence backend. Defaults to an in-memory
// store; use the file or redis adapter for durability across restarts.
func WithRunStore(store ports.RunStore) Option {
	return func(c *config) { c.store = store }
}

// WithLocker layers a distributed locker over the in-process keyed locks,
// extending the at-most-one-compute-per-fingerprint guarantee across
// processes.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(c *config) { c.locker = locker }
}

// WithLockTTL sets the lease TTL used with a distributed locker.
func WithLockTTL(ttl time.Duration) Option {
	return func(c *config) { c.lockTTL = ttl }
}

// WithLifecycleHooks installs observers invoked synchronously at cache
// hits, invocation start/end, and validation failures.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(c *config) { c.hooks = hooks }
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithMaxRetries sets the corrective retry budget applied to tasks that
// do not declare their own.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// New creates an Engine around a model gateway.
func New(gateway ports.Gateway, opts ...Option) *Engine {
	cfg := config{
		cache:      memory.NewCache(),
		store:      memory.NewStore(),
		lockTTL:    30 * time.Second,
		logger:     logging.NewNop(),
		maxRetries: runtime.DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	lockOpts := []locking.Option{locking.WithLogger(cfg.logger)}
	if cfg.locker != nil {
		lockOpts = append(lockOpts, locking.WithLocker(cfg.locker), locking.WithLockTTL(cfg.lockTTL))
	}

	rtOpts := []runtime.Option{
		runtime.WithCache(cfg.cache),
		runtime.WithLockManager(locking.NewManager(lockOpts...)),
		runtime.WithHooks(cfg.hooks),
		runtime.WithLogger(cfg.logger),
	}
	if cfg.maxRetries > 0 {
		rtOpts = append(rtOpts, runtime.WithMaxRetries(cfg.maxRetries))
	}

	return &Engine{
		rt:     runtime.New(gateway, rtOpts...),
		store:  cfg.store,
		logger: cfg.logger,
	}
}

// ContinueOnError keeps a run in RUNNING after a failed invocation
// instead of propagating the failure to the run status.
func ContinueOnError() runtime.ExecOption { return runtime.ContinueOnError() }

// StartRun creates a fresh run. An empty id gets a generated UUID.
func (e *Engine) StartRun(id string) *domain.Run {
	run := domain.NewRun(id)
	e.logger.Info("Run created", "run_id", run.ID)
	return run
}

// Execute runs one task invocation within a run. Identical
// (task, prompt version, model, inputs) resolve to the same fingerprint
// and are served from the cache without a gateway call.
func (e *Engine) Execute(ctx context.Context, run *domain.Run, task *domain.Task, inputs map[string]any, opts ...runtime.ExecOption) (*domain.Invocation, error) {
	return e.rt.Execute(ctx, run, task, inputs, opts...)
}

// Refine re-executes a task informed by free-text feedback on a prior
// invocation, linking the new invocation to it.
func (e *Engine) Refine(ctx context.Context, run *domain.Run, task *domain.Task, parentInvocationID, feedback string, opts ...runtime.ExecOption) (*domain.Invocation, error) {
	return e.rt.Refine(ctx, run, task, parentInvocationID, feedback, opts...)
}

// SaveRun snapshots the run into the configured store. On failure the
// in-memory run is untouched and remains the last known good state.
func (e *Engine) SaveRun(ctx context.Context, run *domain.Run) error {
	doc, err := record.Snapshot(run).Encode()
	if err != nil {
		return fmt.Errorf("snapshot run %s: %w", run.ID, err)
	}
	if err := e.store.Save(ctx, run.ID, doc); err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	e.logger.Info("Run saved", "run_id", run.ID, "status", run.Status)
	return nil
}

// ResumeRun restores a persisted run and re-seeds the cache from its
// completed invocations, so re-executing already-completed steps is a
// cache hit rather than a fresh gateway call.
func (e *Engine) ResumeRun(ctx context.Context, runID string) (*domain.Run, error) {
	data, err := e.store.Load(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	doc, err := record.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode run %s: %w", runID, err)
	}
	run, err := record.Restore(doc)
	if err != nil {
		return nil, fmt.Errorf("restore run %s: %w", runID, err)
	}

	seeded := 0
	for _, inv := range run.Invocations {
		if inv.Result == nil || inv.Fingerprint == "" {
			continue
		}
		err := e.rt.Cache().Put(ctx, domain.NewCacheEntry(inv.Fingerprint, inv.Result))
		switch {
		case err == nil:
			seeded++
		case errors.Is(err, domain.ErrCacheDrift):
			e.logger.Warn("Cache drift while re-seeding from run history",
				"run_id", runID,
				"fingerprint", inv.Fingerprint,
				"err", err,
			)
		default:
			return nil, fmt.Errorf("re-seed cache for run %s: %w", runID, err)
		}
	}
	e.logger.Info("Run restored", "run_id", runID, "status", run.Status, "seeded_entries", seeded)
	return run, nil
}

// CompleteRun moves the run into the COMPLETED terminal state. The
// transition is serialized against in-flight invocations through the
// runtime's per-run lock.
func (e *Engine) CompleteRun(ctx context.Context, run *domain.Run) error {
	if err := e.rt.CompleteRun(ctx, run); err != nil {
		return err
	}
	e.logger.Info("Run completed", "run_id", run.ID)
	return nil
}

// CancelRun moves the run into the CANCELLED terminal state. Safe to call
// while invocations are in flight: the transition takes the runtime's
// per-run lock. In-flight gateway calls are cancelled cooperatively
// through their contexts; already-recorded invocations are kept.
func (e *Engine) CancelRun(ctx context.Context, run *domain.Run) error {
	if err := e.rt.CancelRun(ctx, run); err != nil {
		return err
	}
	e.logger.Info("Run cancelled", "run_id", run.ID)
	return nil
}

// DeleteRun removes a persisted run document.
func (e *Engine) DeleteRun(ctx context.Context, runID string) error {
	return e.store.Delete(ctx, runID)
}

// ListRuns returns the IDs of all persisted runs.
func (e *Engine) ListRuns(ctx context.Context) ([]string, error) {
	return e.store.List(ctx)
}

// LoadRun reads a persisted run without touching the cache.
func (e *Engine) LoadRun(ctx context.Context, runID string) (*domain.Run, error) {
	data, err := e.store.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	doc, err := record.Decode(data)
	if err != nil {
		return nil, err
	}
	return record.Restore(doc)
}

// ClearCache removes every cached result. Eviction is always an explicit
// caller action.
func (e *Engine) ClearCache(ctx context.Context) error {
	return e.rt.Cache().Clear(ctx)
}
