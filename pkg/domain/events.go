package domain

import (
	"context"
	"time"
)

// InvocationEvent carries the structured fields emitted at each hook site.
type InvocationEvent struct {
	TaskID             string        `json:"task_id"`
	RunID              string        `json:"run_id"`
	Fingerprint        string        `json:"fingerprint"`
	CacheHit           bool          `json:"cache_hit"`
	Latency            time.Duration `json:"latency"`
	ValidationAttempts int           `json:"validation_attempts"`
	Err                error         `json:"-"`
}

// LifecycleHooks defines callbacks for engine observability.
// Hooks are invoked synchronously at their call sites; the core defines
// the sites and payload shape only, never a sink. Nil members are skipped.
type LifecycleHooks struct {
	OnCacheHit          func(context.Context, *InvocationEvent)
	OnInvocationStart   func(context.Context, *InvocationEvent)
	OnInvocationEnd     func(context.Context, *InvocationEvent)
	OnValidationFailure func(context.Context, *InvocationEvent)
}
