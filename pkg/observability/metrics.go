// Package observability provides ready-made sinks for the engine's
// lifecycle hooks. The engine itself only defines the call sites; this
// package turns them into Prometheus series.
package observability

import (
	"context"

	"github.com/aretw0/skein/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors fed by the lifecycle hooks.
type Metrics struct {
	cacheHits          *prometheus.CounterVec
	invocations        *prometheus.CounterVec
	latency            *prometheus.HistogramVec
	validationFailures *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg and returns the sink.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skein",
			Name:      "cache_hits_total",
			Help:      "Invocations served from the result cache without a gateway call.",
		}, []string{"task"}),
		invocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skein",
			Name:      "invocations_total",
			Help:      "Completed gateway-backed invocations by outcome.",
		}, []string{"task", "outcome"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "skein",
			Name:      "invocation_duration_seconds",
			Help:      "Wall time of gateway-backed invocations, validation retries included.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"task"}),
		validationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skein",
			Name:      "validation_failures_total",
			Help:      "Model responses rejected by the task's output schema.",
		}, []string{"task"}),
	}
}

// Hooks returns lifecycle hooks feeding the collectors. Install them via
// skein.WithLifecycleHooks, composing with Chain if other observers are
// needed.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnCacheHit: func(_ context.Context, ev *domain.InvocationEvent) {
			m.cacheHits.WithLabelValues(ev.TaskID).Inc()
		},
		OnInvocationEnd: func(_ context.Context, ev *domain.InvocationEvent) {
			outcome := "success"
			if ev.Err != nil {
				outcome = "error"
			}
			m.invocations.WithLabelValues(ev.TaskID, outcome).Inc()
			m.latency.WithLabelValues(ev.TaskID).Observe(ev.Latency.Seconds())
		},
		OnValidationFailure: func(_ context.Context, ev *domain.InvocationEvent) {
			m.validationFailures.WithLabelValues(ev.TaskID).Inc()
		},
	}
}

// Chain fans one hook set out to several observers, preserving order.
func Chain(hooks ...domain.LifecycleHooks) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnCacheHit: func(ctx context.Context, ev *domain.InvocationEvent) {
			for _, h := range hooks {
				if h.OnCacheHit != nil {
					h.OnCacheHit(ctx, ev)
				}
			}
		},
		OnInvocationStart: func(ctx context.Context, ev *domain.InvocationEvent) {
			for _, h := range hooks {
				if h.OnInvocationStart != nil {
					h.OnInvocationStart(ctx, ev)
				}
			}
		},
		OnInvocationEnd: func(ctx context.Context, ev *domain.InvocationEvent) {
			for _, h := range hooks {
				if h.OnInvocationEnd != nil {
					h.OnInvocationEnd(ctx, ev)
				}
			}
		},
		OnValidationFailure: func(ctx context.Context, ev *domain.InvocationEvent) {
			for _, h := range hooks {
				if h.OnValidationFailure != nil {
					h.OnValidationFailure(ctx, ev)
				}
			}
		},
	}
}
