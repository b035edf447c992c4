package ports

import (
	"context"

	"github.com/aretw0/skein/pkg/domain"
)

// Gateway is the external model-invocation boundary.
//
// Implementations own transport concerns entirely: connection handling,
// authentication, and network-level retry/backoff. The engine only
// distinguishes retryable from terminal failures, which gateways signal by
// returning a *domain.GatewayError with Retryable set accordingly.
type Gateway interface {
	// Invoke sends a prompt with its conversation history and returns the
	// raw model response. schemaHint describes the expected response shape
	// (see schema.Hint) and may be empty for unstructured tasks.
	Invoke(ctx context.Context, prompt string, history []domain.Message, schemaHint string) (string, error)
}

// GatewayFunc adapts a plain function to the Gateway interface.
type GatewayFunc func(ctx context.Context, prompt string, history []domain.Message, schemaHint string) (string, error)

// Invoke implements Gateway.
func (f GatewayFunc) Invoke(ctx context.Context, prompt string, history []domain.Message, schemaHint string) (string, error) {
	return f(ctx, prompt, history, schemaHint)
}
