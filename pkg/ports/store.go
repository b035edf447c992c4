package ports

import "context"

// RunStore persists serialized run documents (see pkg/record), enabling
// durable "stop & resume" pipelines. Implementations treat the document as
// an opaque byte payload; versioning lives inside the document itself.
type RunStore interface {
	// Save persists the document for a given run ID.
	Save(ctx context.Context, runID string, doc []byte) error

	// Load retrieves the document for a given run ID.
	// Returns domain.ErrRunNotFound if the run does not exist.
	Load(ctx context.Context, runID string) ([]byte, error)

	// Delete removes the document for a given run ID.
	Delete(ctx context.Context, runID string) error

	// List returns the IDs of all persisted runs.
	List(ctx context.Context) ([]string, error)
}
