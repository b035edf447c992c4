// Package record serializes and restores full Run state.
//
// A Run is persisted as a versioned Document: run metadata, the ordered
// invocation list with inputs and results, the per-task conversations, and
// references to the cache entries the run produced. Documents round-trip
// with full fidelity, so a restored Run replays already-completed
// invocations as cache hits without touching the gateway.
package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/skein/pkg/domain"
)

// FormatVersion is the current document schema version. Readers reject
// documents written by a newer engine instead of guessing at their shape.
const FormatVersion = 1

// ErrUnsupportedVersion is returned when a document carries a format
// version this engine cannot read.
var ErrUnsupportedVersion = errors.New("unsupported run document version")

// Document is the persisted form of a Run.
type Document struct {
	FormatVersion int `json:"format_version"`

	RunID     string           `json:"run_id"`
	Status    domain.RunStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	SavedAt   time.Time        `json:"saved_at"`

	Invocations   []*domain.Invocation            `json:"invocations"`
	Conversations map[string]*domain.Conversation `json:"conversations"`

	// CacheRefs lists the fingerprints of cache entries this run produced
	// or consumed, in first-seen order.
	CacheRefs []string `json:"cache_refs,omitempty"`
}

// Snapshot captures the full state of a run as a Document.
// The run itself is not modified.
func Snapshot(run *domain.Run) *Document {
	doc := &Document{
		FormatVersion: FormatVersion,
		RunID:         run.ID,
		Status:        run.Status,
		CreatedAt:     run.CreatedAt,
		SavedAt:       time.Now().UTC(),
		Invocations:   make([]*domain.Invocation, len(run.Invocations)),
		Conversations: make(map[string]*domain.Conversation, len(run.Conversations)),
	}
	copy(doc.Invocations, run.Invocations)

	for taskID, conv := range run.Conversations {
		doc.Conversations[taskID] = conv.Clone()
	}

	seen := make(map[string]bool)
	for _, inv := range run.Invocations {
		if inv.Fingerprint == "" || seen[inv.Fingerprint] {
			continue
		}
		seen[inv.Fingerprint] = true
		doc.CacheRefs = append(doc.CacheRefs, inv.Fingerprint)
	}

	return doc
}

// Restore reconstructs a Run from a Document.
func Restore(doc *Document) (*domain.Run, error) {
	if doc.FormatVersion > FormatVersion || doc.FormatVersion < 1 {
		return nil, fmt.Errorf("document version %d: %w", doc.FormatVersion, ErrUnsupportedVersion)
	}

	run := &domain.Run{
		ID:            doc.RunID,
		Status:        doc.Status,
		CreatedAt:     doc.CreatedAt,
		Invocations:   make([]*domain.Invocation, len(doc.Invocations)),
		Conversations: make(map[string]*domain.Conversation, len(doc.Conversations)),
	}
	copy(run.Invocations, doc.Invocations)

	for taskID, conv := range doc.Conversations {
		run.Conversations[taskID] = conv.Clone()
	}

	return run, nil
}

// Encode serializes the document to its wire form.
func (d *Document) Encode() ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run document: %w", err)
	}
	return data, nil
}

// Decode parses a document from its wire form and checks the format
// version before anything else.
func Decode(data []byte) (*Document, error) {
	var probe struct {
		FormatVersion int `json:"format_version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to decode run document: %w", err)
	}
	if probe.FormatVersion > FormatVersion || probe.FormatVersion < 1 {
		return nil, fmt.Errorf("document version %d: %w", probe.FormatVersion, ErrUnsupportedVersion)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode run document: %w", err)
	}
	return &doc, nil
}
