package domain

import "encoding/json"

// Result is the schema-conforming payload produced by one invocation,
// together with the raw model response it was parsed from.
type Result struct {
	// Payload is the structured response, validated against the task's
	// output schema when one is declared.
	Payload map[string]any `json:"payload"`

	// Raw is the unparsed gateway response.
	Raw string `json:"raw"`

	// Valid records whether the payload passed schema validation.
	Valid bool `json:"valid"`
}

// Equal compares two results by canonical JSON payload and raw text.
// Used for cache-drift detection: a same-fingerprint Put with a different
// result is an anomaly, not a normal path.
func (r *Result) Equal(other *Result) bool {
	if r == nil || other == nil {
		return r == other
	}
	if r.Raw != other.Raw || r.Valid != other.Valid {
		return false
	}
	// encoding/json sorts map keys, so this is order-insensitive.
	a, errA := json.Marshal(r.Payload)
	b, errB := json.Marshal(other.Payload)
	if errA != nil || errB != nil {
		return false
	}
	return string(a) == string(b)
}

// Clone returns a deep copy so cached results cannot be mutated through
// shared references, nested maps and slices included.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	return &Result{Payload: clonePayload(r.Payload), Raw: r.Raw, Valid: r.Valid}
}

// clonePayload recursively copies the JSON-shaped value tree a decoded
// payload consists of. Scalars are immutable and copied as-is.
func clonePayload(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = cloneValue(v)
	}
	return cp
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return clonePayload(val)
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = cloneValue(item)
		}
		return cp
	default:
		return val
	}
}

// Feedback is free-text input to a refinement, referencing the invocation
// whose result it targets.
type Feedback struct {
	InvocationID string `json:"invocation_id"`
	Text         string `json:"text"`
}
