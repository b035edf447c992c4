package schema

import (
	"errors"
	"strings"
	"testing"
)

func TestValidate_Success(t *testing.T) {
	schema := Schema{
		"summary": String(),
		"score":   Float(),
		"final":   Bool(),
		"topics":  Slice(String()),
	}

	data := map[string]any{
		"summary": "a short text",
		"score":   0.92,
		"final":   true,
		"topics":  []any{"go", "caching"},
	}

	if err := Validate(schema, data); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestValidate_EmptySchemaAcceptsAnything(t *testing.T) {
	if err := Validate(nil, map[string]any{"whatever": 1}); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestValidate_MissingField(t *testing.T) {
	schema := Schema{
		"summary": String(),
		"topics":  Slice(String()),
	}

	err := Validate(schema, map[string]any{"summary": "text"})
	if err == nil {
		t.Fatal("Validate() should return error for missing field")
	}

	var aggr *AggregateError
	if !errors.As(err, &aggr) {
		t.Fatalf("error should be *AggregateError, got %T", err)
	}
	if len(aggr.Errors) != 1 {
		t.Fatalf("Validate() = %d errors, want 1", len(aggr.Errors))
	}

	var fieldErr *ValidationError
	if !errors.As(aggr.Errors[0], &fieldErr) {
		t.Fatalf("error should be *ValidationError, got %T", aggr.Errors[0])
	}
	if fieldErr.Key != "topics" {
		t.Errorf("Key = %q, want %q", fieldErr.Key, "topics")
	}
	if fieldErr.Reason != "required" {
		t.Errorf("Reason = %q, want %q", fieldErr.Reason, "required")
	}
}

func TestValidate_DeterministicOrder(t *testing.T) {
	schema := Schema{
		"b": String(),
		"a": String(),
		"c": String(),
	}

	// All fields missing; failures must come out in sorted field order so
	// corrective messages are stable across runs.
	err := Validate(schema, map[string]any{})
	if err == nil {
		t.Fatal("Validate() should fail")
	}
	msg := err.Error()
	ia, ib, ic := strings.Index(msg, `"a"`), strings.Index(msg, `"b"`), strings.Index(msg, `"c"`)
	if !(ia < ib && ib < ic) {
		t.Errorf("failures not in deterministic order: %s", msg)
	}
}

func TestHint(t *testing.T) {
	schema := Schema{
		"topics":  Slice(String()),
		"summary": String(),
	}

	hint := Hint(schema)
	want := `{"summary": string, "topics": [string]}`
	if hint != want {
		t.Errorf("Hint() = %q, want %q", hint, want)
	}

	if Hint(nil) != "" {
		t.Errorf("Hint(nil) = %q, want empty", Hint(nil))
	}
}
