package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Schema is a map of field names to their expected types.
// Example: {"summary": String(), "topics": Slice(String())}
type Schema map[string]Type

// Validate checks if data conforms to the schema.
// Returns an error aggregating all validation failures found.
func Validate(schema Schema, data map[string]any) error {
	if len(schema) == 0 {
		// No schema = no validation
		return nil
	}

	var errs []error

	// Deterministic order so corrective messages are stable.
	for _, fieldName := range sortedFields(schema) {
		fieldType := schema[fieldName]

		value, exists := data[fieldName]
		if !exists {
			errs = append(errs, &ValidationError{
				Key:    fieldName,
				Reason: "required",
				Value:  nil,
			})
			continue
		}

		if err := fieldType.Validate(value); err != nil {
			errs = append(errs, &ValidationError{
				Key:    fieldName,
				Reason: err.Error(),
				Value:  value,
			})
		}
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}

	return nil
}

// Hint renders the schema as a compact response contract suitable for
// inclusion in a prompt or a corrective feedback message.
// Example: {"summary": string, "topics": [string]}
func Hint(schema Schema) string {
	if len(schema) == 0 {
		return ""
	}
	parts := make([]string, 0, len(schema))
	for _, name := range sortedFields(schema) {
		parts = append(parts, fmt.Sprintf("%q: %s", name, schema[name].Name()))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func sortedFields(schema Schema) []string {
	fields := make([]string, 0, len(schema))
	for name := range schema {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return fields
}
