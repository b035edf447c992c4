/*
Package schema provides explicit schema descriptors for validating
structured model output.

A Schema maps field names to Type validators. Untyped gateway responses
(decoded JSON objects) are checked against the declared schema rather than
via runtime reflection over user structs, so a failing field produces a
precise, human-readable mismatch that can be fed back to the model as a
corrective message.

	out := schema.Schema{
		"summary": schema.String(),
		"topics":  schema.Slice(schema.String()),
	}
	err := schema.Validate(out, payload)
*/
package schema
