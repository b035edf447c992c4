// Package fingerprint computes the deterministic content hash used as the
// cache key for task invocations.
//
// The fingerprint is a pure function of (task identity, prompt-template
// version, model identity, input values). Inputs are written through a
// canonical, type-tagged encoding: map keys are sorted so unordered
// containers hash identically regardless of iteration order, while slices
// hash in element order. The encoding never depends on process state, so
// fingerprints are stable across restarts.
package fingerprint

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"hash"
	"reflect"
	"sort"
	"strconv"
)

// prefix versions the canonical encoding itself. Changing the encoding
// must change every fingerprint.
const prefix = "skein/v1"

// New computes the fingerprint for a task invocation.
func New(taskID, promptVersion, model string, inputs map[string]any) string {
	h := sha256.New()
	writeField(h, prefix)
	writeField(h, "task:"+taskID)
	writeField(h, "model:"+model)
	writeField(h, "prompt:"+promptVersion)
	writeValue(h, inputs)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Chain derives the fingerprint of a refinement from its parent.
// It incorporates the parent invocation identity and the feedback text, so
// a refinement never collides with the original computation, while
// identical (parent, feedback) pairs always collide with each other.
func Chain(parentFingerprint, parentInvocationID, feedback string) string {
	h := sha256.New()
	writeField(h, prefix)
	writeField(h, "refine:"+parentFingerprint)
	writeField(h, "parent:"+parentInvocationID)
	writeValue(h, feedback)
	return fmt.Sprintf("%x", h.Sum(nil))
}

func writeField(h hash.Hash, s string) {
	h.Write([]byte(s))
	h.Write([]byte{0})
}

// writeValue encodes a value with a type tag so that, e.g., the string "1"
// and the number 1 can never produce the same byte stream.
func writeValue(h hash.Hash, value any) {
	switch v := value.(type) {
	case nil:
		fmt.Fprint(h, "z;")
	case bool:
		if v {
			fmt.Fprint(h, "b:1;")
		} else {
			fmt.Fprint(h, "b:0;")
		}
	case string:
		writeString(h, v)
	case []byte:
		fmt.Fprintf(h, "y:%d:", len(v))
		h.Write(v)
		fmt.Fprint(h, ";")
	case int:
		writeNumber(h, strconv.FormatInt(int64(v), 10))
	case int8:
		writeNumber(h, strconv.FormatInt(int64(v), 10))
	case int16:
		writeNumber(h, strconv.FormatInt(int64(v), 10))
	case int32:
		writeNumber(h, strconv.FormatInt(int64(v), 10))
	case int64:
		writeNumber(h, strconv.FormatInt(v, 10))
	case uint:
		writeNumber(h, strconv.FormatUint(uint64(v), 10))
	case uint8:
		writeNumber(h, strconv.FormatUint(uint64(v), 10))
	case uint16:
		writeNumber(h, strconv.FormatUint(uint64(v), 10))
	case uint32:
		writeNumber(h, strconv.FormatUint(uint64(v), 10))
	case uint64:
		writeNumber(h, strconv.FormatUint(v, 10))
	case float32:
		writeNumber(h, strconv.FormatFloat(float64(v), 'g', -1, 32))
	case float64:
		writeNumber(h, strconv.FormatFloat(v, 'g', -1, 64))
	case json.Number:
		writeNumber(h, v.String())
	default:
		writeReflected(h, reflect.ValueOf(value))
	}
}

func writeReflected(h hash.Hash, rv reflect.Value) {
	switch rv.Kind() {
	case reflect.Map:
		keys := make([]string, 0, rv.Len())
		byKey := make(map[string]reflect.Value, rv.Len())
		for _, k := range rv.MapKeys() {
			// Non-string keys fall back to their printed form; ordering
			// stays deterministic either way.
			ks := fmt.Sprintf("%v", k.Interface())
			keys = append(keys, ks)
			byKey[ks] = rv.MapIndex(k)
		}
		sort.Strings(keys)
		fmt.Fprint(h, "m{")
		for _, ks := range keys {
			writeString(h, ks)
			writeValue(h, byKey[ks].Interface())
		}
		fmt.Fprint(h, "}")
	case reflect.Slice, reflect.Array:
		fmt.Fprint(h, "l[")
		for i := 0; i < rv.Len(); i++ {
			writeValue(h, rv.Index(i).Interface())
		}
		fmt.Fprint(h, "]")
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			fmt.Fprint(h, "z;")
			return
		}
		writeValue(h, rv.Elem().Interface())
	default:
		// Scalars of named types, structs with a %v rendering, etc.
		fmt.Fprintf(h, "v:%v;", rv.Interface())
	}
}

func writeString(h hash.Hash, s string) {
	fmt.Fprintf(h, "s:%d:%s;", len(s), s)
}

func writeNumber(h hash.Hash, canonical string) {
	fmt.Fprintf(h, "n:%s;", canonical)
}
