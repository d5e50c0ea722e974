// Package payload inspects decoded agent event payloads.
//
// Payloads are generic JSON values: nil, bool, json.Number, string, []any or
// map[string]any. Every accessor here is total. A shape mismatch yields
// ok=false rather than a panic, so callers chain lookups with early exit.
package payload

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// Decode parses frame data into a generic value. Empty data decodes to an
// empty object. Data that is not a single valid JSON document is returned
// unchanged as a string. Numbers are kept as json.Number so that relayed
// payloads re-encode without precision loss.
func Decode(data string) any {
	if data == "" {
		return map[string]any{}
	}
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return data
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return data
	}
	return v
}

// AsMap returns v as an object.
func AsMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// AsSlice returns v as an array.
func AsSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

// AsString returns v as a string.
func AsString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// Lookup walks path through v. A string step selects an object key, an int
// step selects an array index. Any missing key, out-of-range index, or type
// mismatch returns ok=false.
func Lookup(v any, path ...any) (any, bool) {
	cur := v
	for _, step := range path {
		switch s := step.(type) {
		case string:
			m, ok := AsMap(cur)
			if !ok {
				return nil, false
			}
			next, ok := m[s]
			if !ok {
				return nil, false
			}
			cur = next
		case int:
			arr, ok := AsSlice(cur)
			if !ok || s < 0 || s >= len(arr) {
				return nil, false
			}
			cur = arr[s]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Clone returns a deep copy of v. Objects and arrays are copied recursively;
// scalars are immutable and shared.
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Clone(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Clone(val)
		}
		return out
	default:
		return v
	}
}

// DeltaContent returns the delta.content array of an agent delta payload.
func DeltaContent(p any) ([]any, bool) {
	v, ok := Lookup(p, "delta", "content")
	if !ok {
		return nil, false
	}
	return AsSlice(v)
}
