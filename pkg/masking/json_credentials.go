package masking

import (
	"bytes"
	"encoding/json"
	"strings"
)

// MaskedFieldValue replaces the value of a sensitive JSON field.
const MaskedFieldValue = "__MASKED__"

// sensitiveKeys are lower-cased JSON keys whose values are always masked.
var sensitiveKeys = map[string]bool{
	"token":         true,
	"access_token":  true,
	"refresh_token": true,
	"password":      true,
	"secret":        true,
	"authorization": true,
	"private_key":   true,
	"privatekey":    true,
}

// JSONCredentialsMasker masks values of credential-like keys anywhere in a
// JSON document. Upstream error bodies and request echoes are JSON, so this
// runs before the regex sweep.
type JSONCredentialsMasker struct{}

// Name returns the unique identifier for this masker.
func (m *JSONCredentialsMasker) Name() string { return "json_credentials" }

// AppliesTo reports whether data looks like a JSON document.
func (m *JSONCredentialsMasker) AppliesTo(data string) bool {
	trimmed := strings.TrimSpace(data)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

// Mask rewrites sensitive values. Non-JSON input and documents without
// sensitive keys are returned unchanged.
func (m *JSONCredentialsMasker) Mask(data string) string {
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return data
	}

	if !maskSensitiveValues(doc) {
		return data
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return data
	}

	result := strings.TrimRight(buf.String(), "\n")
	if strings.HasSuffix(data, "\n") {
		result += "\n"
	}
	return result
}

// maskSensitiveValues walks v in place and reports whether anything changed.
func maskSensitiveValues(v any) bool {
	masked := false
	switch t := v.(type) {
	case map[string]any:
		for key, val := range t {
			if sensitiveKeys[strings.ToLower(key)] {
				if val != nil && val != MaskedFieldValue {
					t[key] = MaskedFieldValue
					masked = true
				}
				continue
			}
			if maskSensitiveValues(val) {
				masked = true
			}
		}
	case []any:
		for _, item := range t {
			if maskSensitiveValues(item) {
				masked = true
			}
		}
	}
	return masked
}
