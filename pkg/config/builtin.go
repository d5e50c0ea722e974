package config

import (
	"sync"
)

// BuiltinConfig holds built-in configuration data that ships with the
// binary: masking patterns, code-based maskers and the groups that bundle them.
type BuiltinConfig struct {
	MaskingPatterns map[string]MaskingPattern
	PatternGroups   map[string][]string
	CodeMaskers     []string // Names of maskers implemented in pkg/masking
}

var (
	builtinConfig     *BuiltinConfig
	builtinConfigOnce sync.Once
)

// GetBuiltinConfig returns the singleton built-in configuration (thread-safe, lazy-initialized)
func GetBuiltinConfig() *BuiltinConfig {
	builtinConfigOnce.Do(initBuiltinConfig)
	return builtinConfig
}

func initBuiltinConfig() {
	builtinConfig = &BuiltinConfig{
		MaskingPatterns: initBuiltinMaskingPatterns(),
		PatternGroups:   initBuiltinPatternGroups(),
		CodeMaskers:     []string{"json_credentials"},
	}
}

func initBuiltinMaskingPatterns() map[string]MaskingPattern {
	return map[string]MaskingPattern{
		"bearer": {
			Pattern:     `(?i)(bearer\s+)[A-Za-z0-9_\-\.=+/]{8,}`,
			Replacement: `${1}__MASKED_TOKEN__`,
			Description: "Authorization bearer credentials",
		},
		"jwt": {
			Pattern:     `\beyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+`,
			Replacement: `__MASKED_JWT__`,
			Description: "Signed JSON web tokens",
		},
		"token": {
			Pattern:     `(?i)((?:token|pat|secret)["\']?\s*[:=]\s*["\']?)[A-Za-z0-9_\-\.]{16,}`,
			Replacement: `${1}__MASKED_TOKEN__`,
			Description: "Access tokens in key/value form",
		},
		"password": {
			Pattern:     `(?i)((?:password|pwd|passwd)["\']?\s*[:=]\s*["\']?)[^"\'\s;,]{1,}`,
			Replacement: `${1}__MASKED_PASSWORD__`,
			Description: "Passwords",
		},
		"private_key": {
			Pattern:     `(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`,
			Replacement: `__MASKED_PRIVATE_KEY__`,
			Description: "PEM private keys",
		},
		"email": {
			Pattern:     `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9]+(?:[.-][A-Za-z0-9]+)*\.[A-Za-z]{2,63}\b`,
			Replacement: `__MASKED_EMAIL__`,
			Description: "Email addresses",
		},
	}
}

// initBuiltinPatternGroups returns predefined groups of masking patterns.
func initBuiltinPatternGroups() map[string][]string {
	return map[string][]string{
		"credentials": {"json_credentials", "private_key", "jwt", "bearer", "token", "password"},
		"all":         {"json_credentials", "private_key", "jwt", "bearer", "token", "password", "email"},
	}
}
