package masking

import (
	"fmt"
	"log/slog"
	"regexp"
	"slices"

	"github.com/codeready-toolchain/agentrelay/pkg/config"
)

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Description string
}

// resolvedPatterns holds the resolved set of maskers and patterns for a masking operation.
type resolvedPatterns struct {
	codeMaskerNames []string           // Names of code-based maskers to apply
	regexPatterns   []*CompiledPattern // Compiled regex patterns to apply, in order
}

// compileBuiltinPatterns compiles all built-in regex patterns from config.
// Invalid patterns are logged and skipped.
func (s *Service) compileBuiltinPatterns() {
	for name, pattern := range config.GetBuiltinConfig().MaskingPatterns {
		compiled, err := regexp.Compile(pattern.Pattern)
		if err != nil {
			slog.Error("Failed to compile built-in masking pattern, skipping",
				"pattern", name, "error", err)
			continue
		}
		s.patterns[name] = &CompiledPattern{
			Name:        name,
			Regex:       compiled,
			Replacement: pattern.Replacement,
			Description: pattern.Description,
		}
	}
}

// compileCustomPatterns compiles operator-supplied patterns. They are keyed
// as "custom:{index}" and always applied after the group's patterns.
func (s *Service) compileCustomPatterns(custom []config.MaskingPattern) []string {
	var names []string
	for i, pattern := range custom {
		name := fmt.Sprintf("custom:%d", i)
		compiled, err := regexp.Compile(pattern.Pattern)
		if err != nil {
			slog.Error("Failed to compile custom masking pattern, skipping",
				"pattern", name, "error", err)
			continue
		}
		s.patterns[name] = &CompiledPattern{
			Name:        name,
			Regex:       compiled,
			Replacement: pattern.Replacement,
			Description: pattern.Description,
		}
		names = append(names, name)
	}
	return names
}

// resolvePatterns expands a pattern group plus custom pattern names into a
// deduplicated resolvedPatterns.
func (s *Service) resolvePatterns(groupName string, customNames []string) *resolvedPatterns {
	seen := make(map[string]bool)
	resolved := &resolvedPatterns{}
	builtin := config.GetBuiltinConfig()

	for _, name := range config.GetBuiltinConfig().PatternGroups[groupName] {
		if seen[name] {
			continue
		}
		seen[name] = true
		s.addToResolved(resolved, name, builtin)
	}

	for _, name := range customNames {
		if cp, ok := s.patterns[name]; ok {
			resolved.regexPatterns = append(resolved.regexPatterns, cp)
		}
	}

	return resolved
}

// addToResolved adds a pattern name to the resolved set, categorizing it as
// either a code masker or a regex pattern.
func (s *Service) addToResolved(resolved *resolvedPatterns, name string, builtin *config.BuiltinConfig) {
	if slices.Contains(builtin.CodeMaskers, name) {
		resolved.codeMaskerNames = append(resolved.codeMaskerNames, name)
		return
	}

	if cp, ok := s.patterns[name]; ok {
		resolved.regexPatterns = append(resolved.regexPatterns, cp)
	}
}
