package masking

import (
	"log/slog"

	"github.com/codeready-toolchain/agentrelay/pkg/config"
)

// Service scrubs credentials from text before it is logged or sent to a
// client: generated SQL, upstream error bodies and error frame messages.
// Created once at startup. Safe for concurrent use; a nil *Service masks
// nothing.
type Service struct {
	enabled     bool
	patterns    map[string]*CompiledPattern // Built-in + custom compiled patterns
	codeMaskers map[string]Masker           // Registered code-based maskers
	resolved    *resolvedPatterns           // Patterns applied by Mask, in order
}

// NewService creates a masking service from configuration. All patterns are
// compiled eagerly. Invalid patterns are logged and skipped.
func NewService(cfg *config.MaskingConfig) *Service {
	s := &Service{
		patterns:    make(map[string]*CompiledPattern),
		codeMaskers: make(map[string]Masker),
		resolved:    &resolvedPatterns{},
	}
	if cfg == nil || !cfg.Enabled {
		slog.Info("Masking service disabled")
		return s
	}
	s.enabled = true

	s.compileBuiltinPatterns()
	customNames := s.compileCustomPatterns(cfg.CustomPatterns)
	s.registerMasker(&JSONCredentialsMasker{})
	s.resolved = s.resolvePatterns(cfg.PatternGroup, customNames)

	slog.Info("Masking service initialized",
		"pattern_group", cfg.PatternGroup,
		"regex_patterns", len(s.resolved.regexPatterns),
		"code_maskers", len(s.resolved.codeMaskerNames))

	return s
}

// Mask returns data with every configured pattern applied.
func (s *Service) Mask(data string) string {
	if s == nil || !s.enabled || data == "" {
		return data
	}

	masked := data

	// Phase 1: Code-based maskers (structural awareness)
	for _, name := range s.resolved.codeMaskerNames {
		masker, ok := s.codeMaskers[name]
		if !ok {
			continue
		}
		if masker.AppliesTo(masked) {
			masked = masker.Mask(masked)
		}
	}

	// Phase 2: Regex patterns (general sweep)
	for _, pattern := range s.resolved.regexPatterns {
		masked = pattern.Regex.ReplaceAllString(masked, pattern.Replacement)
	}

	return masked
}

// MaskError returns the masked message of err, or "" for a nil error.
func (s *Service) MaskError(err error) string {
	if err == nil {
		return ""
	}
	return s.Mask(err.Error())
}

// registerMasker registers a code-based masker by its name.
func (s *Service) registerMasker(m Masker) {
	s.codeMaskers[m.Name()] = m
}
