package config

// MaskingYAMLConfig holds scrubbing settings from YAML.
type MaskingYAMLConfig struct {
	Enabled        *bool            `yaml:"enabled,omitempty"`
	PatternGroup   string           `yaml:"pattern_group,omitempty"`
	CustomPatterns []MaskingPattern `yaml:"custom_patterns,omitempty"`
}

// MaskingConfig holds resolved scrubbing settings applied to logged SQL,
// upstream error bodies, and error frames.
type MaskingConfig struct {
	Enabled        bool
	PatternGroup   string
	CustomPatterns []MaskingPattern
}

// MaskingPattern defines a regex-based masking pattern
type MaskingPattern struct {
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
	Description string `yaml:"description,omitempty"`
}

// resolveMaskingConfig applies defaults: enabled, "credentials" group.
func resolveMaskingConfig(y *MaskingYAMLConfig) *MaskingConfig {
	cfg := &MaskingConfig{
		Enabled:      true,
		PatternGroup: "credentials",
	}

	if y == nil {
		return cfg
	}
	if y.Enabled != nil {
		cfg.Enabled = *y.Enabled
	}
	if y.PatternGroup != "" {
		cfg.PatternGroup = y.PatternGroup
	}
	cfg.CustomPatterns = y.CustomPatterns

	return cfg
}
