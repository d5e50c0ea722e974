package config

import (
	"fmt"
	"net/url"
	"regexp"
)

// ConfigValidator validates configuration comprehensively with clear error messages
type ConfigValidator struct {
	cfg *Config
	raw *RelayYAMLConfig
}

// NewValidator creates a validator for the given configuration. raw may be
// nil when the config was built in code.
func NewValidator(cfg *Config, raw *RelayYAMLConfig) *ConfigValidator {
	return &ConfigValidator{cfg: cfg, raw: raw}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error)
func (v *ConfigValidator) ValidateAll() error {
	if err := v.validateSnowflake(); err != nil {
		return fmt.Errorf("snowflake validation failed: %w", err)
	}

	if err := v.validateAgent(); err != nil {
		return fmt.Errorf("agent validation failed: %w", err)
	}

	if err := v.validateStatements(); err != nil {
		return fmt.Errorf("statements validation failed: %w", err)
	}

	if err := v.validateAuth(); err != nil {
		return fmt.Errorf("auth validation failed: %w", err)
	}

	if err := v.validateMasking(); err != nil {
		return fmt.Errorf("masking validation failed: %w", err)
	}

	return nil
}

func (v *ConfigValidator) validateSnowflake() error {
	sf := v.cfg.Snowflake
	if sf == nil || sf.URL == "" {
		return NewValidationError("snowflake", "", "url", ErrMissingRequiredField)
	}

	u, err := url.Parse(sf.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return NewValidationError("snowflake", "", "url", fmt.Errorf("%w: %q is not an http(s) URL", ErrInvalidValue, sf.URL))
	}

	if sf.Warehouse == "" {
		return NewValidationError("snowflake", "", "warehouse", ErrMissingRequiredField)
	}

	if sf.TokenEnv == "" {
		return NewValidationError("snowflake", "", "token_env", ErrMissingRequiredField)
	}

	return nil
}

func (v *ConfigValidator) validateAgent() error {
	a := v.cfg.Agent
	if a.RunTimeout <= 0 {
		return NewValidationError("agent", "", "run_timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if a.ToolName == "" {
		return NewValidationError("agent", "", "tool_name", ErrMissingRequiredField)
	}
	return nil
}

func (v *ConfigValidator) validateStatements() error {
	s := v.cfg.Statements
	if s.Timeout <= 0 {
		return NewValidationError("statements", "", "timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if s.PollInterval <= 0 || s.PollInterval >= s.Timeout {
		return NewValidationError("statements", "", "poll_interval",
			fmt.Errorf("%w: must be positive and shorter than timeout (%s)", ErrInvalidValue, s.Timeout))
	}
	if s.MaxPerSecond <= 0 {
		return NewValidationError("statements", "", "max_per_second", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if s.Burst < 1 {
		return NewValidationError("statements", "", "burst", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateAuth() error {
	if v.cfg.Auth.CookieName == "" {
		return NewValidationError("auth", "", "cookie_name", ErrMissingRequiredField)
	}
	if v.raw == nil || v.raw.Auth == nil {
		return nil
	}

	seen := make(map[string]bool)
	for i, u := range v.raw.Auth.Users {
		if u.Username == "" {
			return NewValidationError("auth", fmt.Sprintf("users[%d]", i), "username", ErrMissingRequiredField)
		}
		if seen[u.Username] {
			return NewValidationError("auth", u.Username, "username", fmt.Errorf("%w: duplicate user", ErrInvalidValue))
		}
		seen[u.Username] = true
		if u.Password == "" {
			return NewValidationError("auth", u.Username, "password", ErrMissingRequiredField)
		}
	}
	return nil
}

func (v *ConfigValidator) validateMasking() error {
	m := v.cfg.Masking
	if m == nil || !m.Enabled {
		return nil
	}

	if _, ok := GetBuiltinConfig().PatternGroups[m.PatternGroup]; !ok {
		return NewValidationError("masking", "", "pattern_group", fmt.Errorf("%w: unknown group %q", ErrInvalidValue, m.PatternGroup))
	}

	for i, p := range m.CustomPatterns {
		id := fmt.Sprintf("custom_patterns[%d]", i)
		if p.Pattern == "" {
			return NewValidationError("masking", id, "pattern", ErrMissingRequiredField)
		}
		if _, err := regexp.Compile(p.Pattern); err != nil {
			return NewValidationError("masking", id, "pattern", fmt.Errorf("%w: %v", ErrInvalidValue, err))
		}
	}
	return nil
}
