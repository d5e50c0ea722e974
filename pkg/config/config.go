package config

// Config is the umbrella configuration object returned by Initialize.
// It is built once at startup and treated as read-only afterwards; every
// request handler shares it without locking.
type Config struct {
	configDir string // Configuration directory path (for reference)

	// Remote agent and statements API
	Snowflake *SnowflakeConfig

	// Inbound HTTP surface
	Server *ServerConfig

	// Agent run settings and the immutable request-body template
	Agent      *AgentConfig
	AgentModel *AgentModel

	// Statement submission and result polling
	Statements *StatementConfig

	// Demo login and identity cookie
	Auth *AuthConfig

	// Log and error scrubbing
	Masking *MaskingConfig
}

// Initialize is defined in loader.go

// Stats contains statistics about loaded configuration
type Stats struct {
	Users           int
	AllowedOrigins  int
	MaskingPatterns int
}

// Stats returns configuration statistics for logging
func (c *Config) Stats() Stats {
	s := Stats{}
	if c.Auth != nil && c.Auth.Users != nil {
		s.Users = c.Auth.Users.Len()
	}
	if c.Server != nil {
		s.AllowedOrigins = len(c.Server.AllowedOrigins)
	}
	if c.Masking != nil {
		s.MaskingPatterns = len(c.Masking.CustomPatterns)
	}
	return s
}

// ConfigDir returns the configuration directory path
func (c *Config) ConfigDir() string {
	return c.configDir
}
