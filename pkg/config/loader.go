package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// RelayFile is the main configuration file name inside the config dir.
const RelayFile = "relay.yaml"

// RelayYAMLConfig represents the complete relay.yaml file structure
type RelayYAMLConfig struct {
	Snowflake  *SnowflakeYAMLConfig `yaml:"snowflake"`
	Server     *ServerYAMLConfig    `yaml:"server"`
	Agent      *AgentConfig         `yaml:"agent"`
	Statements *StatementConfig     `yaml:"statements"`
	Auth       *AuthYAMLConfig      `yaml:"auth"`
	Masking    *MaskingYAMLConfig   `yaml:"masking"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load relay.yaml from configDir (env templates expanded)
//  2. Merge agent and statement sections over built-in defaults
//  3. Load the agent request-body template
//  4. Resolve remaining sections, applying defaults
//  5. Validate all configuration
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, raw, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg, raw); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"snowflake_url", cfg.Snowflake.URL,
		"warehouse", cfg.Snowflake.Warehouse,
		"users", stats.Users,
		"allowed_origins", stats.AllowedOrigins,
		"custom_masking_patterns", stats.MaskingPatterns)

	if cfg.Snowflake.Token == "" {
		log.Warn("Bearer token environment variable is empty; upstream calls will be rejected",
			"token_env", cfg.Snowflake.TokenEnv)
	}

	return cfg, nil
}

// load is the internal loader (not exported). It also returns the raw YAML
// so validation can see values that resolution collapses (duplicate users).
func load(_ context.Context, configDir string) (*Config, *RelayYAMLConfig, error) {
	loader := &configLoader{
		configDir: configDir,
	}

	relayConfig, err := loader.loadRelayYAML()
	if err != nil {
		return nil, nil, NewLoadError(RelayFile, err)
	}

	agentConfig := DefaultAgentConfig()
	if relayConfig.Agent != nil {
		if err := mergo.Merge(agentConfig, relayConfig.Agent, mergo.WithOverride); err != nil {
			return nil, nil, fmt.Errorf("failed to merge agent config: %w", err)
		}
	}

	statementConfig := DefaultStatementConfig()
	if relayConfig.Statements != nil {
		// Parameter maps merge key by key, so a partial override keeps the
		// remaining default output formats.
		if err := mergo.Merge(statementConfig, relayConfig.Statements, mergo.WithOverride); err != nil {
			return nil, nil, fmt.Errorf("failed to merge statements config: %w", err)
		}
	}

	template, err := loader.loadAgentModel(agentConfig.ModelFile)
	if err != nil {
		return nil, nil, NewLoadError(agentConfig.ModelFile, err)
	}

	return &Config{
		configDir:  configDir,
		Snowflake:  resolveSnowflakeConfig(configDir, relayConfig.Snowflake),
		Server:     resolveServerConfig(relayConfig.Server),
		Agent:      agentConfig,
		AgentModel: NewAgentModel(template),
		Statements: statementConfig,
		Auth:       resolveAuthConfig(relayConfig.Auth),
		Masking:    resolveMaskingConfig(relayConfig.Masking),
	}, relayConfig, nil
}

// validate performs comprehensive validation on loaded configuration
func validate(cfg *Config, raw *RelayYAMLConfig) error {
	validator := NewValidator(cfg, raw)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadRelayYAML() (*RelayYAMLConfig, error) {
	var config RelayYAMLConfig
	if err := l.loadYAML(RelayFile, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

// loadAgentModel reads the agent request-body template. The document must
// be a mapping; "messages" is reserved and dropped because it is attached
// per request.
func (l *configLoader) loadAgentModel(filename string) (map[string]any, error) {
	var template map[string]any
	if err := l.loadYAML(filename, &template); err != nil {
		return nil, err
	}
	if template == nil {
		template = map[string]any{}
	}
	if _, ok := template["messages"]; ok {
		slog.Warn("Agent model template defines messages; they are replaced per request",
			"file", filename)
		delete(template, "messages")
	}
	return template, nil
}
