package config

import (
	"os"
	"path/filepath"
	"strings"
)

// SnowflakeYAMLConfig holds remote API settings as written in relay.yaml.
type SnowflakeYAMLConfig struct {
	URL            string `yaml:"url"`
	TokenEnv       string `yaml:"token_env,omitempty"` // Defaults to "SNOWFLAKE_PAT" if omitted
	Warehouse      string `yaml:"warehouse,omitempty"`
	Account        string `yaml:"account,omitempty"`
	User           string `yaml:"user,omitempty"`
	PrivateKeyPath string `yaml:"private_key_path,omitempty"`
}

// SnowflakeConfig holds resolved remote API settings.
type SnowflakeConfig struct {
	URL            string // Base account URL without trailing slash
	TokenEnv       string // Env var name holding the programmatic access token
	Token          string // Bearer credential resolved from TokenEnv at startup
	Warehouse      string
	Account        string
	User           string
	PrivateKeyPath string // PKCS#8 PEM key for key-pair JWTs; relative paths resolve against the config dir
}

// resolveSnowflakeConfig applies defaults and resolves the bearer token.
func resolveSnowflakeConfig(configDir string, y *SnowflakeYAMLConfig) *SnowflakeConfig {
	cfg := &SnowflakeConfig{
		TokenEnv:       "SNOWFLAKE_PAT",
		Warehouse:      "SALES_INTELLIGENCE_WH",
		PrivateKeyPath: "rsa_key.p8",
	}

	if y != nil {
		cfg.URL = strings.TrimRight(strings.TrimSpace(y.URL), "/")
		if y.TokenEnv != "" {
			cfg.TokenEnv = y.TokenEnv
		}
		if y.Warehouse != "" {
			cfg.Warehouse = y.Warehouse
		}
		cfg.Account = y.Account
		cfg.User = y.User
		if y.PrivateKeyPath != "" {
			cfg.PrivateKeyPath = y.PrivateKeyPath
		}
	}

	if !filepath.IsAbs(cfg.PrivateKeyPath) {
		cfg.PrivateKeyPath = filepath.Join(configDir, cfg.PrivateKeyPath)
	}
	cfg.Token = os.Getenv(cfg.TokenEnv)

	return cfg
}
