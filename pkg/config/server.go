package config

import (
	"os"
	"slices"
	"strings"
)

// ServerYAMLConfig holds inbound HTTP settings from YAML.
type ServerYAMLConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// ServerConfig holds resolved inbound HTTP settings.
type ServerConfig struct {
	// AllowedOrigins is the exact CORS allow-list. Wildcards cannot be used
	// because the identity cookie requires credentialed requests.
	AllowedOrigins []string
}

// defaultAllowedOrigins are the local frontend dev servers.
var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://localhost:3001",
	"http://127.0.0.1:3000",
}

// resolveServerConfig builds the origin allow-list from defaults, YAML and
// the comma-separated ADDITIONAL_CORS_ORIGINS variable, dropping duplicates.
func resolveServerConfig(y *ServerYAMLConfig) *ServerConfig {
	origins := slices.Clone(defaultAllowedOrigins)
	if y != nil && len(y.AllowedOrigins) > 0 {
		origins = slices.Clone(y.AllowedOrigins)
	}

	if extra := os.Getenv("ADDITIONAL_CORS_ORIGINS"); extra != "" {
		for _, origin := range strings.Split(extra, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
	}

	var deduped []string
	for _, origin := range origins {
		if !slices.Contains(deduped, origin) {
			deduped = append(deduped, origin)
		}
	}
	return &ServerConfig{AllowedOrigins: deduped}
}
