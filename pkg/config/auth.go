package config

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// AuthYAMLConfig holds demo login settings from YAML.
type AuthYAMLConfig struct {
	CookieName   string        `yaml:"cookie_name,omitempty"`
	CookieMaxAge time.Duration `yaml:"cookie_max_age,omitempty"`
	Users        []UserConfig  `yaml:"users,omitempty"`
}

// UserConfig is one demo account. The username doubles as the tenant
// identity used to scope statements.
type UserConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// AuthConfig holds resolved demo login settings.
type AuthConfig struct {
	CookieName   string        // Identity cookie name (default: "demo_username")
	CookieMaxAge time.Duration // Identity cookie lifetime (default: 7 days)
	Users        *UserRegistry
}

// UserRegistry stores demo accounts in memory (thread-safe)
type UserRegistry struct {
	users map[string]*UserConfig
	mu    sync.RWMutex
}

// NewUserRegistry creates a new user registry
func NewUserRegistry(users map[string]*UserConfig) *UserRegistry {
	// Defensive copy to prevent external mutation
	copied := make(map[string]*UserConfig, len(users))
	for k, v := range users {
		copied[k] = v
	}
	return &UserRegistry{
		users: copied,
	}
}

// Get retrieves a user by name (thread-safe)
func (r *UserRegistry) Get(username string) (*UserConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.users[username]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	return user, nil
}

// Has checks if a user exists (thread-safe)
func (r *UserRegistry) Has(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.users[username]
	return exists
}

// Usernames returns all usernames in sorted order (thread-safe)
func (r *UserRegistry) Usernames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.users))
	for name := range r.users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of users (thread-safe)
func (r *UserRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// resolveAuthConfig applies defaults and indexes users by name. Duplicate
// or empty usernames are reported by the validator, which sees the raw list.
func resolveAuthConfig(y *AuthYAMLConfig) *AuthConfig {
	cfg := &AuthConfig{
		CookieName:   "demo_username",
		CookieMaxAge: 7 * 24 * time.Hour,
	}

	users := make(map[string]*UserConfig)
	if y != nil {
		if y.CookieName != "" {
			cfg.CookieName = y.CookieName
		}
		if y.CookieMaxAge > 0 {
			cfg.CookieMaxAge = y.CookieMaxAge
		}
		for i := range y.Users {
			u := y.Users[i]
			users[u.Username] = &u
		}
	}
	cfg.Users = NewUserRegistry(users)

	return cfg
}
