package auth

import (
	"sync"
	"time"
)

// tokenCache is a thread-safe in-memory store of minted tokens. An entry is
// usable until its ExpiresAt, which already leaves a refresh margin before
// the token's real expiry. Expired entries are removed lazily on get.
type tokenCache struct {
	mu      sync.RWMutex
	entries map[string]*Token
	now     func() time.Time
}

func newTokenCache(now func() time.Time) *tokenCache {
	return &tokenCache{
		entries: make(map[string]*Token),
		now:     now,
	}
}

func (c *tokenCache) expired(t *Token) bool {
	return c.now().Unix() >= t.ExpiresAt
}

// get returns the cached token for subject if it is still usable.
func (c *tokenCache) get(subject string) (*Token, bool) {
	c.mu.RLock()
	tok, ok := c.entries[subject]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if c.expired(tok) {
		// A concurrent set may have stored a fresh token since RUnlock.
		c.mu.Lock()
		if current, ok := c.entries[subject]; ok && c.expired(current) {
			delete(c.entries, subject)
		}
		c.mu.Unlock()
		return nil, false
	}

	return tok, true
}

func (c *tokenCache) set(subject string, tok *Token) {
	c.mu.Lock()
	c.entries[subject] = tok
	c.mu.Unlock()
}
