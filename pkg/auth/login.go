// Package auth issues caller credentials: the demo login identity cookie
// and key-pair JWTs for the upstream account.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/codeready-toolchain/agentrelay/pkg/config"
)

// Authenticator checks demo logins against the configured users.
type Authenticator struct {
	cfg *config.AuthConfig
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(cfg *config.AuthConfig) *Authenticator {
	return &Authenticator{cfg: cfg}
}

// Authenticate returns ErrInvalidCredentials unless username exists and
// password matches. Unknown users are compared against an empty password
// so both paths do the same work.
func (a *Authenticator) Authenticate(username, password string) error {
	want := ""
	user, err := a.cfg.Users.Get(username)
	if err == nil {
		want = user.Password
	}

	if !passwordsMatch(want, password) || err != nil {
		slog.Warn("Demo login rejected", "username", username)
		return ErrInvalidCredentials
	}
	return nil
}

// passwordsMatch compares fixed-size digests so the comparison time does
// not depend on either password's length.
func passwordsMatch(want, got string) bool {
	w := sha256.Sum256([]byte(want))
	g := sha256.Sum256([]byte(got))
	return subtle.ConstantTimeCompare(w[:], g[:]) == 1
}

// IdentityCookie returns the cookie that carries a logged-in identity.
// It is readable by the browser client.
func (a *Authenticator) IdentityCookie(username string) *http.Cookie {
	return &http.Cookie{
		Name:     a.cfg.CookieName,
		Value:    username,
		Path:     "/",
		MaxAge:   int(a.cfg.CookieMaxAge.Seconds()),
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearedCookie returns a cookie that deletes the identity cookie.
func (a *Authenticator) ClearedCookie() *http.Cookie {
	return &http.Cookie{
		Name:     a.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		SameSite: http.SameSiteLaxMode,
	}
}

// Identity returns the identity carried by r's cookie, or "".
func (a *Authenticator) Identity(r *http.Request) string {
	c, err := r.Cookie(a.cfg.CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
