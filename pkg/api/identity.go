package api

import (
	echo "github.com/labstack/echo/v5"
)

// identityHeaders are the proxy headers consulted when no login cookie is
// present: X-Forwarded-User and X-Forwarded-Email (oauth2-proxy), then
// X-Remote-User (kube-rbac-proxy).
var identityHeaders = []string{"X-Forwarded-User", "X-Forwarded-Email", "X-Remote-User"}

// extractIdentity returns the tenant identity of the caller. The demo login
// cookie wins over proxy headers. An empty result disables tenant scoping.
func (s *Server) extractIdentity(c *echo.Context) string {
	if id := s.authenticator.Identity(c.Request()); id != "" {
		return id
	}
	for _, name := range identityHeaders {
		if v := c.Request().Header.Get(name); v != "" {
			return v
		}
	}
	return ""
}
