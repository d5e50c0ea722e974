package api

import (
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// loginHandler handles POST /api/auth/login.
func (s *Server) loginHandler(c *echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := s.authenticator.Authenticate(req.Username, req.Password); err != nil {
		return mapError(err)
	}

	http.SetCookie(c.Response(), s.authenticator.IdentityCookie(req.Username))
	slog.Info("Demo user logged in", "username", req.Username)
	return c.JSON(http.StatusOK, &OKResponse{OK: true})
}

// logoutHandler handles POST /api/auth/logout.
func (s *Server) logoutHandler(c *echo.Context) error {
	http.SetCookie(c.Response(), s.authenticator.ClearedCookie())
	return c.JSON(http.StatusOK, &OKResponse{OK: true})
}

// jwtHandler handles GET /api/jwt.
func (s *Server) jwtHandler(c *echo.Context) error {
	if s.issuer == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "key-pair authentication not configured")
	}
	tok, err := s.issuer.Token()
	if err != nil {
		slog.Error("Key-pair JWT generation failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate JWT: "+err.Error())
	}
	return c.JSON(http.StatusOK, &JWTResponse{Token: tok})
}
