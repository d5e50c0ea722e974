package api

import (
	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"
)

const (
	headerRequestID = "X-Request-ID"

	contextKeyRequestID = "request_id"

	// maxRequestIDLength bounds a caller-supplied request ID.
	maxRequestIDLength = 128
)

// securityHeaders returns middleware that sets standard security response headers.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			return next(c)
		}
	}
}

// requestID returns middleware that assigns every request an ID, reusing a
// caller-supplied X-Request-ID when it is reasonably sized, and echoes it
// in the response.
func requestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			id := c.Request().Header.Get(headerRequestID)
			if id == "" || len(id) > maxRequestIDLength {
				id = uuid.NewString()
			}
			c.Set(contextKeyRequestID, id)
			c.Response().Header().Set(headerRequestID, id)
			return next(c)
		}
	}
}

// requestIDFrom returns the ID assigned by requestID, or "".
func requestIDFrom(c *echo.Context) string {
	id, _ := c.Get(contextKeyRequestID).(string)
	return id
}
