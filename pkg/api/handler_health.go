package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/agentrelay/pkg/version"
)

const healthStatusHealthy = "healthy"

// healthHandler handles GET /health.
// Returns a minimal, safe response suitable for unauthenticated access.
// The upstream agent service is not probed so that an outage there does not
// get the relay restarted.
func (s *Server) healthHandler(c *echo.Context) error {
	resp := &HealthResponse{
		Status:  healthStatusHealthy,
		Version: version.Full(),
	}
	if s.connManager != nil {
		resp.ActiveConnections = s.connManager.ActiveConnections()
	}
	return c.JSON(http.StatusOK, resp)
}
