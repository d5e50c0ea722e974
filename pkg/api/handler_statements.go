package api

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"
)

// hopByHopHeaders are connection-scoped and never relayed.
var hopByHopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// statementsHandler handles POST /api/statements. The upstream status,
// headers and body are relayed unchanged.
func (s *Server) statementsHandler(c *echo.Context) error {
	var req StatementRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Statement) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "statement required")
	}

	resp, err := s.statements.Passthrough(c.Request().Context(), req.Statement)
	if err != nil {
		return mapError(err)
	}
	defer resp.Body.Close()

	w := c.Response()
	for name, values := range resp.Header {
		if hopByHopHeaders[http.CanonicalHeaderKey(name)] {
			continue
		}
		w.Header()[name] = values
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		slog.Warn("Statement passthrough body copy failed",
			"request_id", requestIDFrom(c), "error", err)
	}
	return nil
}
