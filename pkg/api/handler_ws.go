package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/agentrelay/pkg/orchestrator"
	"github.com/codeready-toolchain/agentrelay/pkg/sse"
)

// wsHandler upgrades HTTP connections to WebSocket and delegates to
// ConnectionManager. Every run started on the connection uses the identity
// resolved at upgrade time.
func (s *Server) wsHandler(c *echo.Context) error {
	if s.connManager == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "WebSocket not available")
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		OriginPatterns: originPatterns(s.cfg.Server.AllowedOrigins),
	})
	if err != nil {
		// Accept has already written the rejection.
		return nil
	}

	identity := s.extractIdentity(c)
	connReqID := requestIDFrom(c)
	run := func(ctx context.Context, messages []json.RawMessage) <-chan sse.Event {
		return s.runner.Run(ctx, orchestrator.RunRequest{
			Messages:  messages,
			Identity:  identity,
			RequestID: connReqID + "/" + uuid.NewString()[:8],
		})
	}

	// HandleConnection blocks until the WebSocket closes.
	s.connManager.HandleConnection(c.Request().Context(), conn, run)
	return nil
}

// originPatterns converts allowed origins to the host patterns websocket
// matches against the Origin header.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, origin := range origins {
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			continue
		}
		patterns = append(patterns, u.Host)
	}
	return patterns
}
