package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/agentrelay/pkg/orchestrator"
	"github.com/codeready-toolchain/agentrelay/pkg/sse"
)

// runAgentHandler handles POST /api/agent/run. The orchestrated run is
// written as an event stream, flushed after every event.
func (s *Server) runAgentHandler(c *echo.Context) error {
	var req RunAgentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Messages == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "messages required")
	}

	reqID := requestIDFrom(c)
	logger := slog.With("request_id", reqID)

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	stream := s.runner.Run(ctx, orchestrator.RunRequest{
		Messages:  req.Messages,
		Identity:  s.extractIdentity(c),
		RequestID: reqID,
	})

	w := c.Response()
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	_ = rc.Flush()

	for ev := range stream {
		err := sse.Encode(w, ev)
		if err == nil {
			if err = rc.Flush(); errors.Is(err, http.ErrNotSupported) {
				err = nil
			}
		}
		if err != nil {
			logger.Info("Client went away during agent run", "error", err)
			cancel()
			for range stream {
			}
			return nil
		}
	}
	return nil
}
