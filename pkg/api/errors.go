package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/agentrelay/pkg/auth"
	"github.com/codeready-toolchain/agentrelay/pkg/snowflake"
)

// mapError maps domain and transport errors to HTTP error responses.
// Messages of upstream errors are already masked by the client.
func mapError(err error) *echo.HTTPError {
	if errors.Is(err, auth.ErrInvalidCredentials) {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	}
	var apiErr *snowflake.APIError
	if errors.As(err, &apiErr) {
		return echo.NewHTTPError(http.StatusBadGateway, apiErr.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return echo.NewHTTPError(http.StatusGatewayTimeout, "upstream request timed out")
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		slog.Warn("Upstream request failed", "error", err)
		return echo.NewHTTPError(http.StatusBadGateway, "upstream request failed")
	}

	// Unexpected error
	slog.Error("Unexpected error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
