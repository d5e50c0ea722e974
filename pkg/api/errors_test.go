package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codeready-toolchain/agentrelay/pkg/auth"
	"github.com/codeready-toolchain/agentrelay/pkg/snowflake"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "invalid credentials", err: auth.ErrInvalidCredentials, wantCode: http.StatusUnauthorized},
		{name: "upstream status", err: fmt.Errorf("passthrough: %w", &snowflake.APIError{Op: "x", StatusCode: 500}), wantCode: http.StatusBadGateway},
		{name: "timeout", err: &url.Error{Op: "Post", URL: "https://x", Err: context.DeadlineExceeded}, wantCode: http.StatusGatewayTimeout},
		{name: "connection refused", err: &url.Error{Op: "Post", URL: "https://x", Err: errors.New("connection refused")}, wantCode: http.StatusBadGateway},
		{name: "unexpected", err: errors.New("boom"), wantCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, mapError(tt.err).Code)
		})
	}
}
