// Package snowflake is the HTTP client for the Cortex agent run endpoint and
// the SQL statements API.
package snowflake

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/codeready-toolchain/agentrelay/pkg/config"
	"github.com/codeready-toolchain/agentrelay/pkg/masking"
	"github.com/codeready-toolchain/agentrelay/pkg/version"
)

const (
	agentRunPath   = "/api/v2/cortex/agent:run"
	statementsPath = "/api/v2/statements"
)

// Client talks to one Snowflake account with a bearer token.
type Client struct {
	baseURL    string
	token      string
	warehouse  string
	runTimeout time.Duration
	statements *config.StatementConfig
	httpClient *http.Client
	masker     *masking.Service
	logger     *slog.Logger
}

// NewClient creates a client from resolved configuration. The HTTP client
// has no overall timeout; every call is bounded by its context instead so
// that agent streams can stay open for minutes.
func NewClient(cfg *config.Config, masker *masking.Service) *Client {
	return &Client{
		baseURL:    cfg.Snowflake.URL,
		token:      cfg.Snowflake.Token,
		warehouse:  cfg.Snowflake.Warehouse,
		runTimeout: cfg.Agent.RunTimeout,
		statements: cfg.Statements,
		httpClient: &http.Client{},
		masker:     masker,
		logger:     slog.Default().With("component", "snowflake"),
	}
}

// RunAgent posts body to the agent run endpoint and returns the event
// stream. The caller must close the stream; closing it also releases the
// run timeout.
func (c *Client) RunAgent(ctx context.Context, body any) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, c.runTimeout)

	resp, err := c.do(ctx, http.MethodPost, agentRunPath, body, "text/event-stream")
	if err != nil {
		cancel()
		return nil, fmt.Errorf("agent run: %w", err)
	}
	c.logger.Info("Agent run response", "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer cancel()
		return nil, c.apiError("agent run", resp)
	}

	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

// Passthrough submits statement with the default parameters and returns
// the raw response for relaying. The caller must close the body.
func (c *Client) Passthrough(ctx context.Context, statement string) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.statements.Timeout)

	resp, err := c.do(ctx, http.MethodPost, statementsPath, c.statementRequest(statement, 1), "application/json")
	if err != nil {
		cancel()
		return nil, fmt.Errorf("statement passthrough: %w", err)
	}
	c.logger.Info("Statement passthrough response", "status", resp.StatusCode)

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// do builds and sends one authenticated JSON request.
func (c *Client) do(ctx context.Context, method, path string, body any, accept string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", version.UserAgent())
	c.setAuthHeader(req)

	c.logger.Debug("Snowflake request", "method", method, "path", path)
	return c.httpClient.Do(req)
}

// apiError reads and masks the body of a failed response. It does not
// close the body.
func (c *Client) apiError(op string, resp *http.Response) *APIError {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		c.logger.Warn("Failed to read error body", "op", op, "error", err)
	}
	body := c.masker.Mask(strings.TrimSpace(string(data)))
	c.logger.Error("Snowflake request failed", "op", op, "status", resp.StatusCode, "body", body)
	return &APIError{Op: op, StatusCode: resp.StatusCode, Body: body}
}

func (c *Client) setAuthHeader(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// cancelOnClose releases a request context when the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *cancelOnClose) Close() error {
	err := r.ReadCloser.Close()
	r.cancel()
	return err
}
