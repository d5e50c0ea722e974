// Package e2e provides end-to-end test infrastructure for the relay
// pipeline: real configuration, client, executor, orchestrator and HTTP
// server against a scripted upstream.
package e2e

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentrelay/pkg/api"
	"github.com/codeready-toolchain/agentrelay/pkg/auth"
	"github.com/codeready-toolchain/agentrelay/pkg/config"
	"github.com/codeready-toolchain/agentrelay/pkg/events"
	"github.com/codeready-toolchain/agentrelay/pkg/masking"
	"github.com/codeready-toolchain/agentrelay/pkg/orchestrator"
	"github.com/codeready-toolchain/agentrelay/pkg/query"
	"github.com/codeready-toolchain/agentrelay/pkg/snowflake"
)

// TestOrigin is the browser origin allowed by the test configuration.
const TestOrigin = "http://localhost:3000"

// TestApp boots a complete relay instance for e2e testing.
type TestApp struct {
	Config      *config.Config
	Snowflake   *FakeSnowflake
	ConnManager *events.ConnectionManager
	Server      *api.Server

	// Runtime
	BaseURL string // e.g. "http://127.0.0.1:54321"
	WSURL   string // e.g. "ws://127.0.0.1:54321/api/agent/ws"

	t *testing.T
}

// testAppConfig holds options accumulated before creating the TestApp.
type testAppConfig struct {
	pollInterval     time.Duration
	statementTimeout time.Duration
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithPollInterval sets statements.poll_interval.
func WithPollInterval(d time.Duration) TestAppOption {
	return func(c *testAppConfig) { c.pollInterval = d }
}

// WithStatementTimeout sets statements.timeout.
func WithStatementTimeout(d time.Duration) TestAppOption {
	return func(c *testAppConfig) { c.statementTimeout = d }
}

const relayYAMLTemplate = `
snowflake:
  url: "{{.E2E_SNOWFLAKE_URL}}"
  token_env: E2E_SNOWFLAKE_PAT
  warehouse: E2E_WH
  account: e2e-acct
  user: relay
server:
  allowed_origins:
    - %s
statements:
  timeout: %s
  poll_interval: %s
  max_per_second: 100
  burst: 10
auth:
  users:
    - username: acme
      password: "{{.E2E_ACME_PASSWORD}}"
    - username: "o'brien"
      password: irish
`

const agentModelYAML = `
models:
  orchestration: auto
tools:
  - tool_spec:
      type: sql_exec
      name: sql_exec
`

// NewTestApp creates and starts a full relay test instance.
// Shutdown is registered via t.Cleanup automatically.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	tc := &testAppConfig{
		pollInterval:     20 * time.Millisecond,
		statementTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(tc)
	}

	// 1. Scripted upstream.
	fake := NewFakeSnowflake(t)

	// 2. Configuration, loaded the same way as in production.
	configDir := t.TempDir()
	relayYAML := fmt.Sprintf(relayYAMLTemplate, TestOrigin, tc.statementTimeout, tc.pollInterval)
	require.NoError(t, os.WriteFile(filepath.Join(configDir, config.RelayFile), []byte(relayYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "agent_model.yaml"), []byte(agentModelYAML), 0o644))
	t.Setenv("E2E_SNOWFLAKE_URL", fake.URL())
	t.Setenv("E2E_SNOWFLAKE_PAT", TestPAT)
	t.Setenv("E2E_ACME_PASSWORD", "acme-secret")

	ctx := context.Background()
	cfg, err := config.Initialize(ctx, configDir)
	require.NoError(t, err)

	// 3. Relay pipeline.
	maskingService := masking.NewService(cfg.Masking)
	client := snowflake.NewClient(cfg, maskingService)
	executor := query.NewExecutor(client, cfg.Statements, maskingService)
	orch := orchestrator.New(client, executor, cfg.AgentModel, cfg.Agent.ToolName, maskingService)

	// 4. HTTP server on random port.
	connManager := events.NewConnectionManager(5 * time.Second)
	server := api.NewServer(cfg, orch, client,
		auth.NewAuthenticator(cfg.Auth),
		auth.NewKeyPairSigner(cfg.Snowflake),
		connManager)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		_ = server.StartWithListener(ln)
	}()

	addr := ln.Addr().String()
	app := &TestApp{
		Config:      cfg,
		Snowflake:   fake,
		ConnManager: connManager,
		Server:      server,
		BaseURL:     fmt.Sprintf("http://%s", addr),
		WSURL:       fmt.Sprintf("ws://%s/api/agent/ws", addr),
		t:           t,
	}

	app.waitReady()
	t.Cleanup(app.shutdown)
	return app
}

// waitReady blocks until /health answers.
func (app *TestApp) waitReady() {
	app.t.Helper()
	require.Eventually(app.t, func() bool {
		resp, err := http.Get(app.BaseURL + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond, "server did not become ready")
}

func (app *TestApp) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Server.Shutdown(ctx); err != nil {
		app.t.Logf("server shutdown: %v", err)
	}
}
