// Package query runs the SQL carried by a query instruction against the
// statements API and waits for its materialized result.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/codeready-toolchain/agentrelay/pkg/config"
	"github.com/codeready-toolchain/agentrelay/pkg/masking"
	"github.com/codeready-toolchain/agentrelay/pkg/snowflake"
)

// ErrEmptySQL indicates an instruction without SQL text.
var ErrEmptySQL = errors.New("empty SQL statement")

// StatementClient is the subset of the statements API used by Executor.
type StatementClient interface {
	SubmitStatement(ctx context.Context, statement string, count int) (*snowflake.SubmitResponse, error)
	GetStatement(ctx context.Context, handle string) (*snowflake.StatementStatus, error)
}

// Result is a completed statement.
type Result struct {
	// Handle identifies the statement that produced Data. It is what the
	// agent receives back instead of the SQL text.
	Handle string

	// Data is the statement result document as returned by the backend.
	Data map[string]any
}

// Executor submits statements and polls for their results. Submissions are
// rate-limited process-wide. Safe for concurrent use.
type Executor struct {
	client       StatementClient
	limiter      *rate.Limiter
	timeout      time.Duration
	pollInterval time.Duration
	masker       *masking.Service
	logger       *slog.Logger
}

// NewExecutor creates an executor from statement settings.
func NewExecutor(client StatementClient, cfg *config.StatementConfig, masker *masking.Service) *Executor {
	return &Executor{
		client:       client,
		limiter:      rate.NewLimiter(rate.Limit(cfg.MaxPerSecond), cfg.Burst),
		timeout:      cfg.Timeout,
		pollInterval: cfg.PollInterval,
		masker:       masker,
		logger:       slog.Default().With("component", "query"),
	}
}

// Execute runs sql on behalf of identity and returns its result. A
// non-empty identity scopes the statement to that tenant. Submission
// failures are not retried.
func (e *Executor) Execute(ctx context.Context, sql, identity string) (*Result, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, ErrEmptySQL
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for statement slot: %w", err)
	}

	statement, count := TenantStatement(sql, identity)
	e.logger.Info("Executing statement",
		"sql", e.masker.Mask(sql),
		"tenant_scoped", count > 1)

	submitted, err := e.client.SubmitStatement(ctx, statement, count)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	handle, err := e.resultHandle(ctx, submitted, count)
	if err != nil {
		return nil, err
	}

	data, err := e.awaitResult(ctx, handle)
	if err != nil {
		return nil, err
	}
	return &Result{Handle: handle, Data: data}, nil
}

// resultHandle picks the handle of the statement whose result is wanted.
// For a batch that lists no per-statement handles, the batch is awaited
// first and the handles are read from its result. The batch handle itself
// is never used as the result handle.
func (e *Executor) resultHandle(ctx context.Context, submitted *snowflake.SubmitResponse, count int) (string, error) {
	if count <= 1 {
		return submitted.ResultHandle()
	}

	if n := len(submitted.StatementHandles); n > 0 {
		if h := submitted.StatementHandles[n-1]; h != "" {
			return h, nil
		}
		return "", snowflake.ErrNoStatementHandle
	}
	if submitted.StatementHandle == "" {
		return "", snowflake.ErrNoStatementHandle
	}

	e.logger.Debug("Awaiting statement batch", "handle", submitted.StatementHandle)
	batch, err := e.awaitResult(ctx, submitted.StatementHandle)
	if err != nil {
		return "", err
	}
	return snowflake.BatchResultHandle(batch)
}

// awaitResult fetches the statement result, polling while the backend
// reports it as still running. ctx carries the statement timeout.
func (e *Executor) awaitResult(ctx context.Context, handle string) (map[string]any, error) {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		status, err := e.client.GetStatement(ctx, handle)
		if err != nil {
			return nil, err
		}
		if !status.Running {
			e.logger.Info("Statement completed", "handle", handle, "fetches", attempt)
			return status.Result, nil
		}

		e.logger.Debug("Statement still running", "handle", handle, "fetches", attempt)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("statement %s did not complete within %s: %w", handle, e.timeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

// TenantStatement prefixes sql with a tenant scoping statement when
// identity is set, returning the batch text and its statement count.
func TenantStatement(sql, identity string) (string, int) {
	if identity == "" {
		return sql, 1
	}
	return fmt.Sprintf("SET TENANT = %s; %s", quoteLiteral(identity), sql), 2
}

// quoteLiteral renders s as a single-quoted SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
