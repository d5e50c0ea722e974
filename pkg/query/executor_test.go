package query

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentrelay/pkg/config"
	"github.com/codeready-toolchain/agentrelay/pkg/snowflake"
)

type submitCall struct {
	statement string
	count     int
}

// fakeStatements is an in-memory StatementClient. Each fetch consumes the
// next status; the last one repeats.
type fakeStatements struct {
	mu        sync.Mutex
	submit    *snowflake.SubmitResponse
	submitErr error
	statuses  []*snowflake.StatementStatus
	fetchErr  error

	submits []submitCall
	fetched []string
}

func (f *fakeStatements) SubmitStatement(_ context.Context, statement string, count int) (*snowflake.SubmitResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, submitCall{statement: statement, count: count})
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.submit, nil
}

func (f *fakeStatements) GetStatement(_ context.Context, handle string) (*snowflake.StatementStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, handle)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	status := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return status, nil
}

func newTestExecutor(client StatementClient) *Executor {
	cfg := config.DefaultStatementConfig()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.Timeout = time.Second
	return NewExecutor(client, cfg, nil)
}

func completed(data map[string]any) *snowflake.StatementStatus {
	return &snowflake.StatementStatus{Result: data}
}

func TestExecute(t *testing.T) {
	tests := []struct {
		name          string
		identity      string
		submit        *snowflake.SubmitResponse
		wantStatement string
		wantCount     int
		wantHandle    string
	}{
		{
			name:          "no identity",
			submit:        &snowflake.SubmitResponse{StatementHandle: "c"},
			wantStatement: "SELECT 1",
			wantCount:     1,
			wantHandle:    "c",
		},
		{
			name:          "tenant scoped takes second handle",
			identity:      "acme",
			submit:        &snowflake.SubmitResponse{StatementHandles: []string{"a", "b"}},
			wantStatement: "SET TENANT = 'acme'; SELECT 1",
			wantCount:     2,
			wantHandle:    "b",
		},
		{
			name:          "identity quotes are escaped",
			identity:      "o'brien",
			submit:        &snowflake.SubmitResponse{StatementHandles: []string{"a", "b"}},
			wantStatement: "SET TENANT = 'o''brien'; SELECT 1",
			wantCount:     2,
			wantHandle:    "b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeStatements{
				submit:   tt.submit,
				statuses: []*snowflake.StatementStatus{completed(map[string]any{"data": []any{}})},
			}

			result, err := newTestExecutor(fake).Execute(context.Background(), "SELECT 1", tt.identity)
			require.NoError(t, err)

			assert.Equal(t, tt.wantHandle, result.Handle)
			assert.Equal(t, map[string]any{"data": []any{}}, result.Data)
			require.Len(t, fake.submits, 1)
			assert.Equal(t, submitCall{statement: tt.wantStatement, count: tt.wantCount}, fake.submits[0])
			assert.Equal(t, []string{tt.wantHandle}, fake.fetched)
		})
	}
}

func TestExecutePollsWhileRunning(t *testing.T) {
	fake := &fakeStatements{
		submit: &snowflake.SubmitResponse{StatementHandle: "h"},
		statuses: []*snowflake.StatementStatus{
			{Running: true},
			{Running: true},
			completed(map[string]any{"numRows": 3}),
		},
	}

	result, err := newTestExecutor(fake).Execute(context.Background(), "SELECT 1", "")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"numRows": 3}, result.Data)
	assert.Equal(t, []string{"h", "h", "h"}, fake.fetched)
}

func TestExecuteTenantBatchAcceptedAsynchronously(t *testing.T) {
	fake := &fakeStatements{
		submit: &snowflake.SubmitResponse{StatementHandle: "h-batch"},
		statuses: []*snowflake.StatementStatus{
			{Running: true},
			completed(map[string]any{"statementHandles": []any{"h-set", "h-query"}}),
			completed(map[string]any{"data": []any{[]any{"42"}}}),
		},
	}

	result, err := newTestExecutor(fake).Execute(context.Background(), "SELECT 42", "alice")
	require.NoError(t, err)

	assert.Equal(t, "h-query", result.Handle)
	assert.Equal(t, map[string]any{"data": []any{[]any{"42"}}}, result.Data)
	assert.Equal(t, []string{"h-batch", "h-batch", "h-query"}, fake.fetched)
}

func TestExecuteTenantBatchWithoutStatementHandles(t *testing.T) {
	tests := []struct {
		name        string
		submit      *snowflake.SubmitResponse
		batch       map[string]any
		wantFetched []string
	}{
		{
			name:        "batch result lists no handles",
			submit:      &snowflake.SubmitResponse{StatementHandle: "h-batch"},
			batch:       map[string]any{"data": []any{}},
			wantFetched: []string{"h-batch"},
		},
		{
			name:   "last listed handle is empty",
			submit: &snowflake.SubmitResponse{StatementHandle: "h-batch", StatementHandles: []string{"h-set", ""}},
		},
		{
			name:   "no handle at all",
			submit: &snowflake.SubmitResponse{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeStatements{
				submit:   tt.submit,
				statuses: []*snowflake.StatementStatus{completed(tt.batch)},
			}

			_, err := newTestExecutor(fake).Execute(context.Background(), "SELECT 1", "alice")
			require.Error(t, err)
			assert.ErrorIs(t, err, snowflake.ErrNoStatementHandle)
			assert.Equal(t, tt.wantFetched, fake.fetched)
		})
	}
}

func TestExecutePollTimeout(t *testing.T) {
	fake := &fakeStatements{
		submit:   &snowflake.SubmitResponse{StatementHandle: "h"},
		statuses: []*snowflake.StatementStatus{{Running: true}},
	}
	exec := newTestExecutor(fake)
	exec.timeout = 30 * time.Millisecond

	_, err := exec.Execute(context.Background(), "SELECT 1", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "did not complete")
}

func TestExecuteErrors(t *testing.T) {
	submitErr := &snowflake.APIError{Op: "submit statement", StatusCode: 400}
	fetchErr := errors.New("connection reset")

	tests := []struct {
		name        string
		sql         string
		fake        *fakeStatements
		wantErr     error
		wantSubmits int
	}{
		{
			name:    "empty sql",
			sql:     "  \n",
			fake:    &fakeStatements{},
			wantErr: ErrEmptySQL,
		},
		{
			name:        "submit failure is not retried",
			sql:         "SELECT 1",
			fake:        &fakeStatements{submitErr: submitErr},
			wantErr:     submitErr,
			wantSubmits: 1,
		},
		{
			name:        "no handle",
			sql:         "SELECT 1",
			fake:        &fakeStatements{submit: &snowflake.SubmitResponse{}},
			wantErr:     snowflake.ErrNoStatementHandle,
			wantSubmits: 1,
		},
		{
			name:        "fetch failure",
			sql:         "SELECT 1",
			fake:        &fakeStatements{submit: &snowflake.SubmitResponse{StatementHandle: "h"}, fetchErr: fetchErr},
			wantErr:     fetchErr,
			wantSubmits: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestExecutor(tt.fake).Execute(context.Background(), tt.sql, "")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Len(t, tt.fake.submits, tt.wantSubmits)
		})
	}
}

func TestExecuteCancelledWhileWaitingForSlot(t *testing.T) {
	fake := &fakeStatements{submit: &snowflake.SubmitResponse{StatementHandle: "h"}}
	cfg := config.DefaultStatementConfig()
	cfg.MaxPerSecond = 0.001
	cfg.Burst = 1
	exec := NewExecutor(fake, cfg, nil)
	exec.limiter.Allow() // consume the only token

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := exec.Execute(ctx, "SELECT 1", "")
	require.Error(t, err)
	assert.Empty(t, fake.submits)
}

func TestTenantStatement(t *testing.T) {
	stmt, count := TenantStatement("SELECT 1", "")
	assert.Equal(t, "SELECT 1", stmt)
	assert.Equal(t, 1, count)

	stmt, count = TenantStatement("SELECT 1", "a'; DROP TABLE t; --")
	assert.Equal(t, "SET TENANT = 'a''; DROP TABLE t; --'; SELECT 1", stmt)
	assert.Equal(t, 2, count)
}
