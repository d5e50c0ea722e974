package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentrelay/pkg/config"
	"github.com/codeready-toolchain/agentrelay/pkg/events"
	"github.com/codeready-toolchain/agentrelay/pkg/masking"
	"github.com/codeready-toolchain/agentrelay/pkg/query"
	"github.com/codeready-toolchain/agentrelay/pkg/snowflake"
	"github.com/codeready-toolchain/agentrelay/pkg/sse"
)

const (
	textFrame    = "event: message.delta\ndata: {\"delta\":{\"content\":[{\"type\":\"text\",\"text\":\"Looking at sales\"}]}}\n\n"
	traceFrame   = "event: execution_trace\ndata: {\"span\":\"x\"}\n\n"
	emptyFrame   = "event: message.delta\ndata: {\"delta\":{\"content\":[]}}\n\n"
	triggerFrame = "event: message.delta\ndata: {\"delta\":{\"content\":[{},{\"tool_results\":{\"content\":[{\"json\":{\"sql\":\"SELECT 1\"}}]}}]}}\n\n"
	doneFrame    = "data: [DONE]\n\n"

	secondaryFrame = "event: response.text.delta\ndata: {\"delta\":{\"content\":[{\"type\":\"text\",\"text\":\"Revenue grew\"}]}}\n\n"
)

// agentFunc adapts a function to AgentClient.
type agentFunc func(ctx context.Context, body any) (io.ReadCloser, error)

func (f agentFunc) RunAgent(ctx context.Context, body any) (io.ReadCloser, error) {
	return f(ctx, body)
}

// trackedStream records whether the orchestrator closed it.
type trackedStream struct {
	io.Reader
	closed atomic.Bool
}

func (s *trackedStream) Close() error {
	s.closed.Store(true)
	return nil
}

// scriptedAgent serves one wire script per call and records request bodies.
type scriptedAgent struct {
	mu      sync.Mutex
	scripts []string
	errs    map[int]error
	bodies  []string
	streams []*trackedStream
}

func (a *scriptedAgent) RunAgent(_ context.Context, body any) (io.ReadCloser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	call := len(a.bodies)
	a.bodies = append(a.bodies, string(data))

	if err := a.errs[call]; err != nil {
		return nil, err
	}
	if call >= len(a.scripts) {
		return nil, fmt.Errorf("unexpected agent call %d", call)
	}
	stream := &trackedStream{Reader: strings.NewReader(a.scripts[call])}
	a.streams = append(a.streams, stream)
	return stream, nil
}

type executeCall struct {
	sql      string
	identity string
}

type fakeExecutor struct {
	mu     sync.Mutex
	calls  []executeCall
	result *query.Result
	err    error
}

func (e *fakeExecutor) Execute(_ context.Context, sql, identity string) (*query.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, executeCall{sql: sql, identity: identity})
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

func newTestOrchestrator(agent AgentClient, exec QueryExecutor) *Orchestrator {
	model := config.NewAgentModel(map[string]any{
		"models": map[string]any{"orchestration": "auto"},
	})
	masker := masking.NewService(&config.MaskingConfig{Enabled: true, PatternGroup: "credentials"})
	return New(agent, exec, model, "sql_exec", masker)
}

func tableResult() *query.Result {
	return &query.Result{
		Handle: "h-42",
		Data:   map[string]any{"statementHandle": "h-42", "data": []any{[]any{"1"}}},
	}
}

func userMessages() []json.RawMessage {
	return []json.RawMessage{json.RawMessage(`{"role":"user","content":[{"type":"text","text":"revenue by region?"}]}`)}
}

func collect(t *testing.T, ch <-chan sse.Event) []sse.Event {
	t.Helper()
	var out []sse.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("run did not finish")
			return nil
		}
	}
}

func names(evs []sse.Event) []string {
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.Name
	}
	return out
}

func dataJSON(t *testing.T, ev sse.Event) string {
	t.Helper()
	data, err := json.Marshal(ev.Data)
	require.NoError(t, err)
	return string(data)
}

func countTerminal(evs []sse.Event) int {
	n := 0
	for _, ev := range evs {
		if events.IsTerminal(ev) {
			n++
		}
	}
	return n
}

func TestRunWithoutInstruction(t *testing.T) {
	agent := &scriptedAgent{scripts: []string{textFrame + traceFrame + emptyFrame + "data: not json\n\n" + doneFrame}}
	exec := &fakeExecutor{}

	out := collect(t, newTestOrchestrator(agent, exec).Run(context.Background(), RunRequest{Messages: userMessages()}))

	require.Equal(t, []string{"message.delta", "", "done"}, names(out))
	assert.JSONEq(t, `{"delta":{"content":[{"type":"text","text":"Looking at sales"}]}}`, dataJSON(t, out[0]))
	assert.Equal(t, "not json", out[1].Data)
	assert.True(t, out[2].IsDone())

	assert.Empty(t, exec.calls)
	require.Len(t, agent.bodies, 1)
	assert.Contains(t, agent.bodies[0], `"revenue by region?"`)
	assert.Contains(t, agent.bodies[0], `"orchestration":"auto"`)
	assert.True(t, agent.streams[0].closed.Load())
}

func TestRunWithInstruction(t *testing.T) {
	agent := &scriptedAgent{scripts: []string{
		textFrame + triggerFrame + textFrame + doneFrame,
		secondaryFrame + traceFrame + doneFrame,
	}}
	exec := &fakeExecutor{result: tableResult()}

	out := collect(t, newTestOrchestrator(agent, exec).Run(context.Background(), RunRequest{Messages: userMessages()}))

	require.Equal(t, []string{
		"message.delta",
		events.EventTypeTableResult,
		events.EventTypeNewAssistantMessage,
		"response.text.delta",
		events.EventTypeDone,
	}, names(out))
	assert.Equal(t, tableResult().Data, out[1].Data)
	assert.JSONEq(t, `{"message":"Starting data-to-analytics"}`, dataJSON(t, out[2]))
	assert.JSONEq(t, `{"delta":{"content":[{"type":"text","text":"Revenue grew"}]}}`, dataJSON(t, out[3]))
	assert.Equal(t, 1, countTerminal(out))

	assert.Equal(t, []executeCall{{sql: "SELECT 1"}}, exec.calls)
	require.Len(t, agent.streams, 2)
	assert.True(t, agent.streams[0].closed.Load())
	assert.True(t, agent.streams[1].closed.Load())

	for _, ev := range out {
		assert.NotContains(t, dataJSON(t, ev), "SELECT 1")
	}
}

func TestRunWithPreamble(t *testing.T) {
	trigger := "event: message.delta\ndata: {\"delta\":{\"content\":[{\"type\":\"tool_use\",\"tool_use\":{\"name\":\"sql_exec\",\"input\":{\"sql\":\"SELECT 2\"}}},{\"type\":\"tool_results\",\"tool_results\":{\"content\":[{\"type\":\"json\",\"json\":{\"sql\":\"SELECT 2\",\"text\":\"Here is revenue by region.\"}}]}}]}}\n\n"
	agent := &scriptedAgent{scripts: []string{trigger + doneFrame, doneFrame}}
	exec := &fakeExecutor{result: tableResult()}

	out := collect(t, newTestOrchestrator(agent, exec).Run(context.Background(), RunRequest{Messages: userMessages(), Identity: "acme"}))

	require.Equal(t, []string{
		events.EventTypeMessageDelta,
		events.EventTypeTableResult,
		events.EventTypeNewAssistantMessage,
		events.EventTypeDone,
	}, names(out))
	assert.JSONEq(t,
		`{"id":"msg_000","object":"message.delta","delta":{"content":[{"type":"text","text":"Here is revenue by region.\n\n---\n\n"}]}}`,
		dataJSON(t, out[0]))
	assert.Equal(t, []executeCall{{sql: "SELECT 2", identity: "acme"}}, exec.calls)
}

func TestFollowUpHistory(t *testing.T) {
	trigger := "event: message.delta\ndata: {\"delta\":{\"content\":[{\"type\":\"tool_use\",\"tool_use\":{\"name\":\"sql_exec\",\"input\":{\"sql\":\"SELECT secret_col\"}}},{\"type\":\"tool_results\",\"tool_results\":{\"content\":[{\"type\":\"json\",\"json\":{\"sql\":\"SELECT secret_col\"}}]}}]}}\n\n"
	agent := &scriptedAgent{scripts: []string{textFrame + trigger, doneFrame}}
	exec := &fakeExecutor{result: tableResult()}

	collect(t, newTestOrchestrator(agent, exec).Run(context.Background(), RunRequest{Messages: userMessages()}))

	require.Len(t, agent.bodies, 2)
	followUp := agent.bodies[1]
	assert.NotContains(t, followUp, "SELECT secret_col")
	assert.NotContains(t, followUp, `"tool_use"`)

	var body struct {
		Messages []json.RawMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal([]byte(followUp), &body))
	require.Len(t, body.Messages, 3)
	assert.JSONEq(t, string(userMessages()[0]), string(body.Messages[0]))
	assert.JSONEq(t, `{"role":"assistant","content":[
		{"type":"text","text":"Looking at sales"},
		{"type":"tool_results","tool_results":{"content":[{"type":"json","json":{"sql":"REDACTED"}}]}}
	]}`, string(body.Messages[1]))
	assert.JSONEq(t, `{"role":"user","content":[{"type":"tool_results","tool_results":{
		"name":"sql_exec","content":[{"type":"json","json":{"query_id":"h-42"}}]}}]}`, string(body.Messages[2]))
}

func TestRunOnlyFirstInstructionTriggers(t *testing.T) {
	agent := &scriptedAgent{scripts: []string{triggerFrame + triggerFrame + doneFrame, doneFrame}}
	exec := &fakeExecutor{result: tableResult()}

	out := collect(t, newTestOrchestrator(agent, exec).Run(context.Background(), RunRequest{}))

	assert.Len(t, exec.calls, 1)
	assert.Len(t, agent.bodies, 2)
	assert.Equal(t, 1, countTerminal(out))
}

func TestRunStreamEndsWithoutSentinel(t *testing.T) {
	t.Run("primary", func(t *testing.T) {
		agent := &scriptedAgent{scripts: []string{textFrame}}
		out := collect(t, newTestOrchestrator(agent, &fakeExecutor{}).Run(context.Background(), RunRequest{}))
		assert.Equal(t, []string{"message.delta", "done"}, names(out))
	})

	t.Run("secondary", func(t *testing.T) {
		agent := &scriptedAgent{scripts: []string{triggerFrame, secondaryFrame}}
		out := collect(t, newTestOrchestrator(agent, &fakeExecutor{result: tableResult()}).Run(context.Background(), RunRequest{}))
		assert.Equal(t, []string{
			events.EventTypeTableResult,
			events.EventTypeNewAssistantMessage,
			"response.text.delta",
			events.EventTypeDone,
		}, names(out))
	})
}

func TestRunRelaysUpstreamErrorFrame(t *testing.T) {
	upstreamErr := "event: error\ndata: {\"code\":\"399504\",\"message\":\"tool timed out\"}\n\n"
	agent := &scriptedAgent{scripts: []string{upstreamErr + textFrame + doneFrame}}

	out := collect(t, newTestOrchestrator(agent, &fakeExecutor{}).Run(context.Background(), RunRequest{}))

	require.Equal(t, []string{events.EventTypeError, "message.delta", events.EventTypeDone}, names(out))
	assert.JSONEq(t, `{"code":"399504","message":"tool timed out"}`, dataJSON(t, out[0]))
	assert.False(t, events.IsTerminal(out[0]))
	assert.Equal(t, 1, countTerminal(out))
	assert.True(t, events.IsTerminal(out[2]))
}

func TestRunFailures(t *testing.T) {
	upstreamErr := &snowflake.APIError{Op: "agent run", StatusCode: 401, Body: `{"message":"bad"}`}

	tests := []struct {
		name      string
		agent     *scriptedAgent
		exec      *fakeExecutor
		wantNames []string
		wantError string
	}{
		{
			name:      "primary call rejected",
			agent:     &scriptedAgent{errs: map[int]error{0: upstreamErr}},
			exec:      &fakeExecutor{},
			wantNames: []string{events.EventTypeError},
			wantError: "agent run: upstream returned HTTP 401",
		},
		{
			name:      "query fails",
			agent:     &scriptedAgent{scripts: []string{textFrame + triggerFrame}},
			exec:      &fakeExecutor{err: errors.New("submit rejected: password=hunter2")},
			wantNames: []string{"message.delta", events.EventTypeError},
			wantError: "execute query: submit rejected: password=__MASKED_PASSWORD__",
		},
		{
			name:      "no statement handle",
			agent:     &scriptedAgent{scripts: []string{triggerFrame}},
			exec:      &fakeExecutor{err: snowflake.ErrNoStatementHandle},
			wantNames: []string{events.EventTypeError},
			wantError: "statement response has no statement handle",
		},
		{
			name:  "follow-up call rejected",
			agent: &scriptedAgent{scripts: []string{triggerFrame}, errs: map[int]error{1: upstreamErr}},
			exec:  &fakeExecutor{result: tableResult()},
			wantNames: []string{
				events.EventTypeTableResult,
				events.EventTypeNewAssistantMessage,
				events.EventTypeError,
			},
			wantError: "follow-up agent run",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := collect(t, newTestOrchestrator(tt.agent, tt.exec).Run(context.Background(), RunRequest{}))

			require.Equal(t, tt.wantNames, names(out))
			last := out[len(out)-1]
			payload, ok := last.Data.(*events.ErrorPayload)
			require.True(t, ok)
			assert.Contains(t, payload.Error, tt.wantError)
			assert.NotContains(t, payload.Error, "hunter2")
			assert.Equal(t, 1, countTerminal(out))
		})
	}
}

func TestRunCancelledReleasesUpstream(t *testing.T) {
	pr, pw := io.Pipe()
	stream := &trackedStream{Reader: pr}
	agent := agentFunc(func(ctx context.Context, _ any) (io.ReadCloser, error) {
		go func() {
			<-ctx.Done()
			_ = pw.CloseWithError(ctx.Err())
		}()
		return stream, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	ch := newTestOrchestrator(agent, &fakeExecutor{}).Run(ctx, RunRequest{})

	go func() { _, _ = io.WriteString(pw, textFrame) }()
	first := <-ch
	assert.Equal(t, "message.delta", first.Name)

	cancel()
	rest := collect(t, ch)
	assert.Empty(t, rest)
	assert.True(t, stream.closed.Load())
}

func TestRunConcurrentSessionsAreIsolated(t *testing.T) {
	agent := agentFunc(func(_ context.Context, body any) (io.ReadCloser, error) {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		var req struct {
			Messages []json.RawMessage `json:"messages"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		var first struct {
			Tag string `json:"tag"`
		}
		if err := json.Unmarshal(req.Messages[0], &first); err != nil {
			return nil, err
		}

		if len(req.Messages) == 1 {
			primary := fmt.Sprintf("data: {\"delta\":{\"content\":[{\"type\":\"text\",\"text\":\"own-%s\"}]}}\n\n", first.Tag) + triggerFrame
			return io.NopCloser(strings.NewReader(primary)), nil
		}

		// Follow-up call: echo the replayed assistant turn back as a frame.
		assistant, err := json.Marshal(string(req.Messages[1]))
		if err != nil {
			return nil, err
		}
		return io.NopCloser(strings.NewReader("event: echo\ndata: " + string(assistant) + "\n\n" + doneFrame)), nil
	})
	orch := newTestOrchestrator(agent, &fakeExecutor{result: tableResult()})

	const runs = 20
	var wg sync.WaitGroup
	results := make([][]sse.Event, runs)
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := json.RawMessage(fmt.Sprintf(`{"role":"user","tag":"%d","content":[]}`, i))
			for ev := range orch.Run(context.Background(), RunRequest{Messages: []json.RawMessage{msg}}) {
				results[i] = append(results[i], ev)
			}
		}(i)
	}
	wg.Wait()

	for i, out := range results {
		var echoed string
		for _, ev := range out {
			if ev.Name == "echo" {
				echoed, _ = ev.Data.(string)
			}
		}
		require.NotEmpty(t, echoed, "run %d", i)
		assert.Contains(t, echoed, fmt.Sprintf("own-%d\"", i))
		assert.Equal(t, 1, strings.Count(echoed, "own-"), "run %d saw foreign content", i)
		assert.Equal(t, 1, countTerminal(out))
	}
}
