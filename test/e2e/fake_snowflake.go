package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/codeready-toolchain/agentrelay/pkg/snowflake"
)

// TestPAT is the bearer token the fake expects on every request.
const TestPAT = "e2e-pat-0123456789"

// AgentScriptEntry defines a single scripted agent:run response.
type AgentScriptEntry struct {
	// Frames is the raw event-stream text to send.
	Frames string

	// Status, when non-zero, fails the call with this status and Body.
	Status int
	Body   string

	// BlockUntilCancelled sends Frames, then holds the stream open until
	// the client goes away. Released is closed at that point.
	BlockUntilCancelled bool
	Released            chan struct{}
}

// StatementScript controls the statements API.
type StatementScript struct {
	// RunningPolls is the number of 202 answers before the result.
	RunningPolls int

	// FetchStatus, when non-zero, answers every fetch with this status.
	FetchStatus int
	FetchBody   string

	// Result is the document returned with 200.
	Result map[string]any

	// AcceptBatchAsync answers a multi-statement submission with 202 and
	// the batch handle only. The per-statement handles are listed in the
	// batch's own result once fetched.
	AcceptBatchAsync bool
}

// FakeSnowflake serves the agent run and statements endpoints from scripts
// and records what the relay sent.
type FakeSnowflake struct {
	mu          sync.Mutex
	agentScript []AgentScriptEntry
	agentIndex  int
	agentBodies []map[string]any
	statements  []snowflake.StatementRequest
	fetches     []string
	stmt        StatementScript
	pollsLeft   map[string]int
	batches     map[string][]string

	server *httptest.Server
	t      *testing.T
}

// NewFakeSnowflake starts the fake. It is closed on test cleanup.
func NewFakeSnowflake(t *testing.T) *FakeSnowflake {
	t.Helper()
	f := &FakeSnowflake{
		pollsLeft: make(map[string]int),
		batches:   make(map[string][]string),
		stmt: StatementScript{
			Result: map[string]any{"data": []any{[]any{"1"}}},
		},
		t: t,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v2/cortex/agent:run", f.handleAgentRun)
	mux.HandleFunc("POST /api/v2/statements", f.handleSubmit)
	mux.HandleFunc("GET /api/v2/statements/{handle}", f.handleFetch)
	f.server = httptest.NewServer(f.requireToken(mux))
	t.Cleanup(f.server.Close)
	return f
}

// URL is the fake's base URL.
func (f *FakeSnowflake) URL() string {
	return f.server.URL
}

// AddAgentResponse appends an agent:run response, consumed in order.
func (f *FakeSnowflake) AddAgentResponse(entry AgentScriptEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.agentScript = append(f.agentScript, entry)
}

// SetStatementScript replaces the statements behavior.
func (f *FakeSnowflake) SetStatementScript(s StatementScript) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stmt = s
}

// AgentBodies returns the decoded agent:run request bodies.
func (f *FakeSnowflake) AgentBodies() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.agentBodies...)
}

// Statements returns the submitted statement requests.
func (f *FakeSnowflake) Statements() []snowflake.StatementRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]snowflake.StatementRequest(nil), f.statements...)
}

// Fetches returns the fetched handles, one per poll.
func (f *FakeSnowflake) Fetches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetches...)
}

func (f *FakeSnowflake) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+TestPAT {
			http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeSnowflake) handleAgentRun(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.agentBodies = append(f.agentBodies, body)
	if f.agentIndex >= len(f.agentScript) {
		f.mu.Unlock()
		f.t.Errorf("unexpected agent:run call %d", f.agentIndex)
		http.Error(w, `{"message":"no script"}`, http.StatusInternalServerError)
		return
	}
	entry := f.agentScript[f.agentIndex]
	f.agentIndex++
	f.mu.Unlock()

	if entry.Status != 0 {
		w.WriteHeader(entry.Status)
		_, _ = io.WriteString(w, entry.Body)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, entry.Frames)
	_ = http.NewResponseController(w).Flush()

	if entry.BlockUntilCancelled {
		<-r.Context().Done()
		if entry.Released != nil {
			close(entry.Released)
		}
	}
}

func (f *FakeSnowflake) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req snowflake.StatementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	n := len(f.statements)
	f.statements = append(f.statements, req)
	polls := f.stmt.RunningPolls
	async := f.stmt.AcceptBatchAsync
	f.mu.Unlock()

	count, _ := strconv.Atoi(req.Parameters["MULTI_STATEMENT_COUNT"])
	resp := map[string]any{}
	status := http.StatusOK
	var handle string
	switch {
	case count > 1 && async:
		handle = fmt.Sprintf("h-%d", n)
		handles := make([]string, count)
		for i := range handles {
			handles[i] = fmt.Sprintf("h-%d-%d", n, i)
		}
		resp["statementHandle"] = handle
		status = http.StatusAccepted
		f.mu.Lock()
		f.batches[handle] = handles
		f.mu.Unlock()
	case count > 1:
		handles := make([]string, count)
		for i := range handles {
			handles[i] = fmt.Sprintf("h-%d-%d", n, i)
		}
		handle = handles[count-1]
		resp["statementHandle"] = handle
		resp["statementHandles"] = handles
	default:
		handle = fmt.Sprintf("h-%d", n)
		resp["statementHandle"] = handle
	}

	f.mu.Lock()
	f.pollsLeft[handle] = polls
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Fake-Handle", handle)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *FakeSnowflake) handleFetch(w http.ResponseWriter, r *http.Request) {
	handle := r.PathValue("handle")

	f.mu.Lock()
	f.fetches = append(f.fetches, handle)
	script := f.stmt
	left := f.pollsLeft[handle]
	if left > 0 {
		f.pollsLeft[handle] = left - 1
	}
	batch, isBatch := f.batches[handle]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case script.FetchStatus != 0:
		w.WriteHeader(script.FetchStatus)
		_, _ = io.WriteString(w, script.FetchBody)
	case left > 0:
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, `{"message":"Asynchronous execution in progress."}`)
	case isBatch:
		_ = json.NewEncoder(w).Encode(map[string]any{
			"statementHandle":  handle,
			"statementHandles": batch,
		})
	default:
		result := map[string]any{"statementHandle": handle}
		for k, v := range script.Result {
			result[k] = v
		}
		_ = json.NewEncoder(w).Encode(result)
	}
}

// Frame renders one event-stream frame for a script.
func Frame(event, data string) string {
	var b strings.Builder
	if event != "" {
		b.WriteString("event: " + event + "\n")
	}
	b.WriteString("data: " + data + "\n\n")
	return b.String()
}

// DoneFrame is the upstream end-of-stream frame.
const DoneFrame = "data: [DONE]\n\n"

// TextDelta renders a message.delta frame carrying one text item.
func TextDelta(text string) string {
	data, _ := json.Marshal(map[string]any{
		"delta": map[string]any{"content": []any{map[string]any{"type": "text", "text": text}}},
	})
	return Frame("message.delta", string(data))
}

// QueryDelta renders the frame in which the agent asks for sql to be run,
// optionally with analyst text.
func QueryDelta(sql, text string) string {
	result := map[string]any{"sql": sql}
	if text != "" {
		result["text"] = text
	}
	data, _ := json.Marshal(map[string]any{
		"delta": map[string]any{"content": []any{
			map[string]any{"type": "tool_use", "tool_use": map[string]any{
				"name": "sql_exec", "input": map[string]any{"query": sql},
			}},
			map[string]any{"type": "tool_results", "tool_results": map[string]any{
				"content": []any{map[string]any{"type": "json", "json": result}},
			}},
		}},
	})
	return Frame("message.delta", string(data))
}
