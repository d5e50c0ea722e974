package orchestrator

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseCanTransition(t *testing.T) {
	tests := []struct {
		from Phase
		to   Phase
		want bool
	}{
		{PhaseStreamingPrimary, PhaseExecutingQuery, true},
		{PhaseStreamingPrimary, PhaseDone, true},
		{PhaseStreamingPrimary, PhaseStreamingSecondary, false},
		{PhaseExecutingQuery, PhaseStreamingSecondary, true},
		{PhaseExecutingQuery, PhaseDone, true},
		{PhaseExecutingQuery, PhaseStreamingPrimary, false},
		{PhaseStreamingSecondary, PhaseDone, true},
		{PhaseStreamingSecondary, PhaseExecutingQuery, false},
		{PhaseDone, PhaseDone, false},
		{PhaseDone, PhaseStreamingPrimary, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "streaming_secondary", PhaseStreamingSecondary.String())
	assert.Equal(t, "phase(9)", Phase(9).String())
}

func TestSessionTransition(t *testing.T) {
	s := newSession(RunRequest{}, slog.Default())
	require.Equal(t, PhaseStreamingPrimary, s.Phase())

	require.NoError(t, s.transition(PhaseExecutingQuery))
	assert.Error(t, s.transition(PhaseStreamingPrimary))
	require.NoError(t, s.transition(PhaseDone))
	assert.Error(t, s.transition(PhaseDone))
}

func TestSessionTriggerKeepsPayloadIntact(t *testing.T) {
	s := newSession(RunRequest{}, slog.Default())
	p := map[string]any{"delta": map[string]any{"content": []any{
		map[string]any{},
		map[string]any{"tool_results": map[string]any{"content": []any{
			map[string]any{"json": map[string]any{"sql": "SELECT 1"}},
		}}},
	}}}

	s.trigger(p, "sql_exec")

	assert.True(t, s.Triggered())
	sql := p["delta"].(map[string]any)["content"].([]any)[1].(map[string]any)["tool_results"].(map[string]any)["content"].([]any)[0].(map[string]any)["json"].(map[string]any)["sql"]
	assert.Equal(t, "SELECT 1", sql)
	require.Len(t, s.AssistantContent(), 2)
	collected, err := json.Marshal(s.AssistantContent())
	require.NoError(t, err)
	assert.NotContains(t, string(collected), "SELECT 1")
	assert.Contains(t, string(collected), `"sql":"REDACTED"`)
}

func TestFollowUpHistoryWithEmptyBuffer(t *testing.T) {
	s := newSession(RunRequest{}, slog.Default())

	history, err := s.followUpHistory("sql_exec", "h1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.JSONEq(t, `{"role":"assistant","content":[]}`, string(history[0]))
}
