package orchestrator

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/codeready-toolchain/agentrelay/pkg/payload"
)

// Session is the state of one run. It is owned by the goroutine driving
// that run and is never shared.
type Session struct {
	phase    Phase
	identity string
	logger   *slog.Logger

	// history is the caller's conversation, never modified.
	history []json.RawMessage

	// assistantContent collects the assistant's primary-phase content for
	// replay to the secondary call.
	assistantContent []any

	// triggered is set by the first query instruction. Later instructions
	// are ignored.
	triggered bool

	// redactedTrigger is a copy of the triggering payload with its SQL
	// replaced. It is kept for diagnostics only and never forwarded.
	redactedTrigger any
}

func newSession(req RunRequest, logger *slog.Logger) *Session {
	return &Session{
		phase:    PhaseStreamingPrimary,
		identity: req.Identity,
		logger:   logger,
		history:  req.Messages,
	}
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	return s.phase
}

// Triggered reports whether a query instruction has been acted on.
func (s *Session) Triggered() bool {
	return s.triggered
}

// AssistantContent returns the collected assistant content items.
func (s *Session) AssistantContent() []any {
	return s.assistantContent
}

// transition moves the session to next. An illegal transition is a bug in
// the pipeline and is reported as an error.
func (s *Session) transition(next Phase) error {
	if !s.phase.CanTransition(next) {
		return fmt.Errorf("invalid phase transition %s -> %s", s.phase, next)
	}
	s.logger.Debug("Run phase changed", "from", s.phase, "to", next)
	s.phase = next
	return nil
}

// collect appends the assistant content of a forwarded or triggering
// payload, leaving out invocations of toolName.
func (s *Session) collect(p any, toolName string) {
	s.assistantContent = append(s.assistantContent, payload.AssistantContent(p, toolName)...)
}

// trigger records the first query instruction. The content collected from
// the triggering payload comes from its redacted copy, so the SQL text is
// never replayed to the agent.
func (s *Session) trigger(p any, toolName string) {
	s.triggered = true
	s.redactedTrigger = payload.RedactInstruction(p)
	s.collect(s.redactedTrigger, toolName)
}

// followUpHistory builds the secondary call's messages: the caller's
// history, the assistant turn so far, and a tool result that refers to the
// statement by handle only.
func (s *Session) followUpHistory(toolName, handle string) ([]json.RawMessage, error) {
	content := s.assistantContent
	if content == nil {
		content = []any{}
	}

	assistant, err := json.Marshal(map[string]any{
		"role":    "assistant",
		"content": content,
	})
	if err != nil {
		return nil, fmt.Errorf("encode assistant turn: %w", err)
	}

	toolResult, err := json.Marshal(map[string]any{
		"role": "user",
		"content": []any{
			map[string]any{
				"type": "tool_results",
				"tool_results": map[string]any{
					"name": toolName,
					"content": []any{
						map[string]any{
							"type": "json",
							"json": map[string]any{"query_id": handle},
						},
					},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}

	history := make([]json.RawMessage, 0, len(s.history)+2)
	history = append(history, s.history...)
	return append(history, assistant, toolResult), nil
}
