package events

import (
	"encoding/json"

	"github.com/codeready-toolchain/agentrelay/pkg/sse"
)

// TextContent is one plain-text assistant content item.
type TextContent struct {
	Type string `json:"type"` // always "text"
	Text string `json:"text"`
}

// DeltaBody carries content items of a message delta.
type DeltaBody struct {
	Content []TextContent `json:"content"`
}

// MessageDeltaPayload is the payload of a synthetic message.delta event.
// It mirrors the upstream delta shape so clients render it like any other
// assistant text.
type MessageDeltaPayload struct {
	ID     string    `json:"id"`
	Object string    `json:"object"` // always EventTypeMessageDelta
	Delta  DeltaBody `json:"delta"`
}

// NewAssistantMessagePayload is the payload for new_assistant_message events.
type NewAssistantMessagePayload struct {
	Message string `json:"message"`
}

// ErrorPayload is the payload for error events. Message must already be
// masked by the caller.
type ErrorPayload struct {
	Error string `json:"error"`
}

// ClientMessage is a message received from a WebSocket client.
type ClientMessage struct {
	Action   string            `json:"action"`
	Messages []json.RawMessage `json:"messages,omitempty"`
}

// NewPreambleEvent builds the message.delta event carrying preamble text
// followed by the visual separator.
func NewPreambleEvent(text string) sse.Event {
	return sse.Event{
		Name: EventTypeMessageDelta,
		Data: &MessageDeltaPayload{
			ID:     PreambleMessageID,
			Object: EventTypeMessageDelta,
			Delta: DeltaBody{
				Content: []TextContent{{Type: "text", Text: text + PreambleSeparator}},
			},
		},
	}
}

// NewTableResultEvent wraps a statement result document.
func NewTableResultEvent(result any) sse.Event {
	return sse.Event{Name: EventTypeTableResult, Data: result}
}

// NewAssistantMessageEvent announces the second assistant turn.
func NewAssistantMessageEvent() sse.Event {
	return sse.Event{
		Name: EventTypeNewAssistantMessage,
		Data: &NewAssistantMessagePayload{Message: SecondTurnMessage},
	}
}

// NewDoneEvent returns the terminal success event.
func NewDoneEvent() sse.Event {
	return sse.Done()
}

// NewErrorEvent returns the terminal failure event.
func NewErrorEvent(message string) sse.Event {
	return sse.Event{Name: EventTypeError, Data: &ErrorPayload{Error: message}, Terminal: true}
}

// IsTerminal reports whether e ends a run. Only events built by
// NewDoneEvent or NewErrorEvent qualify; a relayed upstream frame named
// "error" does not.
func IsTerminal(e sse.Event) bool {
	return e.Terminal
}
