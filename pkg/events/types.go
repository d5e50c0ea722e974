// Package events defines the outbound event vocabulary of an agent run and
// delivers runs to WebSocket clients.
//
// An agent run produces events in this order:
//
//	<upstream frames>        forwarded verbatim until a query instruction
//	message.delta            preamble text, only when the instruction has one
//	table_result             materialized statement result
//	new_assistant_message    a second assistant turn follows
//	<upstream frames>        forwarded from the secondary agent call
//	done | error             exactly one terminal event
//
// A run without a query instruction is just the forwarded frames followed
// by done. An error event is terminal; nothing follows it.
package events

// Event names produced by the relay itself. Upstream event names are
// forwarded unchanged and never collide with these in practice.
const (
	EventTypeMessageDelta        = "message.delta"
	EventTypeTableResult         = "table_result"
	EventTypeNewAssistantMessage = "new_assistant_message"
	EventTypeDone                = "done"
	EventTypeError               = "error"
)

// Synthetic message constants.
const (
	// PreambleMessageID is the message id carried by synthetic preamble deltas.
	PreambleMessageID = "msg_000"

	// PreambleSeparator visually separates the preamble from the table.
	PreambleSeparator = "\n\n---\n\n"

	// SecondTurnMessage is the text of the new_assistant_message notification.
	SecondTurnMessage = "Starting data-to-analytics"
)

// WebSocket control message types (server → client).
const (
	WSTypeConnectionEstablished = "connection.established"
	WSTypePong                  = "pong"
	WSTypeError                 = "error"
)

// WebSocket client actions.
const (
	WSActionRun    = "run"
	WSActionCancel = "cancel"
	WSActionPing   = "ping"
)
