package sse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Event is one outbound frame. Name is optional. Data is serialized as
// single-line JSON unless it is the DoneSentinel string.
type Event struct {
	Name string `json:"event,omitempty"`
	Data any    `json:"data"`

	// Terminal marks the event that ends a run. Only the producer of the
	// stream sets it; relayed upstream frames never carry it, whatever
	// their name.
	Terminal bool `json:"-"`
}

// Done returns the terminal event carrying the sentinel.
func Done() Event {
	return Event{Name: "done", Data: DoneSentinel, Terminal: true}
}

// IsDone reports whether the event carries the end-of-stream sentinel.
func (e Event) IsDone() bool {
	s, ok := e.Data.(string)
	return ok && s == DoneSentinel
}

// MarshalFrame renders the event in wire form, terminated by a blank line.
// The payload is never split across several data lines, so a payload that
// must keep literal newlines cannot be expressed; JSON escapes them.
func (e Event) MarshalFrame() ([]byte, error) {
	var buf bytes.Buffer
	if e.Name != "" {
		buf.WriteString("event: ")
		buf.WriteString(e.Name)
		buf.WriteByte('\n')
	}
	buf.WriteString("data: ")
	if e.IsDone() {
		buf.WriteString(DoneSentinel)
	} else {
		data, err := marshalLine(e.Data)
		if err != nil {
			return nil, fmt.Errorf("encode %q event: %w", e.Name, err)
		}
		buf.Write(data)
	}
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

// Encode writes one event frame to w.
func Encode(w io.Writer, e Event) error {
	frame, err := e.MarshalFrame()
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// marshalLine encodes v as compact JSON without HTML escaping so that
// relayed text reaches the client byte-for-byte.
func marshalLine(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
