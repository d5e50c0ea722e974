// Package sse reads and writes server-sent event streams.
//
// Decoding is best-effort: malformed lines are skipped and never abort the
// stream. A frame containing a line longer than 8 MiB is dropped whole and
// decoding resumes with the next frame. Encoding always writes a single "data:" line per event, so payloads
// are serialized as one-line JSON documents.
package sse

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// DoneSentinel marks the end of an agent event stream. It travels unquoted on
// the data line, unlike every other payload.
const DoneSentinel = "[DONE]"

// maxLineSize bounds a single wire line. Agent deltas carrying tool results
// can be large, so the bufio default of 64KiB is not enough.
const maxLineSize = 8 << 20

// readBufferSize is the size of the underlying read buffer. Longer lines
// are assembled from several reads.
const readBufferSize = 64 * 1024

// Frame is one decoded event. Event is empty when the wire frame had no
// "event:" field. Data is the frame's data lines joined by "\n".
type Frame struct {
	Event string
	Data  string
}

// IsDone reports whether the frame carries the end-of-stream sentinel.
func (f Frame) IsDone() bool {
	return f.Data == DoneSentinel
}

// Decoder turns a line-oriented event stream into frames. It pulls from the
// underlying reader lazily, one frame per Next call.
type Decoder struct {
	reader  *bufio.Reader
	maxLine int
	event   string
	data    []string
	err     error

	// oversized is set when the pending frame had a line over maxLine.
	oversized bool
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		reader:  bufio.NewReaderSize(r, readBufferSize),
		maxLine: maxLineSize,
	}
}

// Next returns the next complete frame. It returns false when the source is
// exhausted or failed; Err distinguishes the two. Data lines still pending
// when the source ends without a closing blank line are discarded.
func (d *Decoder) Next() (Frame, bool) {
	for {
		line, tooLong, err := d.readLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				d.err = err
			}
			return Frame{}, false
		}
		if tooLong {
			d.oversized = true
			continue
		}

		if line == "" {
			if d.oversized {
				d.event = ""
				d.data = d.data[:0]
				d.oversized = false
				continue
			}
			if len(d.data) == 0 {
				continue
			}
			frame := Frame{Event: d.event, Data: strings.Join(d.data, "\n")}
			d.event = ""
			d.data = d.data[:0]
			return frame, true
		}

		field, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch strings.TrimSpace(field) {
		case "event":
			d.event = strings.TrimSpace(value)
		case "data":
			d.data = append(d.data, strings.TrimSpace(value))
		}
	}
}

// readLine returns the next line without its terminator. A line longer
// than maxLine is consumed in full and reported with tooLong set and no
// content.
func (d *Decoder) readLine() (string, bool, error) {
	var buf []byte
	tooLong := false
	for {
		chunk, isPrefix, err := d.reader.ReadLine()
		if err != nil {
			return "", false, err
		}
		if !tooLong {
			if len(buf)+len(chunk) > d.maxLine {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if !isPrefix {
			return string(buf), tooLong, nil
		}
	}
}

// Err returns the first non-EOF error from the underlying reader.
func (d *Decoder) Err() error {
	return d.err
}
