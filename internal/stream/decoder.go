package stream

import (
	"encoding/json"
	"strings"
)

// Decoder incrementally decodes an event stream. It is a small state
// machine with two fields: the pending event type and the accumulated
// data, both reset by the blank line that ends a frame. Feed may be
// called with arbitrary byte chunks; a chunk may contain zero, one, or
// many complete frames and may split a frame (or a single line) across
// calls.
type Decoder struct {
	buf       strings.Builder
	eventType string
	data      string
}

// Feed consumes one chunk and returns the events completed by it.
func (d *Decoder) Feed(chunk []byte) []Event {
	d.buf.Write(chunk)

	text := d.buf.String()
	var events []Event
	for {
		nl := strings.IndexByte(text, '\n')
		if nl < 0 {
			break
		}
		line := strings.TrimSuffix(text[:nl], "\r")
		text = text[nl+1:]

		if ev, ok := d.consumeLine(line); ok {
			events = append(events, ev)
		}
	}

	d.buf.Reset()
	d.buf.WriteString(text)
	return events
}

// consumeLine advances the state machine by one complete line. A blank
// line finishes the frame in progress.
func (d *Decoder) consumeLine(line string) (Event, bool) {
	switch {
	case line == "":
		if d.eventType == "" || d.data == "" {
			d.eventType, d.data = "", ""
			return Event{}, false
		}
		ev := Event{Type: d.eventType, Data: json.RawMessage(d.data)}
		d.eventType, d.data = "", ""
		return ev, true
	case strings.HasPrefix(line, "event:"):
		d.eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
	case strings.HasPrefix(line, "data:"):
		d.data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	}
	return Event{}, false
}
