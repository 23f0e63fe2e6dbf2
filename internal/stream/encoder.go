package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/grupoagenda/leadscan-cli/internal/model"
)

// Encoder writes event frames to a response stream.
type Encoder struct {
	mu    sync.Mutex
	w     io.Writer
	flush func()
}

// NewEncoder wraps w. When w is an http.ResponseWriter that supports
// flushing, every frame is flushed so clients see events as they happen.
func NewEncoder(w io.Writer) *Encoder {
	e := &Encoder{w: w, flush: func() {}}
	if f, ok := w.(http.Flusher); ok {
		e.flush = f.Flush
	}
	return e
}

// WriteEvent emits one frame: an event line, a data line with the JSON
// payload, and a terminating blank line.
func (e *Encoder) WriteEvent(eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrapf(err, "stream: marshal %s payload", eventType)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", eventType, data); err != nil {
		return eris.Wrapf(err, "stream: write %s frame", eventType)
	}
	e.flush()
	return nil
}

// ChannelSink buffers events for a single reader. Progress events are
// dropped when the buffer is full so a stalled reader starves only its
// own visibility, never the scan; terminal events always wait for room.
type ChannelSink struct {
	ch        chan Event
	closeOnce sync.Once
}

// NewChannelSink creates a sink with the given progress buffer depth.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelSink{ch: make(chan Event, buffer)}
}

// Events is the reader side. It is closed after a terminal event.
func (s *ChannelSink) Events() <-chan Event { return s.ch }

func (s *ChannelSink) Progress(p Progress) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	select {
	case s.ch <- Event{Type: EventProgress, Data: data}:
	default: // reader is behind; drop
	}
}

func (s *ChannelSink) Complete(summary model.ScanSummary) {
	s.terminal(EventComplete, summary)
}

func (s *ChannelSink) Error(message string) {
	s.terminal(EventError, ErrorPayload{Message: message})
}

func (s *ChannelSink) terminal(eventType string, payload any) {
	s.closeOnce.Do(func() {
		if data, err := json.Marshal(payload); err == nil {
			s.ch <- Event{Type: eventType, Data: data}
		}
		close(s.ch)
	})
}
