// Package stream implements the scan progress wire protocol: a long-lived
// response stream of named events, each an "event:" line followed by one
// "data:" line with a JSON payload, terminated by a blank line.
package stream

import (
	"encoding/json"

	"github.com/grupoagenda/leadscan-cli/internal/model"
)

// Event types carried on the stream.
const (
	EventProgress = "progress"
	EventComplete = "complete"
	EventError    = "error"
)

// Progress is the payload of a progress event.
type Progress struct {
	Site     string          `json:"site"`
	Phase    model.ScanPhase `json:"phase"`
	Message  string          `json:"message,omitempty"`
	Current  int             `json:"current,omitempty"`
	Total    int             `json:"total,omitempty"`
	ItemName string          `json:"itemName,omitempty"`
}

// ErrorPayload is the payload of a terminal error event.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Event is one decoded frame.
type Event struct {
	Type string
	Data json.RawMessage
}

// Sink receives pipeline events. Emission must never block pipeline
// progress; implementations drop rather than stall.
type Sink interface {
	Progress(p Progress)
	Complete(summary model.ScanSummary)
	Error(message string)
}

// Discard is a Sink that drops everything, for callers that do not
// observe progress.
type Discard struct{}

func (Discard) Progress(Progress)            {}
func (Discard) Complete(model.ScanSummary)   {}
func (Discard) Error(string)                 {}
