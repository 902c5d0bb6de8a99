package flow

import (
	"context"
	"time"
)

// EventType classifies run trace events.
type EventType string

const (
	EventRunStarted   EventType = "run_started"
	EventNodeStarted  EventType = "node_started"
	EventNodeFinished EventType = "node_finished"
	EventNodeFailed   EventType = "node_failed"
	EventRunFinished  EventType = "run_finished"
	EventRunFailed    EventType = "run_failed"
)

// Event is one run trace record. The trace is append-only telemetry;
// the engine never reads it back.
type Event struct {
	RunID     string    `json:"run_id"`
	Flow      string    `json:"flow"`
	Node      string    `json:"node,omitempty"`
	Type      EventType `json:"type"`
	Action    Action    `json:"action,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TraceSink receives run trace events. Implementations must be safe
// for concurrent use; Record failures are logged by the flow, never
// propagated into the run.
type TraceSink interface {
	Record(ctx context.Context, ev Event) error
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Record(context.Context, Event) error { return nil }
