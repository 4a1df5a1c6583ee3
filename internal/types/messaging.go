package types

import "time"

// EventMessage is the SQS envelope carrying a fired domain event from the
// ingest API to the notify worker. JSON tags use snake_case to match the
// payloads the commerce platform emits.
type EventMessage struct {
	EventID    string         `json:"event_id"`
	Trigger    TriggerID      `json:"trigger" validate:"required"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload"`

	// TraceID correlates log lines across the ingest API, queue, and worker.
	TraceID string `json:"trace_id"`
}

// Event converts the envelope into the domain Event consumed by the
// dispatch pipeline.
func (m EventMessage) Event() Event {
	return Event{
		ID:         m.EventID,
		Trigger:    m.Trigger,
		OccurredAt: m.OccurredAt,
		Payload:    m.Payload,
	}
}
