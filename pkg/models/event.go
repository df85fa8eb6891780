package models

import "time"

// EventType discriminates the Event sum type published on the Event Bus.
// The pattern — a single Type field with per-kind optional payloads —
// mirrors this codebase's AgentEvent convention for forward-compatible
// streaming events.
type EventType string

const (
	EventSessionMessageStarted EventType = "session.message_started"
	EventSessionPartUpdated    EventType = "session.part_updated"
	EventSessionRunCompleted   EventType = "session.run_completed"
	EventSessionRunCancelled   EventType = "session.run_cancelled"
	EventBackgroundJobStarted  EventType = "background_job.started"
	EventBackgroundJobCompleted EventType = "background_job.completed"
	EventBackgroundJobFailed   EventType = "background_job.failed"
	EventSessionContextUpdated EventType = "session.context_updated"
)

// Event is one structured message on the Event Bus. Every event carries
// SessionID so subscribers can filter; SessionPartUpdated additionally
// carries the full current part value (not a delta) so a late subscriber
// can replay by reading the Message Store and then tailing the bus.
type Event struct {
	Type      EventType `json:"type"`
	Time      time.Time `json:"time"`
	Sequence  uint64    `json:"seq"`
	SessionID string    `json:"session_id"`

	RunID     string `json:"run_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	PartID    string `json:"part_id,omitempty"`

	// Part is the full current value for SessionPartUpdated.
	Part *MessagePart `json:"part,omitempty"`

	// JobID identifies a background job for BackgroundJob* events.
	JobID string `json:"job_id,omitempty"`

	// Reason is set on SessionRunCancelled (the cancellation cause) and on
	// BackgroundJobFailed (the job's error).
	Reason string `json:"reason,omitempty"`

	// ActiveExtensions is set on SessionContextUpdated.
	ActiveExtensions []string `json:"active_extensions,omitempty"`
}
