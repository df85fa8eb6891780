package models

import (
	"encoding/json"
	"time"
)

// PartType discriminates the sum type held by MessagePart. Exactly one of
// the corresponding payload pointers on MessagePart is non-nil for a given
// Type, mirroring the versioned-event-with-optional-payloads pattern used
// throughout this codebase's wire types.
type PartType string

const (
	PartText      PartType = "text"
	PartReasoning PartType = "reasoning"
	PartTool      PartType = "tool"
	PartFile      PartType = "file"
)

// MessagePart is one element of a message's content, keyed by its own
// stable id so that streaming deltas can upsert it in the Message Store and
// the Event Bus can publish its full current value.
type MessagePart struct {
	ID        string    `json:"id"`
	MessageID string    `json:"message_id"`
	SessionID string    `json:"session_id"`
	Type      PartType  `json:"type"`
	CreatedAt time.Time `json:"created_at"`

	Text      *TextPart `json:"text,omitempty"`
	Reasoning *TextPart `json:"reasoning,omitempty"`
	Tool      *ToolPart `json:"tool,omitempty"`
	File      *FilePart `json:"file,omitempty"`
}

// TextPart holds accumulated streamed text for a Text or Reasoning part.
type TextPart struct {
	Text string `json:"text"`
}

// FilePart holds a file emitted directly by the provider (not a tool
// attachment).
type FilePart struct {
	Base64    string `json:"base64"`
	MediaType string `json:"media_type"`
	Name      string `json:"name,omitempty"`
}

// ToolState is the sum type describing a tool call's lifecycle. Transitions
// are monotonic: Pending->Running, Running->Completed|Error, and
// Pending->Completed|Error directly (an immediate result never observed as
// Running). Regressing to an earlier state is forbidden; see CanTransition.
type ToolState string

const (
	ToolStatePending   ToolState = "pending"
	ToolStateRunning   ToolState = "running"
	ToolStateCompleted ToolState = "completed"
	ToolStateError     ToolState = "error"
)

// CanTransition reports whether moving a tool part from `from` to `to` is
// a legal monotonic transition: Pending may advance to Running, Completed,
// or Error; Running may only advance to Completed or Error; Completed and
// Error are terminal.
func CanTransition(from, to ToolState) bool {
	switch from {
	case ToolStatePending:
		return to == ToolStateRunning || to == ToolStateCompleted || to == ToolStateError
	case ToolStateRunning:
		return to == ToolStateCompleted || to == ToolStateError
	case ToolStateCompleted, ToolStateError:
		return false
	default:
		return to == ToolStatePending
	}
}

// ToolPart is the payload for a PartTool message part across every state it
// may occupy; fields not relevant to the current State are left zero.
type ToolPart struct {
	CallID   string          `json:"call_id"`
	ToolName string          `json:"tool_name"`
	State    ToolState       `json:"state"`
	Input    json.RawMessage `json:"input"`

	// Running
	StartedAt *time.Time     `json:"started_at,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	// Completed
	Output      string       `json:"output,omitempty"`
	Title       string       `json:"title,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	EndTime     *time.Time   `json:"end_time,omitempty"`

	// Error
	Error string `json:"error,omitempty"`
}
