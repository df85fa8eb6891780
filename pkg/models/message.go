// Package models provides the wire and persistence types shared between the
// session runtime, the message store, and the event bus.
package models

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// MessageInfo is the envelope for one message in a session. Its ID is a
// time-ordered UUID (see github.com/google/uuid's V7-style ordering via
// internal/messages.NewID), so listing by ID order equals creation order.
type MessageInfo struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	Role        Role       `json:"role"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Message bundles an envelope with its ordered parts, the shape returned by
// listing a session's history.
type Message struct {
	Info  MessageInfo    `json:"info"`
	Parts []MessagePart  `json:"parts"`
}

// Attachment is a file produced by a completed tool call.
type Attachment struct {
	Name      string `json:"name,omitempty"`
	MediaType string `json:"media_type"`
	Base64    string `json:"base64"`
}
