package session

import (
	"context"
	"encoding/json"

	"github.com/cocommand/cocommand/pkg/models"
)

// ProviderMessage is one entry of the message history sent to the LLM
// provider for a run.
type ProviderMessage struct {
	Role  models.Role
	Parts []models.MessagePart
}

// ProviderEventType discriminates the stream-of-events contract an LLM
// provider adapter produces.
type ProviderEventType string

const (
	ProviderStart          ProviderEventType = "start"
	ProviderTextStart      ProviderEventType = "text_start"
	ProviderTextDelta      ProviderEventType = "text_delta"
	ProviderTextEnd        ProviderEventType = "text_end"
	ProviderReasoningStart ProviderEventType = "reasoning_start"
	ProviderReasoningDelta ProviderEventType = "reasoning_delta"
	ProviderReasoningEnd   ProviderEventType = "reasoning_end"
	ProviderToolCall       ProviderEventType = "tool_call"
	ProviderToolResult     ProviderEventType = "tool_result"
	ProviderToolError      ProviderEventType = "tool_error"
	ProviderFile           ProviderEventType = "file"
	ProviderFinish         ProviderEventType = "finish"
	ProviderError          ProviderEventType = "error"
)

// ProviderEvent is one event of an LLM provider's stream. PartID
// identifies the text/reasoning/tool part the event applies to within
// one step; it is stable across Start/Delta/End for the same part.
type ProviderEvent struct {
	Type  ProviderEventType
	Delta string

	PartID string

	ToolCallID string
	ToolName   string
	ToolInput  json.RawMessage
	ToolOutput json.RawMessage

	File *models.FilePart

	Err       error
	Cancelled bool
}

// LlmOptions carries the per-call provider configuration and the
// abort signal a run's cancellation wires through to the stream.
type LlmOptions struct {
	MaxSteps        int
	Temperature     float64
	MaxOutputTokens int
	SystemPrompt    string
	Abort           <-chan struct{}
}

// Provider is the LLM provider contract consumed by the session actor.
// A concrete adapter (e.g. internal/llmadapter) wraps a specific vendor
// SDK behind this interface.
type Provider interface {
	Stream(ctx context.Context, messages []ProviderMessage, tools []ToolDescriptor, opts LlmOptions) (<-chan ProviderEvent, error)
}
