package llmadapter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/cocommand/cocommand/internal/messages"
	"github.com/cocommand/cocommand/internal/session"
)

// streamState tracks the one content block Anthropic has open at a
// time (blocks arrive strictly sequentially: start, zero or more
// deltas, stop), translating it into this runtime's explicit
// Start/Delta/End part events and assembling a streamed tool call's
// fragmented JSON input.
type streamState struct {
	partID    string
	kind      string // "text", "reasoning", "tool", or "" when nothing is open
	toolID    string
	toolName  string
	toolInput strings.Builder
}

// handle translates one Anthropic stream event into zero or more
// session.ProviderEvents on out. It reports done once the stream has
// reached a terminal event (message_stop or a server-sent error) that
// the caller should not keep reading past; streamErr is set only for
// the latter.
func (st *streamState) handle(event anthropic.MessageStreamEventUnion, out chan<- session.ProviderEvent) (done bool, streamErr error) {
	switch event.Type {
	case "content_block_start":
		block := event.AsContentBlockStart().ContentBlock
		switch block.Type {
		case "thinking":
			st.kind, st.partID = "reasoning", messages.NewID()
			out <- session.ProviderEvent{Type: session.ProviderReasoningStart, PartID: st.partID}
		case "tool_use":
			toolUse := block.AsToolUse()
			st.kind, st.partID = "tool", messages.NewID()
			st.toolID, st.toolName = toolUse.ID, toolUse.Name
			st.toolInput.Reset()
		case "text":
			st.kind, st.partID = "text", messages.NewID()
			out <- session.ProviderEvent{Type: session.ProviderTextStart, PartID: st.partID}
		}

	case "content_block_delta":
		delta := event.AsContentBlockDelta().Delta
		switch delta.Type {
		case "text_delta":
			if delta.Text != "" {
				out <- session.ProviderEvent{Type: session.ProviderTextDelta, PartID: st.partID, Delta: delta.Text}
			}
		case "thinking_delta":
			if delta.Thinking != "" {
				out <- session.ProviderEvent{Type: session.ProviderReasoningDelta, PartID: st.partID, Delta: delta.Thinking}
			}
		case "input_json_delta":
			if delta.PartialJSON != "" {
				st.toolInput.WriteString(delta.PartialJSON)
			}
		}

	case "content_block_stop":
		switch st.kind {
		case "text":
			out <- session.ProviderEvent{Type: session.ProviderTextEnd, PartID: st.partID}
		case "reasoning":
			out <- session.ProviderEvent{Type: session.ProviderReasoningEnd, PartID: st.partID}
		case "tool":
			out <- session.ProviderEvent{
				Type: session.ProviderToolCall, PartID: st.partID,
				ToolCallID: st.toolID, ToolName: st.toolName,
				ToolInput: json.RawMessage(st.toolInput.String()),
			}
		}
		st.kind = ""

	case "message_stop":
		return true, nil

	case "error":
		return true, errors.New("anthropic stream reported a server-side error")
	}
	return false, nil
}

// processAnthropicStream drains stream (starting from the already-pulled
// first event, since opening the connection requires pulling it) and
// forwards a translated session.ProviderEvent for each content event, a
// single ProviderFinish on clean completion, or a ProviderError if the
// stream ends on an error.
func processAnthropicStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], first *anthropic.MessageStreamEventUnion, out chan<- session.ProviderEvent, model string, wrapErr func(error, string) error) {
	defer close(out)
	st := &streamState{}

	emit := func(event anthropic.MessageStreamEventUnion) (stop bool) {
		done, streamErr := st.handle(event, out)
		if !done {
			return false
		}
		if streamErr != nil {
			out <- session.ProviderEvent{Type: session.ProviderError, Err: wrapErr(streamErr, model)}
		} else {
			out <- session.ProviderEvent{Type: session.ProviderFinish}
		}
		return true
	}

	if first != nil && emit(*first) {
		return
	}
	for stream.Next() {
		if emit(stream.Current()) {
			return
		}
	}

	if err := stream.Err(); err != nil {
		wrapped := wrapErr(err, model)
		out <- session.ProviderEvent{Type: session.ProviderError, Err: wrapped, Cancelled: errors.Is(err, context.Canceled)}
		return
	}
	out <- session.ProviderEvent{Type: session.ProviderFinish}
}
