package llmadapter

import (
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/cocommand/cocommand/internal/session"
	"github.com/cocommand/cocommand/pkg/models"
)

// toAnthropicMessages turns one run's folded history into Anthropic's
// message list. A tool call and its result live on the same assistant
// MessagePart in this runtime's model, but Anthropic's API wants the
// tool_use block in the assistant turn and the matching tool_result in
// the *next* user turn — so an assistant message with resolved tool
// parts is split into two Anthropic messages.
func toAnthropicMessages(history []session.ProviderMessage) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	for _, pm := range history {
		switch pm.Role {
		case models.RoleSystem:
			continue // carried separately as the request's System field
		case models.RoleAssistant:
			assistantBlocks, resultBlocks, err := splitAssistantParts(pm.Parts)
			if err != nil {
				return nil, err
			}
			if len(assistantBlocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(assistantBlocks...))
			}
			if len(resultBlocks) > 0 {
				out = append(out, anthropic.NewUserMessage(resultBlocks...))
			}
		default: // user, tool
			blocks := userBlocks(pm.Parts)
			if len(blocks) > 0 {
				out = append(out, anthropic.NewUserMessage(blocks...))
			}
		}
	}
	return out, nil
}

func userBlocks(parts []models.MessagePart) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion
	for _, p := range parts {
		if p.Type == models.PartText && p.Text != nil && p.Text.Text != "" {
			blocks = append(blocks, anthropic.NewTextBlock(p.Text.Text))
		}
	}
	return blocks
}

func splitAssistantParts(parts []models.MessagePart) (assistant, results []anthropic.ContentBlockParamUnion, err error) {
	for _, p := range parts {
		switch p.Type {
		case models.PartText:
			if p.Text != nil && p.Text.Text != "" {
				assistant = append(assistant, anthropic.NewTextBlock(p.Text.Text))
			}
		case models.PartTool:
			tp := p.Tool
			if tp == nil {
				continue
			}
			var input map[string]any
			if len(tp.Input) > 0 {
				if uerr := json.Unmarshal(tp.Input, &input); uerr != nil {
					return nil, nil, fmt.Errorf("tool call %s: decode input: %w", tp.CallID, uerr)
				}
			}
			assistant = append(assistant, anthropic.NewToolUseBlock(tp.CallID, input, tp.ToolName))

			switch tp.State {
			case models.ToolStateCompleted:
				results = append(results, anthropic.NewToolResultBlock(tp.CallID, tp.Output, false))
			case models.ToolStateError:
				results = append(results, anthropic.NewToolResultBlock(tp.CallID, tp.Error, true))
			}
			// Pending/Running tool parts have no result yet; by the time a
			// step's history is folded back in, every call it dispatched has
			// already settled (see session.maybeAdvance), so this only
			// happens for a call this run is still waiting on.
		}
	}
	return assistant, results, nil
}

// toAnthropicTools adapts the session's generic tool catalogue into
// Anthropic's tool-definition shape. ToolDescriptor.InputSchema is
// already a JSON Schema object, the same shape Anthropic's
// ToolInputSchemaParam expects.
func toAnthropicTools(tools []session.ToolDescriptor) ([]anthropic.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if len(t.InputSchema) > 0 {
			if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
				return nil, fmt.Errorf("invalid input schema for %s: %w", t.Name, err)
			}
		}
		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid input schema for %s: missing tool definition", t.Name)
		}
		param.OfTool.Description = anthropic.String(t.Description)
		out = append(out, param)
	}
	return out, nil
}
