package session

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
)

// ToolDescriptor is what the LLM sees for one callable tool: its
// sanitised name, description, and JSON input schema.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Async       bool
}

// ToolResult is a tool's outcome: exactly one of Output or Err is set.
// ApprovalRequired signals the stop-condition predicate in run.go.
type ToolResult struct {
	Output           json.RawMessage
	Err              json.RawMessage
	ApprovalRequired bool
}

// Tool is one callable unit exposed by an extension. Execute must be
// cancellation-aware: it should return promptly once ctx is done.
type Tool interface {
	Descriptor() ToolDescriptor
	Execute(ctx context.Context, input json.RawMessage) (ToolResult, error)
}

// Extension groups a named set of tools the Tool Catalogue exposes under
// `<ext>_<tool>` names. Tools report nil from Lookup when their
// execution closure isn't available on this OS or installation — the
// catalogue omits those rather than advertising a tool that can't run.
type Extension struct {
	ID      string
	Name    string
	Tags    []string
	Tools   map[string]Tool // tool name -> implementation, nil entries omitted
	Summary string
}

var sanitizeNonWord = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Sanitize maps an arbitrary string to the `[A-Za-z0-9_-]` charset the
// Tool Catalogue requires for composite tool names.
func Sanitize(s string) string {
	return sanitizeNonWord.ReplaceAllString(s, "_")
}

// qualifiedToolName builds the `<ext>_<tool>` name the catalogue exposes
// to the LLM for one extension tool.
func qualifiedToolName(ext *Extension, toolName string) string {
	return Sanitize(ext.ID) + "_" + Sanitize(toolName)
}

// splitQualifiedName reverses qualifiedToolName given the extension
// registry, used to route a tool call back to its implementation.
func splitQualifiedName(name string, extensions map[string]*Extension) (ext *Extension, toolName string, ok bool) {
	for _, e := range extensions {
		prefix := Sanitize(e.ID) + "_"
		if strings.HasPrefix(name, prefix) {
			rest := strings.TrimPrefix(name, prefix)
			if _, has := e.Tools[rest]; has {
				return e, rest, true
			}
		}
	}
	return nil, "", false
}
