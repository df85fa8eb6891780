package session

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// validateToolInput compiles (and caches, keyed by tool name) desc's
// declared JSON Schema and validates input against it. A tool with no
// declared schema accepts anything. Only called from the run() goroutine,
// so a.schemaCache needs no lock.
func (a *actor) validateToolInput(desc ToolDescriptor, input json.RawMessage) error {
	if len(desc.InputSchema) == 0 {
		return nil
	}
	schema, ok := a.schemaCache[desc.Name]
	if !ok {
		compiled, err := jsonschema.CompileString(desc.Name, string(desc.InputSchema))
		if err != nil {
			return fmt.Errorf("compile schema for %s: %w", desc.Name, err)
		}
		schema = compiled
		a.schemaCache[desc.Name] = schema
	}
	var decoded any
	if err := json.Unmarshal(input, &decoded); err != nil {
		return fmt.Errorf("decode input for %s: %w", desc.Name, err)
	}
	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("input invalid for %s: %w", desc.Name, err)
	}
	return nil
}
