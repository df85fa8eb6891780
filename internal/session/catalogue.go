package session

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/sahilm/fuzzy"
)

// ExtensionRegistry holds every extension known to the daemon, regardless
// of which sessions currently have it active.
type ExtensionRegistry struct {
	mu         sync.RWMutex
	extensions map[string]*Extension
	order      []string // registration order, for stable iteration
}

// NewExtensionRegistry creates an empty registry.
func NewExtensionRegistry() *ExtensionRegistry {
	return &ExtensionRegistry{extensions: make(map[string]*Extension)}
}

// Register adds or replaces an extension.
func (r *ExtensionRegistry) Register(ext *Extension) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.extensions[ext.ID]; !exists {
		r.order = append(r.order, ext.ID)
	}
	r.extensions[ext.ID] = ext
}

// Get returns the extension with the given id, if registered.
func (r *ExtensionRegistry) Get(id string) (*Extension, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ext, ok := r.extensions[id]
	return ext, ok
}

func (r *ExtensionRegistry) snapshot() map[string]*Extension {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*Extension, len(r.extensions))
	for id, ext := range r.extensions {
		out[id] = ext
	}
	return out
}

// ExtensionSummary is the search_extensions result shape: enough to let
// the LLM decide whether to get_extension/activate_extension it.
type ExtensionSummary struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Tags    []string `json:"tags,omitempty"`
	Summary string   `json:"summary,omitempty"`
}

// ExtensionDetail is the get_extension result: the summary plus the full
// tool list and input schemas.
type ExtensionDetail struct {
	ExtensionSummary
	Tools []ToolDescriptor `json:"tools"`
}

// searchCorpus indexes an extension by name, tag words, and summary for
// fuzzy matching.
func (r *ExtensionRegistry) searchCorpus() ([]string, []*Extension) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.order))
	ids = append(ids, r.order...)
	sort.Strings(ids)

	corpus := make([]string, 0, len(ids))
	exts := make([]*Extension, 0, len(ids))
	for _, id := range ids {
		ext := r.extensions[id]
		text := ext.Name
		for _, tag := range ext.Tags {
			text += " " + tag
		}
		text += " " + ext.Summary
		corpus = append(corpus, text)
		exts = append(exts, ext)
	}
	return corpus, exts
}

// Search ranks registered extensions against query by fuzzy match over
// name/tags/summary, most relevant first.
func (r *ExtensionRegistry) Search(query string) []ExtensionSummary {
	corpus, exts := r.searchCorpus()
	if query == "" {
		out := make([]ExtensionSummary, len(exts))
		for i, ext := range exts {
			out[i] = summarize(ext)
		}
		return out
	}
	matches := fuzzy.Find(query, corpus)
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	out := make([]ExtensionSummary, 0, len(matches))
	for _, m := range matches {
		out = append(out, summarize(exts[m.Index]))
	}
	return out
}

func summarize(ext *Extension) ExtensionSummary {
	return ExtensionSummary{ID: ext.ID, Name: ext.Name, Tags: ext.Tags, Summary: ext.Summary}
}

// BuildCatalogue assembles the named tool descriptors visible to the LLM
// for a session with the given active extension ids: every tool of every
// active extension (whose execution closure is available) under
// `<ext>_<tool>`, plus the three always-on control tools.
func (r *ExtensionRegistry) BuildCatalogue(active []string) map[string]ToolDescriptor {
	out := make(map[string]ToolDescriptor)
	for _, id := range active {
		ext, ok := r.Get(id)
		if !ok {
			continue
		}
		names := make([]string, 0, len(ext.Tools))
		for name := range ext.Tools {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			tool := ext.Tools[name]
			if tool == nil {
				continue // execution closure unavailable on this OS/install
			}
			out[qualifiedToolName(ext, name)] = tool.Descriptor()
		}
	}
	for name, desc := range controlToolDescriptors() {
		out[name] = desc
	}
	return out
}

// resolve routes a qualified tool name (either `<ext>_<tool>` or one of
// the three control tool names) to something callable.
func (r *ExtensionRegistry) resolve(name string, active []string) (Tool, bool) {
	if ctrl, ok := controlTool(r, name); ok {
		return ctrl, true
	}
	activeExts := make(map[string]*Extension, len(active))
	for _, id := range active {
		if ext, ok := r.Get(id); ok {
			activeExts[id] = ext
		}
	}
	ext, toolName, ok := splitQualifiedName(name, activeExts)
	if !ok {
		return nil, false
	}
	return ext.Tools[toolName], true
}

const (
	ToolSearchExtensions   = "search_extensions"
	ToolGetExtension       = "get_extension"
	ToolActivateExtension  = "activate_extension"
)

func controlToolDescriptors() map[string]ToolDescriptor {
	return map[string]ToolDescriptor{
		ToolSearchExtensions: {
			Name:        ToolSearchExtensions,
			Description: "Search available extensions by fuzzy match over name, tags, and summary.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`),
		},
		ToolGetExtension: {
			Name:        ToolGetExtension,
			Description: "Get full detail for one extension, including its tool list and input schemas.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"id":{"type":"string"}},"required":["id"]}`),
		},
		ToolActivateExtension: {
			Name:        ToolActivateExtension,
			Description: "Add an extension to this session's active set so its tools become callable.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"id":{"type":"string"}},"required":["id"]}`),
		},
	}
}

// controlToolInput is the shared {query|id} shape all three control
// tools accept.
type controlToolInput struct {
	Query string `json:"query"`
	ID    string `json:"id"`
}

// controlTool returns a Tool implementation for one of the three
// always-on control tool names, or false if name isn't one of them.
func controlTool(r *ExtensionRegistry, name string) (Tool, bool) {
	switch name {
	case ToolSearchExtensions:
		return &searchExtensionsTool{registry: r}, true
	case ToolGetExtension:
		return &getExtensionTool{registry: r}, true
	case ToolActivateExtension:
		return &activateExtensionTool{registry: r}, true
	default:
		return nil, false
	}
}

type searchExtensionsTool struct{ registry *ExtensionRegistry }

func (t *searchExtensionsTool) Descriptor() ToolDescriptor {
	return controlToolDescriptors()[ToolSearchExtensions]
}

func (t *searchExtensionsTool) Execute(_ context.Context, input json.RawMessage) (ToolResult, error) {
	var in controlToolInput
	if err := json.Unmarshal(input, &in); err != nil {
		return errorResult(err)
	}
	results := t.registry.Search(in.Query)
	out, err := json.Marshal(results)
	if err != nil {
		return errorResult(err)
	}
	return ToolResult{Output: out}, nil
}

type getExtensionTool struct{ registry *ExtensionRegistry }

func (t *getExtensionTool) Descriptor() ToolDescriptor {
	return controlToolDescriptors()[ToolGetExtension]
}

func (t *getExtensionTool) Execute(_ context.Context, input json.RawMessage) (ToolResult, error) {
	var in controlToolInput
	if err := json.Unmarshal(input, &in); err != nil {
		return errorResult(err)
	}
	ext, ok := t.registry.Get(in.ID)
	if !ok {
		return errorResult(&unknownExtensionError{ID: in.ID})
	}
	names := make([]string, 0, len(ext.Tools))
	for name := range ext.Tools {
		names = append(names, name)
	}
	sort.Strings(names)
	descs := make([]ToolDescriptor, 0, len(names))
	for _, name := range names {
		if tool := ext.Tools[name]; tool != nil {
			descs = append(descs, tool.Descriptor())
		}
	}
	detail := ExtensionDetail{ExtensionSummary: summarize(ext), Tools: descs}
	out, err := json.Marshal(detail)
	if err != nil {
		return errorResult(err)
	}
	return ToolResult{Output: out}, nil
}

// activateExtensionTool's Execute only validates the id exists; the
// actual mutation of the session's active set happens in the actor's
// dispatch path, which recognizes this tool name specially so it can
// update its own state and publish SessionContextUpdated.
type activateExtensionTool struct{ registry *ExtensionRegistry }

func (t *activateExtensionTool) Descriptor() ToolDescriptor {
	return controlToolDescriptors()[ToolActivateExtension]
}

func (t *activateExtensionTool) Execute(_ context.Context, input json.RawMessage) (ToolResult, error) {
	var in controlToolInput
	if err := json.Unmarshal(input, &in); err != nil {
		return errorResult(err)
	}
	ext, ok := t.registry.Get(in.ID)
	if !ok {
		return errorResult(&unknownExtensionError{ID: in.ID})
	}
	out, err := json.Marshal(summarize(ext))
	if err != nil {
		return errorResult(err)
	}
	return ToolResult{Output: out}, nil
}

type unknownExtensionError struct{ ID string }

func (e *unknownExtensionError) Error() string { return "unknown extension: " + e.ID }

func errorResult(err error) (ToolResult, error) {
	payload, _ := json.Marshal(map[string]string{"error": err.Error()})
	return ToolResult{Err: payload}, nil
}
