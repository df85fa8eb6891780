package fstools

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/cocommand/cocommand/internal/fsindex"
	"github.com/cocommand/cocommand/internal/fsquery"
	"github.com/cocommand/cocommand/internal/observability"
	"github.com/cocommand/cocommand/internal/session"
	"github.com/cocommand/cocommand/internal/slab"
)

const defaultMaxResults = 200

// Entry is one matched node in a SearchResult, ordered by path ascending
// (the natural order of a preorder walk over lexicographically sorted
// children).
type Entry struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Size    *int64 `json:"size,omitempty"`
	ModTime *int64 `json:"mod_time,omitempty"`
}

// SearchResult is the search tool's output shape.
type SearchResult struct {
	Query      string  `json:"query"`
	Root       string  `json:"root"`
	Entries    []Entry `json:"entries"`
	Count      int     `json:"count"`
	Truncated  bool    `json:"truncated"`
	Scanned    int     `json:"scanned"`
	Errors     int64   `json:"errors"`
	IndexState string  `json:"index_state"`

	ScannedFiles int64 `json:"scanned_files"`
	ScannedDirs  int64 `json:"scanned_dirs"`

	StartedAt     *time.Time `json:"started_at,omitempty"`
	LastUpdateAt  *time.Time `json:"last_update_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	HighlightTerms []string  `json:"highlight_terms"`

	// Warnings surfaces capability gaps the query ran into, e.g. a tag:
	// filter that this install can't evaluate, rather than leaving a
	// zero-result response looking like a clean no-match.
	Warnings []string `json:"warnings,omitempty"`
}

type searchInput struct {
	Query         string `json:"query"`
	Root          string `json:"root,omitempty"`
	MaxResults    int    `json:"max_results,omitempty"`
	IncludeHidden bool   `json:"include_hidden,omitempty"`
	CaseSensitive bool   `json:"case_sensitive,omitempty"`
}

type searchTool struct {
	resolver RootResolver
	metrics  *observability.Metrics
}

func (t *searchTool) Descriptor() session.ToolDescriptor {
	return session.ToolDescriptor{
		Name:        "search",
		Description: "Search the filesystem index with a boolean query (terms, ext:, type:, size:, date:modified:, content:\"...\", tag:, and more). Returns matching paths ordered ascending.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string"},
				"root": {"type": "string", "description": "Indexed root to search; defaults to the configured workspace root."},
				"max_results": {"type": "integer", "description": "Caps the number of entries returned; default 200."},
				"include_hidden": {"type": "boolean", "description": "Include dotfiles and dot-directories."},
				"case_sensitive": {"type": "boolean", "description": "Require exact-case substring matches in addition to the normal case-insensitive match."}
			},
			"required": ["query"]
		}`),
	}
}

func (t *searchTool) Execute(ctx context.Context, input json.RawMessage) (session.ToolResult, error) {
	start := time.Now()
	var in searchInput
	if err := json.Unmarshal(input, &in); err != nil {
		return errorResult(invalidInputError{err})
	}
	if strings.TrimSpace(in.Query) == "" {
		return errorResult(invalidInputError{errEmptyQuery})
	}
	maxResults := in.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	root := in.Root
	if root == "" {
		root = t.resolver.DefaultRoot()
	}
	mgr, err := t.resolver.Manager(ctx, root)
	if err != nil {
		return errorResult(err)
	}

	compiled, err := fsquery.Parse(in.Query)
	if err != nil {
		return errorResult(invalidInputError{err})
	}

	state, progress, lastErr := mgr.Status()

	result := SearchResult{
		Query:          in.Query,
		Root:           root,
		IndexState:     state.String(),
		ScannedFiles:   progress.ScannedFiles,
		ScannedDirs:    progress.ScannedDirs,
		Errors:         progress.Errors,
		StartedAt:      progress.StartedAt,
		LastUpdateAt:   progress.LastUpdateAt,
		FinishedAt:     progress.FinishedAt,
		HighlightTerms: compiled.Highlight,
	}
	if result.HighlightTerms == nil {
		result.HighlightTerms = []string{}
	}

	if state == fsindex.StateError {
		return errorResult(notReadyError{"index for " + root + " is in error state: " + lastErr})
	}

	entries := []Entry{}
	var scanned, truncatedAt int
	var usedDeferred, usedTagFilter bool
	opts := fsquery.MatchOptions{
		CheckContent: func(path, literal string) bool { usedDeferred = true; return checkContent(path, literal) },
		CheckTag: func(path string, tags []string) bool {
			usedDeferred = true
			usedTagFilter = true
			return checkTag(path, tags)
		},
	}
	mgr.View(func(d *fsindex.Data) {
		scanned, truncatedAt = walkMatches(d, compiled, opts, in.IncludeHidden, in.CaseSensitive, maxResults, func(e Entry) {
			entries = append(entries, e)
		})
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	result.Entries = entries
	result.Count = len(entries)
	result.Scanned = scanned
	result.Truncated = truncatedAt > 0 && len(entries) >= truncatedAt
	if usedTagFilter {
		result.Warnings = append(result.Warnings, "tag: filters are not evaluated on this install (no OS file-tag reader available), so any node a tag: filter applies to is excluded from results rather than matched")
	}

	out, err := json.Marshal(result)
	if err != nil {
		return errorResult(err)
	}
	if t.metrics != nil {
		t.metrics.RecordQuery(usedDeferred, time.Since(start).Seconds(), result.Count)
		t.metrics.RecordToolExecution("filesystem_search", "ok", time.Since(start).Seconds())
	}
	return session.ToolResult{Output: out}, nil
}

// walkMatches performs a preorder DFS over d (lexicographically sorted
// children yield path-ascending order for free, since '/' sorts below any
// character a name can contain), collecting up to limit matches via
// collect. It returns the number of nodes inspected and, if the walk
// stopped early because limit was reached, the limit itself (0 otherwise).
func walkMatches(d *fsindex.Data, compiled *fsquery.Query, opts fsquery.MatchOptions, includeHidden, caseSensitive bool, limit int, collect func(Entry)) (scanned int, truncatedAt int) {
	root, ok := d.Root.Get()
	if !ok {
		return 0, 0
	}
	found := 0
	var visit func(id slab.SlabIndex) bool // returns false to stop the walk
	visit = func(id slab.SlabIndex) bool {
		n := d.Get(id)
		if n == nil {
			return true
		}
		scanned++
		name, _ := d.Pool().Lookup(n.Name)
		if !includeHidden && strings.HasPrefix(name, ".") && id != root {
			return true // skip dotfile/dir and its subtree
		}

		qctx := fsquery.NewNodeQueryContext(d, id)
		if qctx != nil {
			res := compiled.Match(qctx, d.Path(id), opts)
			if res.Matched && (!caseSensitive || caseSensitiveMatch(compiled.Highlight, name, d.Path(id))) {
				found++
				collect(toEntry(d, id, n, name))
				if found >= limit {
					return false
				}
			}
		}

		for _, child := range n.Children() {
			if !visit(child) {
				return false
			}
		}
		return true
	}
	cont := visit(root)
	if !cont {
		return scanned, limit
	}
	return scanned, 0
}

// caseSensitiveMatch requires every highlighted literal to also appear
// with matching case somewhere in the raw (non-lowercased) name or path.
// highlight terms are already the literal chunks the query's Text/wildcard
// terms contributed, so this reuses them rather than re-parsing the query.
func caseSensitiveMatch(literals []string, name, path string) bool {
	if len(literals) == 0 {
		return true
	}
	for _, lit := range literals {
		if lit == "" {
			continue
		}
		if !strings.Contains(name, lit) && !strings.Contains(path, lit) {
			return false
		}
	}
	return true
}

func toEntry(d *fsindex.Data, id slab.SlabIndex, n *fsindex.Node, name string) Entry {
	e := Entry{Path: d.Path(id), Name: name, Kind: n.Kind.String()}
	if n.HasSize {
		size := n.Size
		e.Size = &size
	}
	if n.HasModTime {
		mt := n.ModTime
		e.ModTime = &mt
	}
	return e
}
