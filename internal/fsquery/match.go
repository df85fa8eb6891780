package fsquery

import (
	"path"
	"strings"
	"time"

	"github.com/cocommand/cocommand/internal/fsindex"
	"github.com/cocommand/cocommand/internal/slab"
)

// NodeQueryContext holds the per-node facts the matcher evaluates an AST
// against: name, path, path segments, extension, kind, size, and times.
// It is built once per candidate node and reused across the whole AST.
type NodeQueryContext struct {
	Name     string // lowercased basename
	Path     string // lowercased full path, forward-slash separated
	Segments []string
	Extension string // lowercased, without leading dot

	IsDir bool

	HasSize bool
	Size    int64

	HasModTime bool
	ModTime    time.Time

	HasCreateTime bool
	CreateTime    time.Time
}

// NewNodeQueryContext builds a NodeQueryContext for id from data.
func NewNodeQueryContext(data *fsindex.Data, id slab.SlabIndex) *NodeQueryContext {
	n := data.Get(id)
	if n == nil {
		return nil
	}
	fullPath := data.Path(id)
	lowerPath := strings.ToLower(strings.ReplaceAll(fullPath, "\\", "/"))
	name, _ := data.Pool().Lookup(n.Name)
	name = strings.ToLower(name)

	var segments []string
	for _, seg := range strings.Split(strings.Trim(lowerPath, "/"), "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}

	ctx := &NodeQueryContext{
		Name:       name,
		Path:       lowerPath,
		Segments:   segments,
		Extension:  extensionOf(name),
		IsDir:      n.Kind == fsindex.KindDir,
		HasSize:    n.HasSize,
		Size:       n.Size,
		HasModTime: n.HasModTime,
	}
	if n.HasModTime {
		ctx.ModTime = n.ModTimeValue()
	}
	if n.HasCreateTime {
		ctx.HasCreateTime = true
		ctx.CreateTime = time.Unix(n.CreateTime, 0).UTC()
	}
	return ctx
}

func extensionOf(lowerName string) string {
	ext := path.Ext(lowerName)
	return strings.TrimPrefix(ext, ".")
}

// ContainsText reports whether literal (already lowercased by the
// caller) appears as a substring of the node's name, full path, or any
// path segment.
func (ctx *NodeQueryContext) ContainsText(literal string) bool {
	literal = strings.ToLower(literal)
	if strings.Contains(ctx.Name, literal) {
		return true
	}
	if strings.Contains(ctx.Path, literal) {
		return true
	}
	for _, seg := range ctx.Segments {
		if strings.Contains(seg, literal) {
			return true
		}
	}
	return false
}

// MatchResult is the outcome of matching one node against a compiled
// query: whether it matched, and the highlight terms the UI should
// underline.
type MatchResult struct {
	Matched   bool
	Highlight []string
}

// Query is a compiled expression ready to be evaluated against nodes.
type Query struct {
	Root      Expr
	Highlight []string
}

// ContentChecker performs the out-of-band content:"..." grep a Content
// filter can't decide from node metadata alone. TagChecker does the
// equivalent for tag:a,b filters.
type ContentChecker func(path string, literal string) bool
type TagChecker func(path string, tags []string) bool

// MatchOptions carries the out-of-band checkers used to resolve deferred
// Content/Tag filters after the top-down AST pass provisionally admits a
// candidate.
type MatchOptions struct {
	CheckContent ContentChecker
	CheckTag     TagChecker
}

// Match evaluates q against one node. Deferred Content/Tag filters are
// resolved using opts after the AST pass provisionally admits the
// candidate; a candidate is rejected if any deferred filter fails.
func (q *Query) Match(ctx *NodeQueryContext, fullPath string, opts MatchOptions) MatchResult {
	var deferred []Expr
	if !q.Root.Eval(ctx, &deferred) {
		return MatchResult{Matched: false}
	}
	for _, d := range deferred {
		switch f := d.(type) {
		case *Content:
			if opts.CheckContent == nil || !opts.CheckContent(fullPath, f.Literal) {
				return MatchResult{Matched: false}
			}
		case *Tag:
			if opts.CheckTag == nil || !opts.CheckTag(fullPath, f.Tags) {
				return MatchResult{Matched: false}
			}
		}
	}
	return MatchResult{Matched: true, Highlight: q.Highlight}
}
