package fsquery

import (
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Extension matches a node whose extension is any of Exts (lowercased,
// without the leading dot).
type Extension struct{ Exts []string }

func (e *Extension) Eval(ctx *NodeQueryContext, _ *[]Expr) bool {
	for _, ext := range e.Exts {
		if ctx.Extension == ext {
			return true
		}
	}
	return false
}

func (e *Extension) RequiredNameTerms() []string { return nil }

// Category matches type:/is: values that resolve to a static extension
// list (picture, video, audio, document, presentation, spreadsheet, pdf,
// archive, code, executable) rather than a plain kind test.
type Category struct{ Exts []string }

func (c *Category) Eval(ctx *NodeQueryContext, _ *[]Expr) bool {
	for _, ext := range c.Exts {
		if ctx.Extension == ext {
			return true
		}
	}
	return false
}

func (c *Category) RequiredNameTerms() []string { return nil }

// categoryExtensions maps a type:/is: category name to its static
// extension list. "file" and "folder" resolve to a kind test instead and
// are handled by KindFilter, not this table.
var categoryExtensions = map[string][]string{
	"picture":      {"jpg", "jpeg", "png", "gif", "bmp", "tiff", "heic", "webp", "svg"},
	"video":        {"mp4", "mov", "mkv", "avi", "webm", "m4v"},
	"audio":        {"mp3", "wav", "flac", "aac", "m4a", "ogg"},
	"document":     {"doc", "docx", "txt", "rtf", "odt", "pages"},
	"presentation": {"ppt", "pptx", "key", "odp"},
	"spreadsheet":  {"xls", "xlsx", "csv", "numbers", "ods"},
	"pdf":          {"pdf"},
	"archive":      {"zip", "tar", "gz", "bz2", "xz", "7z", "rar"},
	"code":         {"go", "rs", "py", "js", "ts", "c", "cpp", "h", "java", "rb", "sh"},
	"executable":   {"exe", "app", "sh", "bin"},
}

// ResolveCategory builds the Expr for a type:/is: value. ok is false for
// an unrecognized category.
func ResolveCategory(category string) (Expr, bool) {
	switch category {
	case "file":
		return &KindFilter{IsDir: false}, true
	case "folder":
		return &KindFilter{IsDir: true}, true
	}
	exts, ok := categoryExtensions[category]
	if !ok {
		return nil, false
	}
	return &Category{Exts: exts}, true
}

// KindFilter matches file:/folder:/type:file/type:folder, optionally with
// a text predicate on the name.
type KindFilter struct {
	IsDir bool
	Name  string // optional name substring, empty means no constraint
}

func (k *KindFilter) Eval(ctx *NodeQueryContext, _ *[]Expr) bool {
	if k.IsDir != ctx.IsDir {
		return false
	}
	if k.Name == "" {
		return true
	}
	return strings.Contains(ctx.Name, strings.ToLower(k.Name))
}

func (k *KindFilter) RequiredNameTerms() []string {
	if k.Name == "" {
		return nil
	}
	return splitWildcardChunks(strings.ToLower(k.Name))
}

// Parent matches a direct child of Path.
type Parent struct{ Path string }

func (p *Parent) Eval(ctx *NodeQueryContext, _ *[]Expr) bool {
	return path.Dir(ctx.Path) == p.Path
}

func (p *Parent) RequiredNameTerms() []string { return nil }

// InFolder matches a descendant (at any depth) of Path.
type InFolder struct{ Path string }

func (f *InFolder) Eval(ctx *NodeQueryContext, _ *[]Expr) bool {
	return isDescendant(ctx.Path, f.Path)
}

func (f *InFolder) RequiredNameTerms() []string { return nil }

// Scope matches a path equal to Path, or a direct child file of Path.
type Scope struct{ Path string }

func (s *Scope) Eval(ctx *NodeQueryContext, _ *[]Expr) bool {
	if ctx.Path == s.Path {
		return true
	}
	return !ctx.IsDir && path.Dir(ctx.Path) == s.Path
}

func (s *Scope) RequiredNameTerms() []string { return nil }

func isDescendant(candidate, ancestor string) bool {
	if candidate == ancestor {
		return false
	}
	prefix := strings.TrimSuffix(ancestor, "/") + "/"
	return strings.HasPrefix(candidate, prefix)
}

// sizeOp is the comparison a Size filter performs.
type sizeOp int

const (
	sizeGreater sizeOp = iota
	sizeLess
	sizeRange
)

// Size is a numeric predicate on byte size.
type Size struct {
	Op       sizeOp
	Min, Max int64
}

func (s *Size) Eval(ctx *NodeQueryContext, _ *[]Expr) bool {
	if !ctx.HasSize {
		return false
	}
	switch s.Op {
	case sizeGreater:
		return ctx.Size > s.Min
	case sizeLess:
		return ctx.Size < s.Max
	case sizeRange:
		return ctx.Size >= s.Min && ctx.Size <= s.Max
	default:
		return false
	}
}

func (s *Size) RequiredNameTerms() []string { return nil }

// ParseSize parses a size:... filter value: ">10MB", "<1k", or
// "1mb..2mb", returning a Size filter.
func ParseSize(value string) (*Size, error) {
	switch {
	case strings.HasPrefix(value, ">"):
		n, err := humanize.ParseBytes(strings.TrimPrefix(value, ">"))
		if err != nil {
			return nil, err
		}
		return &Size{Op: sizeGreater, Min: int64(n)}, nil
	case strings.HasPrefix(value, "<"):
		n, err := humanize.ParseBytes(strings.TrimPrefix(value, "<"))
		if err != nil {
			return nil, err
		}
		return &Size{Op: sizeLess, Max: int64(n)}, nil
	default:
		lo, hi, ok := strings.Cut(value, "..")
		if !ok {
			return nil, errInvalidFilterValue("size", value)
		}
		min, err := humanize.ParseBytes(lo)
		if err != nil {
			return nil, err
		}
		max, err := humanize.ParseBytes(hi)
		if err != nil {
			return nil, err
		}
		return &Size{Op: sizeRange, Min: int64(min), Max: int64(max)}, nil
	}
}

// dateField selects which timestamp on the node a Date filter compares.
type dateField int

const (
	dateModified dateField = iota
	dateCreated
)

// Date is a predicate on a node's modified or created time.
type Date struct {
	Field dateField
	Op    sizeOp // sizeGreater or sizeLess reused; a date range is uncommon
	At    time.Time
}

func (d *Date) Eval(ctx *NodeQueryContext, _ *[]Expr) bool {
	var t time.Time
	switch d.Field {
	case dateModified:
		if !ctx.HasModTime {
			return false
		}
		t = ctx.ModTime
	case dateCreated:
		if !ctx.HasCreateTime {
			return false
		}
		t = ctx.CreateTime
	}
	switch d.Op {
	case sizeGreater:
		return t.After(d.At)
	case sizeLess:
		return t.Before(d.At)
	default:
		return false
	}
}

func (d *Date) RequiredNameTerms() []string { return nil }

// ParseDate parses a date:modified:>... / datecreated:<... filter value:
// either an absolute ISO date (2024-01-01) or a relative offset from now
// (Nd|Nw|Nm|Ny, e.g. "7d").
func ParseDate(field dateField, value string) (*Date, error) {
	var op sizeOp
	switch {
	case strings.HasPrefix(value, ">"):
		op = sizeGreater
		value = strings.TrimPrefix(value, ">")
	case strings.HasPrefix(value, "<"):
		op = sizeLess
		value = strings.TrimPrefix(value, "<")
	default:
		return nil, errInvalidFilterValue("date", value)
	}

	if at, ok := parseRelativeDate(value); ok {
		return &Date{Field: field, Op: op, At: at}, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}
	return &Date{Field: field, Op: op, At: t}, nil
}

func parseRelativeDate(value string) (time.Time, bool) {
	if len(value) < 2 {
		return time.Time{}, false
	}
	unit := value[len(value)-1]
	n, err := strconv.Atoi(value[:len(value)-1])
	if err != nil {
		return time.Time{}, false
	}
	var d time.Duration
	switch unit {
	case 'd':
		d = time.Duration(n) * 24 * time.Hour
	case 'w':
		d = time.Duration(n) * 7 * 24 * time.Hour
	case 'm':
		d = time.Duration(n) * 30 * 24 * time.Hour
	case 'y':
		d = time.Duration(n) * 365 * 24 * time.Hour
	default:
		return time.Time{}, false
	}
	return time.Now().Add(-d), true
}

// Content is a content:"..." filter. It can't be decided from node
// metadata alone, so Eval always reports true and appends itself to
// deferred for an out-of-band grep pass.
type Content struct{ Literal string }

func (c *Content) Eval(_ *NodeQueryContext, deferred *[]Expr) bool {
	if deferred != nil {
		*deferred = append(*deferred, c)
	}
	return true
}

func (c *Content) RequiredNameTerms() []string { return nil }

// Tag is a tag:work,urgent filter (any-match against OS tags). Like
// Content, it's resolved out-of-band since tags aren't tracked in the
// index's Node records.
type Tag struct{ Tags []string }

func (t *Tag) Eval(_ *NodeQueryContext, deferred *[]Expr) bool {
	if deferred != nil {
		*deferred = append(*deferred, t)
	}
	return true
}

func (t *Tag) RequiredNameTerms() []string { return nil }

// NormalizePath expands a leading ~, normalizes separators to forward
// slash, and strips a trailing slash except at the filesystem root.
func NormalizePath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = home + strings.TrimPrefix(p, "~")
		}
	}
	p = strings.ReplaceAll(p, "\\", "/")
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

func errInvalidFilterValue(filter, value string) error {
	return &FilterError{Filter: filter, Value: value}
}

// FilterError reports a malformed filter value encountered while parsing
// a query.
type FilterError struct {
	Filter string
	Value  string
}

func (e *FilterError) Error() string {
	return "fsquery: invalid " + e.Filter + " value " + strconv.Quote(e.Value)
}
