// Package fsindex implements a memory-mapped-in-spirit, name-interned
// filesystem index: Index Data, the parallel Walker, the FSEvents/notify
// Watcher, and the per-root Index Manager state machine. Indexing runs
// in two phases, walk then construct, over a compact-index arena backed
// by internal/slab and internal/namepool.
package fsindex

import (
	"time"

	"github.com/cocommand/cocommand/internal/namepool"
	"github.com/cocommand/cocommand/internal/slab"
)

// Kind is a Slab Node's file kind.
type Kind uint8

const (
	KindFile Kind = iota
	KindDir
	KindSymlink
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	case KindSymlink:
		return "symlink"
	default:
		return "other"
	}
}

// Node is a Slab Node: an interned name reference, file kind,
// optional size/mtime/ctime, optional parent, and an ordered child list.
// Child indices are maintained in lexicographic order of child name — the
// invariant the walker's O(1) append path and every iteration-order
// sensitive query rely on.
type Node struct {
	Name namepool.Ref
	Kind Kind

	HasSize bool
	Size    int64

	HasModTime bool
	ModTime    int64 // unix seconds

	HasCreateTime bool
	CreateTime    int64 // unix seconds

	Parent slab.OptionSlabIndex

	// children is kept sorted by child name; IndexData owns the comparator
	// (it alone has access to both the slab and the name pool needed to
	// compare two children's interned names) and mutates this field
	// through insertChild/removeChild rather than letting Node sort
	// itself.
	children []slab.SlabIndex
}

func newNode() *Node {
	return &Node{}
}

// Children returns the ordered child indices. Callers must not retain the
// slice across further mutation.
func (n *Node) Children() []slab.SlabIndex {
	return n.children
}

// ModTimeValue returns the modification time as a time.Time, or the zero
// value if unset.
func (n *Node) ModTimeValue() time.Time {
	if !n.HasModTime {
		return time.Time{}
	}
	return time.Unix(n.ModTime, 0).UTC()
}
