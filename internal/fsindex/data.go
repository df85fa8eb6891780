package fsindex

import (
	"sort"
	"strings"

	"github.com/cocommand/cocommand/internal/cocoerr"
	"github.com/cocommand/cocommand/internal/namepool"
	"github.com/cocommand/cocommand/internal/slab"
)

// Data is the searchable set for one indexed root: a Slab of Nodes plus a
// per-parent sorted child list (folded into Node.children) and a
// name->nodes multimap. Mutations here are the only place three
// invariants are enforced:
//
//  1. a non-root node's id appears in its parent's child list exactly
//     once, sorted by child name;
//  2. every bucket in the name index is nonempty and every id in it
//     points to a live node whose lowercased name equals the key;
//  3. modification times never regress unless the path was observed to be
//     replaced.
type Data struct {
	pool  *namepool.Pool
	slab  *slab.Slab[Node]
	names map[string][]slab.SlabIndex // lowercased basename -> live ids

	Root        slab.OptionSlabIndex
	RootPath    string
	IgnoredPath []string
}

// NewData creates an empty Index Data set backed by pool.
func NewData(pool *namepool.Pool) *Data {
	return &Data{
		pool:  pool,
		slab:  slab.New[Node](),
		names: make(map[string][]slab.SlabIndex),
	}
}

// Get returns the node at id, or nil if not live.
func (d *Data) Get(id slab.SlabIndex) *Node { return d.slab.Get(id) }

// Pool returns the backing name pool (used by query evaluation to resolve
// Node.Name references).
func (d *Data) Pool() *namepool.Pool { return d.pool }

// Len returns the number of live nodes.
func (d *Data) Len() int { return d.slab.Len() }

func (d *Data) nameOf(id slab.SlabIndex) string {
	n := d.slab.Get(id)
	if n == nil {
		return ""
	}
	name, _ := d.pool.Lookup(n.Name)
	return name
}

// insertChild inserts child into parent's sorted child list, maintaining
// invariant 1. O(1) when appended at the end (the common case during
// preorder construction), O(n) otherwise.
func (d *Data) insertChild(parentID, childID slab.SlabIndex) {
	parent := d.slab.MustGet(parentID)
	childName := d.nameOf(childID)
	n := len(parent.children)
	if n == 0 || childName >= d.nameOf(parent.children[n-1]) {
		parent.children = append(parent.children, childID)
		return
	}
	pos := sort.Search(n, func(i int) bool { return d.nameOf(parent.children[i]) > childName })
	parent.children = append(parent.children, 0)
	copy(parent.children[pos+1:], parent.children[pos:])
	parent.children[pos] = childID
}

func (d *Data) removeChild(parentID, childID slab.SlabIndex) {
	parent := d.slab.Get(parentID)
	if parent == nil {
		return
	}
	for i, id := range parent.children {
		if id == childID {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			return
		}
	}
}

func (d *Data) indexName(id slab.SlabIndex, name string) {
	key := strings.ToLower(name)
	d.names[key] = append(d.names[key], id)
}

func (d *Data) unindexName(id slab.SlabIndex, name string) {
	key := strings.ToLower(name)
	bucket := d.names[key]
	for i, existing := range bucket {
		if existing == id {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(d.names, key)
	} else {
		d.names[key] = bucket
	}
}

// LookupName returns the live ids whose lowercased basename equals the
// (already lowercased) key. The returned slice must not be retained across
// further mutation.
func (d *Data) LookupName(lowercased string) []slab.SlabIndex {
	return d.names[lowercased]
}

// Insert adds a new node as a child of parent (or as the root, if parent is
// absent) and returns its id. name is the literal basename; it is interned
// and indexed.
func (d *Data) Insert(parent slab.OptionSlabIndex, name string, kind Kind) slab.SlabIndex {
	node := newNode()
	node.Name = d.pool.Intern(name)
	node.Kind = kind
	node.Parent = parent
	id := d.slab.Insert(*node)

	if pid, ok := parent.Get(); ok {
		d.insertChild(pid, id)
	} else {
		d.Root = slab.Some(id)
		d.RootPath = name
	}
	d.indexName(id, name)
	return id
}

// SetSize records a file's size. mtime/ctime are not touched.
func (d *Data) SetSize(id slab.SlabIndex, size int64) {
	n := d.slab.Get(id)
	if n == nil {
		return
	}
	n.HasSize = true
	n.Size = size
}

// SetModTime records a modification time, enforcing invariant 3: it never
// regresses unless replace is true (the path was observed to be replaced
// by a different underlying file, e.g. after a remove+recreate).
func (d *Data) SetModTime(id slab.SlabIndex, unixSeconds int64, replace bool) {
	n := d.slab.Get(id)
	if n == nil {
		return
	}
	if n.HasModTime && unixSeconds < n.ModTime && !replace {
		return
	}
	n.HasModTime = true
	n.ModTime = unixSeconds
}

// SetCreateTime records a creation time.
func (d *Data) SetCreateTime(id slab.SlabIndex, unixSeconds int64) {
	n := d.slab.Get(id)
	if n == nil {
		return
	}
	n.HasCreateTime = true
	n.CreateTime = unixSeconds
}

// Remove deletes the subtree rooted at id (directory removal removes every
// descendant), fixing the parent's child list and the name index for every
// removed node.
func (d *Data) Remove(id slab.SlabIndex) {
	node := d.slab.Get(id)
	if node == nil {
		return
	}
	for _, childID := range append([]slab.SlabIndex(nil), node.children...) {
		d.Remove(childID)
	}

	name := d.nameOf(id)
	d.unindexName(id, name)
	if pid, ok := node.Parent.Get(); ok {
		d.removeChild(pid, id)
	} else if d.Root == slab.Some(id) {
		d.Root = slab.NoneIndex
	}
	d.slab.Remove(id)
}

// Path reconstructs the absolute path of id by walking parent links up to
// the root and joining with RootPath.
func (d *Data) Path(id slab.SlabIndex) string {
	var segments []string
	cur := id
	for {
		n := d.slab.Get(cur)
		if n == nil {
			return ""
		}
		if n.Parent.IsNone() {
			break
		}
		name, _ := d.pool.Lookup(n.Name)
		segments = append(segments, name)
		pid, _ := n.Parent.Get()
		cur = pid
	}
	path := d.RootPath
	for i := len(segments) - 1; i >= 0; i-- {
		path = strings.TrimRight(path, "/") + "/" + segments[i]
	}
	return path
}

// CheckInvariants walks the whole tree and returns an *cocoerr.Error of
// class InvariantViolation on the first violation of the child-ordering
// or name-index invariants described above Data's fields. Intended for
// tests and debug builds, not the hot path.
func (d *Data) CheckInvariants() error {
	var err error
	d.slab.Iter(func(id slab.SlabIndex, n *Node) bool {
		for _, childID := range n.children {
			child := d.slab.Get(childID)
			if child == nil {
				err = cocoerr.InvariantViolation("child %d of %d is not live", childID, id)
				return false
			}
			pid, ok := child.Parent.Get()
			if !ok || pid != id {
				err = cocoerr.InvariantViolation("child %d does not point back to parent %d", childID, id)
				return false
			}
		}
		return true
	})
	if err != nil {
		return err
	}
	for key, bucket := range d.names {
		if len(bucket) == 0 {
			return cocoerr.InvariantViolation("empty name index bucket for %q", key)
		}
		for _, id := range bucket {
			if strings.ToLower(d.nameOf(id)) != key {
				return cocoerr.InvariantViolation("name index bucket %q contains id %d with mismatched name", key, id)
			}
		}
	}
	return nil
}
