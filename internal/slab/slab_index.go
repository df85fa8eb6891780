// Package slab implements a freelist-based arena allocator: a compact
// nonzero SlabIndex addresses a slot, an OptionSlabIndex reserves zero
// for "none" so an optional index fits one machine word, and the free
// list is LIFO so recently vacated slots are reused first, keeping the
// live prefix compact.
//
// The live arena here is a plain Go slice rather than a literal mmap
// region: a Slab Node's child list is variable-length, so a fixed-layout
// record mapped byte-for-byte can't hold a raw OS mmap of a generic Go
// type without unsafe, GC-unsound pointer games. Mmap-and-persist-as-
// one-contiguous-blob semantics are instead provided at the Index
// Manager's cache layer (see internal/fsindex), which writes the slab
// out as one flushed blob and can memory-map it back in on load — see
// DESIGN.md.
package slab

import "sort"

// SlabIndex addresses a live slot. It is never zero; zero is reserved so an
// OptionSlabIndex can represent "none" without a separate bool.
type SlabIndex uint32

// OptionSlabIndex is an optional SlabIndex that fits in one machine word.
type OptionSlabIndex uint32

// NoneIndex is the zero value of OptionSlabIndex, meaning "absent".
const NoneIndex OptionSlabIndex = 0

// Some wraps a SlabIndex as a present OptionSlabIndex.
func Some(i SlabIndex) OptionSlabIndex { return OptionSlabIndex(i) }

// Get returns the underlying SlabIndex and whether one is present.
func (o OptionSlabIndex) Get() (SlabIndex, bool) {
	if o == NoneIndex {
		return 0, false
	}
	return SlabIndex(o), true
}

// IsNone reports whether the option holds no index.
func (o OptionSlabIndex) IsNone() bool { return o == NoneIndex }

// SortedSlabIndices is a dedicated sorted-insertion helper for a node's
// ordered child list, factored out rather than re-deriving sort-and-search
// at every call site: a parent's child list is kept sorted by child name
// and holds each child id exactly once.
//
// Ordering is supplied by the caller via a less func, since the sort key is
// the child's interned name, not the SlabIndex itself.
type SortedSlabIndices struct {
	ids  []SlabIndex
	less func(a, b SlabIndex) bool
}

// NewSortedSlabIndices builds an empty sorted list using less to compare
// two SlabIndex values (typically by looking up and comparing their
// interned names).
func NewSortedSlabIndices(less func(a, b SlabIndex) bool) *SortedSlabIndices {
	return &SortedSlabIndices{less: less}
}

// InsertSorted inserts id at its sorted position. If an append-at-end
// position is detected (the common case for the walker's preorder
// conversion) it is O(1); otherwise it is O(n) for the shift.
func (s *SortedSlabIndices) InsertSorted(id SlabIndex) {
	n := len(s.ids)
	if n == 0 || !s.less(id, s.ids[n-1]) {
		s.ids = append(s.ids, id)
		return
	}
	pos := sort.Search(n, func(i int) bool { return s.less(id, s.ids[i]) })
	s.ids = append(s.ids, 0)
	copy(s.ids[pos+1:], s.ids[pos:])
	s.ids[pos] = id
}

// Remove deletes id from the list, preserving order. Reports whether it was
// present.
func (s *SortedSlabIndices) Remove(id SlabIndex) bool {
	for i, existing := range s.ids {
		if existing == id {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			return true
		}
	}
	return false
}

// Slice returns the underlying ordered slice. Callers must not retain it
// across further mutation of s.
func (s *SortedSlabIndices) Slice() []SlabIndex { return s.ids }

// Len returns the number of child indices held.
func (s *SortedSlabIndices) Len() int { return len(s.ids) }
