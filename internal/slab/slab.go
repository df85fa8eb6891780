package slab

import "fmt"

// entry is a slot in the arena: either Vacant, holding the index of the
// next free slot, or Occupied, holding a live value.
type entry[T any] struct {
	occupied bool
	value    T
	nextFree int // valid only when !occupied; index into slots, or -1
}

// Slab is a freelist-based arena allocator indexed by SlabIndex. Ids are
// dense within the arena's lifetime, are never reused until their slot is
// vacated, and are never zero (slot 0 is reserved as a sentinel so
// OptionSlabIndex can use zero for "none"). The freelist is LIFO: the most
// recently vacated slot is the next one reused, which keeps the live
// prefix compact and (for the on-disk cache blob) improves locality.
type Slab[T any] struct {
	slots     []entry[T]
	freeHead  int // -1 if the freelist is empty
	len       int
}

// New creates an empty slab. Slot 0 is pre-occupied with a dummy to keep
// SlabIndex nonzero; it is never returned by Insert and never iterated.
func New[T any]() *Slab[T] {
	s := &Slab[T]{freeHead: -1}
	s.slots = append(s.slots, entry[T]{occupied: true}) // index 0 sentinel
	return s
}

// Insert stores value and returns its nonzero SlabIndex.
func (s *Slab[T]) Insert(value T) SlabIndex {
	if s.freeHead != -1 {
		idx := s.freeHead
		s.freeHead = s.slots[idx].nextFree
		s.slots[idx] = entry[T]{occupied: true, value: value}
		s.len++
		return SlabIndex(idx)
	}
	idx := len(s.slots)
	s.slots = append(s.slots, entry[T]{occupied: true, value: value})
	s.len++
	return SlabIndex(idx)
}

// Get returns a pointer to the value at index, or nil if vacant or
// out of range. The pointer aliases the slab's backing storage and is
// invalidated by a subsequent Remove of the same index.
func (s *Slab[T]) Get(index SlabIndex) *T {
	i := int(index)
	if i <= 0 || i >= len(s.slots) || !s.slots[i].occupied {
		return nil
	}
	return &s.slots[i].value
}

// Remove vacates index, returning the value that was stored there and true,
// or the zero value and false if it was already vacant.
func (s *Slab[T]) Remove(index SlabIndex) (T, bool) {
	var zero T
	i := int(index)
	if i <= 0 || i >= len(s.slots) || !s.slots[i].occupied {
		return zero, false
	}
	value := s.slots[i].value
	s.slots[i] = entry[T]{occupied: false, nextFree: s.freeHead}
	s.freeHead = i
	s.len--
	return value, true
}

// Len returns the number of occupied slots.
func (s *Slab[T]) Len() int { return s.len }

// IsEmpty reports whether the slab holds no values.
func (s *Slab[T]) IsEmpty() bool { return s.len == 0 }

// Iter calls fn for every occupied (index, value) pair. Iteration order is
// by ascending index, not insertion order once slots have been reused.
func (s *Slab[T]) Iter(fn func(SlabIndex, *T) bool) {
	for i := 1; i < len(s.slots); i++ {
		if s.slots[i].occupied {
			if !fn(SlabIndex(i), &s.slots[i].value) {
				return
			}
		}
	}
}

// MustGet panics if index is not occupied; for call sites that have already
// established liveness as an invariant (e.g. a child index taken directly
// from a parent's sorted child list).
func (s *Slab[T]) MustGet(index SlabIndex) *T {
	v := s.Get(index)
	if v == nil {
		panic(fmt.Sprintf("slab: invariant violation: index %d is not live", index))
	}
	return v
}
