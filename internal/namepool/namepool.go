// Package namepool implements a process-wide deduplicating interner of
// filesystem basenames, returning a stable reference rather than a raw
// pointer into the interned set. Go strings are already immutable heap
// values, so a Ref here is a dense uint32 index into an append-only slice
// rather than a pointer — this also keeps the reference machine-word
// sized, which is what lets a Slab Node stay fixed-layout.
package namepool

import "sync"

// Ref is a stable reference returned by Intern. The zero value never refers
// to a real name (index 0 is deliberately unused so a zero Ref is
// recognizable as "unset", matching the OptionSlabIndex convention used
// elsewhere in the index).
type Ref uint32

// Pool is a process-wide interner. The zero value is not usable; construct
// with New. A Pool is never cleared: slab nodes hold Refs that must remain
// valid for the process's lifetime.
type Pool struct {
	mu      sync.Mutex
	byName  map[string]Ref
	byRef   []string // byRef[0] is a sentinel blank entry
}

// New creates an empty pool.
func New() *Pool {
	return &Pool{
		byName: make(map[string]Ref),
		byRef:  []string{""},
	}
}

// Intern stores s if it has not been seen before and returns a Ref that is
// stable for the pool's lifetime. Concurrent callers serialize on a single
// mutex held only across the lookup/insert; the common case (already
// interned) never allocates.
func (p *Pool) Intern(s string) Ref {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ref, ok := p.byName[s]; ok {
		return ref
	}
	ref := Ref(len(p.byRef))
	p.byRef = append(p.byRef, s)
	p.byName[s] = ref
	return ref
}

// Lookup returns the name for a previously interned Ref. The bool is false
// only for the zero Ref or a Ref from a different pool.
func (p *Pool) Lookup(ref Ref) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ref == 0 || int(ref) >= len(p.byRef) {
		return "", false
	}
	return p.byRef[ref], true
}

// Len returns the number of distinct names currently interned.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byRef) - 1
}

var (
	defaultOnce sync.Once
	defaultPool *Pool
)

// Default returns the lazily-initialized process-wide pool, so that names
// re-interned from a persisted cache share storage with names produced by
// a live walk.
func Default() *Pool {
	defaultOnce.Do(func() {
		defaultPool = New()
	})
	return defaultPool
}
