// Package fstools adapts the filesystem index and query engine into the
// session runtime's tool contract: search, index_status, open_path, and
// reveal_path, grouped as the "filesystem" extension.
package fstools

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cocommand/cocommand/internal/fsindex"
	"github.com/cocommand/cocommand/internal/observability"
)

// RootResolver opens and caches the one Manager per indexed root the
// filesystem tools operate against, and names the root a tool call should
// use when it omits one.
type RootResolver interface {
	// DefaultRoot returns the root path to use when a call doesn't name one.
	DefaultRoot() string
	// Manager returns the Manager for root, opening (and indexing) it on
	// first use.
	Manager(ctx context.Context, root string) (*fsindex.Manager, error)
}

// Registry is the straightforward RootResolver: it lazily opens a Manager
// per distinct root path and keeps it open for the process lifetime, the
// way the daemon is expected to hold one long-lived index per workspace
// root rather than re-walking on every call.
type Registry struct {
	defaultRoot string
	cacheDir    string
	ignored     []string
	metrics     *observability.Metrics

	mu       sync.Mutex
	managers map[string]*fsindex.Manager
}

// NewRegistry creates a Registry. defaultRoot is used whenever a tool call
// omits root; cacheDir and ignored are passed through to every Manager it
// opens.
func NewRegistry(defaultRoot, cacheDir string, ignored []string, metrics *observability.Metrics) *Registry {
	return &Registry{
		defaultRoot: defaultRoot,
		cacheDir:    cacheDir,
		ignored:     ignored,
		metrics:     metrics,
		managers:    make(map[string]*fsindex.Manager),
	}
}

func (r *Registry) DefaultRoot() string { return r.defaultRoot }

// Manager returns the Manager for root, opening it (cache load or full
// walk, then starting the watcher) the first time it's requested.
func (r *Registry) Manager(ctx context.Context, root string) (*fsindex.Manager, error) {
	if root == "" {
		root = r.defaultRoot
	}
	if root == "" {
		return nil, fmt.Errorf("fstools: no root configured and none supplied")
	}
	clean := filepath.Clean(root)

	r.mu.Lock()
	if m, ok := r.managers[clean]; ok {
		r.mu.Unlock()
		return m, nil
	}
	m := fsindex.NewManager(clean, r.ignored, r.cacheDir, r.metrics, nil)
	r.managers[clean] = m
	r.mu.Unlock()

	if err := m.Open(ctx); err != nil {
		r.mu.Lock()
		delete(r.managers, clean)
		r.mu.Unlock()
		return nil, err
	}
	return m, nil
}

// Close closes every Manager this registry has opened.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, m := range r.managers {
		if err := m.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
