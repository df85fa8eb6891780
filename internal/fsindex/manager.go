package fsindex

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/gob"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cocommand/cocommand/internal/cocoerr"
	"github.com/cocommand/cocommand/internal/namepool"
	"github.com/cocommand/cocommand/internal/observability"
	"github.com/cocommand/cocommand/internal/slab"
)

// Manager is the Index Manager: owns one SharedRoot's lifecycle (build,
// rescan, incremental apply, query, flush-to-cache) and its Watcher. One
// Manager exists per indexed root.
type Manager struct {
	root    string
	ignored []string
	shared  *SharedRoot
	watcher *Watcher
	log     *slog.Logger
	metrics *observability.Metrics

	cacheDir    string
	cancelWatch context.CancelFunc
}

// NewManager creates a Manager for root, idle until Open is called.
func NewManager(root string, ignored []string, cacheDir string, metrics *observability.Metrics, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	pool := namepool.Default()
	cachePath := filepath.Join(cacheDir, cacheFileName(root))
	return &Manager{
		root:     root,
		ignored:  ignored,
		shared:   NewSharedRoot(pool, cachePath),
		log:      log,
		metrics:  metrics,
		cacheDir: cacheDir,
	}
}

func cacheFileName(root string) string {
	sum := sha1.Sum([]byte(root))
	return "root-" + hex.EncodeToString(sum[:]) + ".cache"
}

// Open loads a cache from disk if one is fresh enough and matches root,
// otherwise performs a full build, then starts the filesystem watcher.
func (m *Manager) Open(ctx context.Context) error {
	loaded, err := m.loadCache()
	if err != nil {
		m.log.Warn("index cache unreadable, rebuilding", "root", m.root, "error", err)
	}
	if !loaded {
		if err := m.Rescan(ctx); err != nil {
			return err
		}
	}
	return m.startWatching(ctx)
}

// Rescan discards the current Data and performs a fresh parallel walk of
// root, replacing Data atomically on completion. Any watcher changes
// observed mid-walk are queued and replayed against the fresh Data before
// Ready is reported, so nothing racing the walk is lost.
func (m *Manager) Rescan(ctx context.Context) error {
	gen := m.shared.BeginBuild(time.Now().Unix())
	if m.metrics != nil {
		m.metrics.IndexBuildStarted(m.root)
	}
	started := time.Now()

	tree, err := Walk(ctx, WalkOptions{Root: m.root, IgnoredPaths: m.ignored}, m.shared.Progress())
	if err != nil {
		m.shared.FailBuild(gen, err)
		if m.metrics != nil {
			m.metrics.RecordIndexBuild(m.root, "error", time.Since(started).Seconds())
		}
		return cocoerr.Wrap(cocoerr.ClassFatalIndex, "walk failed", err)
	}

	var pool *namepool.Pool
	m.shared.View(func(d *Data) { pool = d.pool })
	data := NewData(pool)
	data.IgnoredPath = m.ignored
	Construct(data, tree, m.root)

	pending, ok := m.shared.CommitBuild(gen, data)
	if !ok {
		// A newer build started and will supersede this one; drop the
		// stale result silently.
		return nil
	}
	for _, change := range pending {
		m.applyPendingChange(change)
	}
	if m.metrics != nil {
		m.metrics.RecordIndexBuild(m.root, "ok", time.Since(started).Seconds())
		m.metrics.SetIndexedNodes(m.root, int64(data.Len()))
	}
	m.shared.IncrementRescanCount()
	if err := m.saveCache(); err != nil {
		m.log.Warn("failed to write index cache", "root", m.root, "error", err)
	}
	return nil
}

func (m *Manager) startWatching(ctx context.Context) error {
	w, err := NewWatcher(m.log)
	if err != nil {
		// Watching is best-effort: an index still answers queries without
		// live updates, it just goes stale until the next explicit rescan.
		m.log.Warn("watcher unavailable, index will not auto-update", "root", m.root, "error", err)
		return nil
	}
	m.watcher = w

	m.shared.View(func(d *Data) {
		forEachDir(d, func(path string) { _ = w.Add(path) })
	})

	watchCtx, cancel := context.WithCancel(ctx)
	m.cancelWatch = cancel

	go w.Run(watchCtx, func(changes []PendingChange, escalate bool) {
		if escalate {
			if m.metrics != nil {
				m.metrics.RecordWatcherRescan(m.root)
			}
			if err := m.Rescan(context.Background()); err != nil {
				m.log.Error("rescan after watcher escalation failed", "root", m.root, "error", err)
			}
			return
		}
		for _, c := range changes {
			if m.metrics != nil {
				m.metrics.RecordWatcherEvent(m.root, pendingKindLabel(c.Kind))
			}
			if m.shared.State() != StateReady {
				m.shared.QueuePendingChange(c)
				continue
			}
			m.applyPendingChange(c)
		}
	})
	return nil
}

func pendingKindLabel(k PendingChangeKind) string {
	switch k {
	case PendingCreate:
		return "create"
	case PendingModify:
		return "modify"
	case PendingRemove:
		return "remove"
	default:
		return "rescan_required"
	}
}

// forEachDir invokes fn with the full path of every directory node in d,
// including the root, used to seed the watcher's directory list after a
// build.
func forEachDir(d *Data, fn func(path string)) {
	root, ok := d.Root.Get()
	if !ok {
		return
	}
	var visit func(id slab.SlabIndex)
	visit = func(id slab.SlabIndex) {
		n := d.Get(id)
		if n == nil {
			return
		}
		if n.Kind == KindDir {
			fn(d.Path(id))
		}
		for _, child := range n.Children() {
			visit(child)
		}
	}
	visit(root)
}

// findByPath resolves an absolute filesystem path to its node id by
// walking the name index for its basename and checking each candidate's
// reconstructed path, since Data does not maintain a reverse path index.
func findByPath(d *Data, path string) (slab.SlabIndex, bool) {
	root, ok := d.Root.Get()
	if !ok {
		return 0, false
	}
	if filepath.Clean(path) == filepath.Clean(d.RootPath) {
		return root, true
	}
	base := filepath.Base(path)
	for _, id := range d.LookupName(lowerASCII(base)) {
		if d.Get(id) != nil && filepath.Clean(d.Path(id)) == filepath.Clean(path) {
			return id, true
		}
	}
	return 0, false
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// applyPendingChange updates Data in place for one watcher-observed path,
// re-stat'ing the path to decide whether it is a create, modify, or
// remove, since fsnotify's own classification can race with fast
// create+delete bursts.
func (m *Manager) applyPendingChange(c PendingChange) {
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()
	data := m.shared.data

	info, statErr := os.Lstat(c.Path)
	existingID, existingOK := findByPath(data, c.Path)

	if statErr != nil || c.Kind == PendingRemove {
		if existingOK {
			data.Remove(existingID)
		}
		return
	}

	kind := KindFile
	switch {
	case info.IsDir():
		kind = KindDir
	case info.Mode()&os.ModeSymlink != 0:
		kind = KindSymlink
	}

	if existingOK {
		data.SetModTime(existingID, info.ModTime().Unix(), false)
		if !info.IsDir() {
			data.SetSize(existingID, info.Size())
		}
		return
	}

	parentID, parentOK := findByPath(data, filepath.Dir(c.Path))
	if !parentOK {
		// Parent isn't indexed (e.g. it arrived out of order); the next
		// rescan will pick this path up.
		return
	}
	id := data.Insert(slab.Some(parentID), filepath.Base(c.Path), kind)
	if !info.IsDir() {
		data.SetSize(id, info.Size())
	}
	data.SetModTime(id, info.ModTime().Unix(), false)
	if kind == KindDir && m.watcher != nil {
		_ = m.watcher.Add(c.Path)
	}
}

// Close stops the watcher and flushes the cache one last time.
func (m *Manager) Close() error {
	if m.cancelWatch != nil {
		m.cancelWatch()
	}
	if m.watcher != nil {
		_ = m.watcher.Close()
	}
	return m.saveCache()
}

// View runs fn with read access to the current Data.
func (m *Manager) View(fn func(*Data)) { m.shared.View(fn) }

// Status reports the manager's build state and progress for a status
// query.
func (m *Manager) Status() (BuildState, Snapshot, string) {
	return m.shared.State(), m.shared.Progress().Snapshot(), m.shared.LastError()
}

// cacheBlob is the on-disk cache envelope: version-gated and stamped with
// the root path and write time so a stale or foreign cache is rejected
// rather than silently misapplied.
type cacheBlob struct {
	Version   int
	Root      string
	WrittenAt int64
	Tree      *treeNode
}

// rebuildTree reconstructs a treeNode tree from the live Data, used only
// to produce a serializable cache snapshot; the slab itself is never
// serialized directly, since its free-list slots and raw indices are not
// meaningful across process restarts.
func rebuildTree(d *Data) *treeNode {
	root, ok := d.Root.Get()
	if !ok {
		return nil
	}
	var build func(id slab.SlabIndex) *treeNode
	build = func(id slab.SlabIndex) *treeNode {
		n := d.Get(id)
		if n == nil {
			return nil
		}
		name, _ := d.pool.Lookup(n.Name)
		t := &treeNode{Name: name, Kind: n.Kind, Size: n.Size, HasSize: n.HasSize, ModTime: n.ModTime}
		for _, child := range n.Children() {
			if ct := build(child); ct != nil {
				t.Children = append(t.Children, ct)
			}
		}
		return t
	}
	return build(root)
}

func (m *Manager) saveCache() error {
	if m.cacheDir == "" {
		return nil
	}
	var tree *treeNode
	m.shared.View(func(d *Data) { tree = rebuildTree(d) })
	if tree == nil {
		return nil
	}
	blob := cacheBlob{Version: CacheVersion, Root: m.root, WrittenAt: time.Now().Unix(), Tree: tree}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(blob); err != nil {
		return err
	}
	if err := os.MkdirAll(m.cacheDir, 0o755); err != nil {
		return err
	}
	tmp := m.shared.CachePath + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, m.shared.CachePath)
}

// loadCache restores Data from a prior saveCache, rejecting a cache whose
// version or root path doesn't match, or whose age exceeds CacheMaxAge —
// the redesign decision recorded in DESIGN.md is to discard and rebuild
// rather than attempt to reconcile a stale or foreign cache.
func (m *Manager) loadCache() (bool, error) {
	raw, err := os.ReadFile(m.shared.CachePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	var blob cacheBlob
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&blob); err != nil {
		return false, err
	}
	if blob.Version != CacheVersion || blob.Root != m.root {
		return false, nil
	}
	if time.Since(time.Unix(blob.WrittenAt, 0)) > CacheMaxAge {
		return false, nil
	}

	var pool *namepool.Pool
	m.shared.View(func(d *Data) { pool = d.pool })
	data := NewData(pool)
	data.IgnoredPath = m.ignored
	Construct(data, blob.Tree, m.root)

	gen := m.shared.BeginBuild(blob.WrittenAt)
	if _, ok := m.shared.CommitBuild(gen, data); !ok {
		return false, nil
	}
	if m.metrics != nil {
		m.metrics.SetIndexedNodes(m.root, int64(data.Len()))
	}
	return true, nil
}
