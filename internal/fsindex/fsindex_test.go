package fsindex

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cocommand/cocommand/internal/namepool"
)

func writeTree(t *testing.T, root string) {
	t.Helper()
	must := func(err error) {
		if err != nil {
			t.Fatalf("setup: %v", err)
		}
	}
	must(os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	must(os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))
	must(os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("bb"), 0o644))
}

func TestWalkAndConstruct(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root)

	pool := namepool.New()
	progress := &Progress{}
	tree, err := Walk(context.Background(), WalkOptions{Root: root}, progress)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}

	data := NewData(pool)
	Construct(data, tree, root)

	if err := data.CheckInvariants(); err != nil {
		t.Fatalf("CheckInvariants: %v", err)
	}
	if got := len(data.LookupName("a.txt")); got != 1 {
		t.Fatalf("expected one a.txt entry, got %d", got)
	}
	if got := len(data.LookupName("b.txt")); got != 1 {
		t.Fatalf("expected one b.txt entry, got %d", got)
	}
	if data.Len() != 4 { // root, sub, a.txt, b.txt
		t.Fatalf("expected 4 nodes, got %d", data.Len())
	}
}

func TestManagerRescanAndApplyChange(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root)

	m := NewManager(root, nil, "", nil, nil)
	if err := m.Rescan(context.Background()); err != nil {
		t.Fatalf("Rescan: %v", err)
	}

	var before int
	m.View(func(d *Data) { before = d.Len() })

	newFile := filepath.Join(root, "c.txt")
	if err := os.WriteFile(newFile, []byte("c"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m.applyPendingChange(PendingChange{Path: newFile, Kind: PendingCreate})

	var after int
	var found bool
	m.View(func(d *Data) {
		after = d.Len()
		_, found = findByPath(d, newFile)
	})
	if after != before+1 {
		t.Fatalf("expected node count to grow by 1, got %d -> %d", before, after)
	}
	if !found {
		t.Fatalf("expected new file to be findable by path")
	}

	m.applyPendingChange(PendingChange{Path: newFile, Kind: PendingRemove})
	var gone bool
	m.View(func(d *Data) { _, gone = findByPath(d, newFile) })
	if gone {
		t.Fatalf("expected removed file to no longer resolve by path")
	}
}

func TestManagerCacheRoundTrip(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root)
	cacheDir := t.TempDir()

	m1 := NewManager(root, nil, cacheDir, nil, nil)
	if err := m1.Rescan(context.Background()); err != nil {
		t.Fatalf("Rescan: %v", err)
	}
	if err := m1.saveCache(); err != nil {
		t.Fatalf("saveCache: %v", err)
	}

	m2 := NewManager(root, nil, cacheDir, nil, nil)
	loaded, err := m2.loadCache()
	if err != nil {
		t.Fatalf("loadCache: %v", err)
	}
	if !loaded {
		t.Fatalf("expected cache to load")
	}
	var n1, n2 int
	m1.View(func(d *Data) { n1 = d.Len() })
	m2.View(func(d *Data) { n2 = d.Len() })
	if n1 != n2 {
		t.Fatalf("expected matching node counts after cache round-trip, got %d and %d", n1, n2)
	}
}
