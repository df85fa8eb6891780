package fstools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cocommand/cocommand/internal/fsindex"
)

// fixedResolver is a RootResolver over one already-open Manager, for tests
// that don't need the registry's lazy-open behavior.
type fixedResolver struct {
	root string
	mgr  *fsindex.Manager
}

func (f *fixedResolver) DefaultRoot() string { return f.root }
func (f *fixedResolver) Manager(_ context.Context, root string) (*fsindex.Manager, error) {
	if root == "" || root == f.root {
		return f.mgr, nil
	}
	return nil, os.ErrNotExist
}

func buildTestIndex(t *testing.T) (string, *fsindex.Manager) {
	t.Helper()
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "a.md"), "Hello World")
	mustWrite(t, filepath.Join(root, "b", "c.md"), "hello")
	mustWrite(t, filepath.Join(root, "b", "d.png"), "binary")
	mustWrite(t, filepath.Join(root, ".hidden"), "secret")

	mgr := fsindex.NewManager(root, nil, "", nil, nil)
	if err := mgr.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return root, mgr
}

func mustWrite(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestSearchFindsFilesByExtension(t *testing.T) {
	root, mgr := buildTestIndex(t)
	tool := &searchTool{resolver: &fixedResolver{root: root, mgr: mgr}}

	input, _ := json.Marshal(searchInput{Query: "ext:md"})
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result.Err) != 0 {
		t.Fatalf("unexpected tool error: %s", result.Err)
	}

	var sr SearchResult
	if err := json.Unmarshal(result.Output, &sr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sr.Count != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", sr.Count, sr.Entries)
	}
	if sr.Entries[0].Path > sr.Entries[1].Path {
		t.Fatalf("expected entries ordered ascending by path, got %v", sr.Entries)
	}
}

func TestSearchContentFilterGrepsFileBody(t *testing.T) {
	root, mgr := buildTestIndex(t)
	tool := &searchTool{resolver: &fixedResolver{root: root, mgr: mgr}}

	input, _ := json.Marshal(searchInput{Query: `content:"hello"`})
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var sr SearchResult
	if err := json.Unmarshal(result.Output, &sr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sr.Count != 2 {
		t.Fatalf("expected both a.md (Hello World) and b/c.md (hello) to match case-insensitively, got %d: %+v", sr.Count, sr.Entries)
	}
}

func TestSearchExcludesHiddenByDefault(t *testing.T) {
	root, mgr := buildTestIndex(t)
	tool := &searchTool{resolver: &fixedResolver{root: root, mgr: mgr}}

	input, _ := json.Marshal(searchInput{Query: "hidden"})
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var sr SearchResult
	if err := json.Unmarshal(result.Output, &sr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sr.Count != 0 {
		t.Fatalf("expected hidden file excluded by default, got %+v", sr.Entries)
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	root, mgr := buildTestIndex(t)
	tool := &searchTool{resolver: &fixedResolver{root: root, mgr: mgr}}

	input, _ := json.Marshal(searchInput{Query: "   "})
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result.Err) == 0 {
		t.Fatal("expected a structured error for an empty query")
	}
}

func TestIndexStatusReportsReadyState(t *testing.T) {
	root, mgr := buildTestIndex(t)
	tool := &indexStatusTool{resolver: &fixedResolver{root: root, mgr: mgr}}

	result, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var status IndexStatus
	if err := json.Unmarshal(result.Output, &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.State != "ready" {
		t.Fatalf("expected ready state, got %q", status.State)
	}
	if status.ScannedFiles == 0 {
		t.Fatalf("expected nonzero scanned_files, got %+v", status)
	}
}

func TestOpenPathRejectsEmptyPath(t *testing.T) {
	tool := &openPathTool{}
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"path":""}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result.Err) == 0 {
		t.Fatal("expected a structured error for an empty path")
	}
}

func TestRevealPathRejectsEmptyPath(t *testing.T) {
	tool := &revealPathTool{}
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"path":""}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result.Err) == 0 {
		t.Fatal("expected a structured error for an empty path")
	}
}

func TestRegistryReusesManagerForSameRoot(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "a.txt"), "x")
	reg := NewRegistry(root, "", nil, nil)

	m1, err := reg.Manager(context.Background(), root)
	if err != nil {
		t.Fatalf("Manager: %v", err)
	}
	m2, err := reg.Manager(context.Background(), root)
	if err != nil {
		t.Fatalf("Manager: %v", err)
	}
	if m1 != m2 {
		t.Fatal("expected the same Manager instance for the same root")
	}
	if err := reg.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestExtensionExposesAllFourTools(t *testing.T) {
	root, mgr := buildTestIndex(t)
	ext := NewExtension(&fixedResolver{root: root, mgr: mgr}, nil)
	for _, name := range []string{"search", "index_status", "open_path", "reveal_path"} {
		if _, ok := ext.Tools[name]; !ok {
			t.Fatalf("expected extension to expose tool %q", name)
		}
	}
}
