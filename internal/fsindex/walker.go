package fsindex

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cocommand/cocommand/internal/cocoerr"
	"github.com/cocommand/cocommand/internal/slab"
)

// treeNode is the walker's in-memory intermediate representation: a plain
// tree whose children are sorted by name at every level, built bottom-up
// by the parallel walk and consumed, top-down, by Construct's preorder
// conversion into the slab. Keeping a separate in-memory tree pass lets
// the convert phase assume sorted, already-deduplicated children and
// append rather than search-and-insert.
type treeNode struct {
	Name     string
	Kind     Kind
	Size     int64
	HasSize  bool
	ModTime  int64
	Children []*treeNode
}

// cancelPollMask bounds how often the walker checks its cancellation
// token: the check happens every cancelPollMask+1 entries visited rather
// than on every one, so a deep, file-dense tree doesn't pay a channel
// select per entry.
const cancelPollMask = 1<<16 - 1

// WalkOptions configures one walk.
type WalkOptions struct {
	Root         string
	IgnoredPaths []string
	// MaxParallelism bounds concurrent directory reads; 0 selects a
	// reasonable default.
	MaxParallelism int
}

// Walk performs a parallel directory crawl rooted at opts.Root, returning
// an in-memory tree whose children are sorted by name at every node. A
// symlink is followed to its canonical target at most once per target
// (subsequent references to an already-visited target are recorded as a
// leaf symlink rather than re-traversed, which also breaks cycles).
// Cancellation is polled sparsely via ctx.Done().
func Walk(ctx context.Context, opts WalkOptions, progress *Progress) (*treeNode, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, cocoerr.InvalidInput("invalid root %q: %v", opts.Root, err)
	}
	info, err := os.Lstat(root)
	if err != nil {
		return nil, cocoerr.Wrap(cocoerr.ClassTransientIO, "stat root", err)
	}

	ignored := make(map[string]bool, len(opts.IgnoredPaths))
	for _, p := range opts.IgnoredPaths {
		if abs, err := filepath.Abs(p); err == nil {
			ignored[abs] = true
		}
	}

	parallelism := opts.MaxParallelism
	if parallelism <= 0 {
		parallelism = 8
	}
	sem := make(chan struct{}, parallelism)

	visitedSymlinks := &sync.Map{}
	var counter uint64

	pollCancelled := func() bool {
		counter++
		if counter&cancelPollMask != 0 {
			return false
		}
		select {
		case <-ctx.Done():
			return true
		default:
			return false
		}
	}

	var walkDir func(path string, fi os.FileInfo) *treeNode
	walkDir = func(path string, fi os.FileInfo) *treeNode {
		if pollCancelled() {
			return nil
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			progress.Errors.Add(1)
			return &treeNode{Name: fi.Name(), Kind: KindDir}
		}

		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		results := make([]*treeNode, len(entries))
		var wg sync.WaitGroup
		for i, entry := range entries {
			if pollCancelled() {
				break
			}
			childPath := filepath.Join(path, entry.Name())
			if ignored[childPath] {
				continue
			}

			wg.Add(1)
			sem <- struct{}{}
			go func(i int, entry os.DirEntry, childPath string) {
				defer wg.Done()
				defer func() { <-sem }()
				results[i] = visitEntry(childPath, entry, visitedSymlinks, progress, walkDir)
			}(i, entry, childPath)
		}
		wg.Wait()

		node := &treeNode{Name: fi.Name(), Kind: KindDir}
		for _, child := range results {
			if child != nil {
				node.Children = append(node.Children, child)
			}
		}
		sort.Slice(node.Children, func(i, j int) bool { return node.Children[i].Name < node.Children[j].Name })
		progress.ScannedDirs.Add(1)
		return node
	}

	if !info.IsDir() {
		progress.ScannedFiles.Add(1)
		return &treeNode{Name: filepath.Base(root), Kind: KindFile, Size: info.Size(), HasSize: true, ModTime: info.ModTime().Unix()}, nil
	}

	tree := walkDir(root, info)
	if tree == nil {
		return nil, context.Canceled
	}
	return tree, nil
}

// visitEntry classifies one directory entry, recursing into directories
// and following symlinks at most once per canonical target.
func visitEntry(path string, entry os.DirEntry, visited *sync.Map, progress *Progress, walkDir func(string, os.FileInfo) *treeNode) *treeNode {
	fi, err := entry.Info()
	if err != nil {
		progress.Errors.Add(1)
		return nil
	}

	if fi.Mode()&os.ModeSymlink != 0 {
		target, err := filepath.EvalSymlinks(path)
		if err != nil {
			progress.Errors.Add(1)
			return &treeNode{Name: entry.Name(), Kind: KindSymlink}
		}
		if _, loaded := visited.LoadOrStore(target, true); loaded {
			return &treeNode{Name: entry.Name(), Kind: KindSymlink}
		}
		targetInfo, err := os.Stat(target)
		if err != nil {
			progress.Errors.Add(1)
			return &treeNode{Name: entry.Name(), Kind: KindSymlink}
		}
		if targetInfo.IsDir() {
			sub := walkDir(target, targetInfo)
			if sub == nil {
				return nil
			}
			sub.Name = entry.Name()
			sub.Kind = KindSymlink
			return sub
		}
		progress.ScannedFiles.Add(1)
		return &treeNode{Name: entry.Name(), Kind: KindSymlink, Size: targetInfo.Size(), HasSize: true, ModTime: targetInfo.ModTime().Unix()}
	}

	if entry.IsDir() {
		return walkDir(path, fi)
	}

	progress.ScannedFiles.Add(1)
	kind := KindFile
	if fi.Mode()&os.ModeIrregular != 0 || !fi.Mode().IsRegular() {
		kind = KindOther
	}
	return &treeNode{Name: entry.Name(), Kind: kind, Size: fi.Size(), HasSize: true, ModTime: fi.ModTime().Unix()}
}

// Construct converts a walked tree into Index Data via a preorder
// traversal rooted at tree. Because the tree's children are already
// sorted by name at every level, each parent's child list is appended to
// in order as it's built, so Data.Insert's O(1) append path is taken for
// every node instead of its search-and-shift fallback.
func Construct(data *Data, tree *treeNode, rootPath string) slab.SlabIndex {
	return constructNode(data, tree, slab.NoneIndex, rootPath)
}

func constructNode(data *Data, n *treeNode, parent slab.OptionSlabIndex, name string) slab.SlabIndex {
	id := data.Insert(parent, name, n.Kind)
	if n.HasSize {
		data.SetSize(id, n.Size)
	}
	if n.ModTime != 0 {
		data.SetModTime(id, n.ModTime, true)
	}
	for _, child := range n.Children {
		constructNode(data, child, slab.Some(id), child.Name)
	}
	return id
}
