// Package pathscan walks a directory tree under the control of a compiled
// filter and produces an in-memory snapshot of the included entries.
//
// A walk is depth-first from the root's children, children in name order.
// Folders are entered when the filter says something below them could still be
// included, and are recorded as entries only when the filter includes them
// directly. Errors below the root (unreadable folders, symlink cycles) are
// scoped to their subtree and collected on the Tree; only a missing or
// unreadable root, or cancellation, fails the walk.
package pathscan

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/paulschiretz/pgl-sync/pkg/filter"
)

// Signature is the cheap identity of a file: two files with different
// signatures never have the same content as far as the sync is concerned.
type Signature struct {
	Size    int64
	ModTime int64 // Unix nano.
}

// Entry is a snapshot of a single file system object below a root.
type Entry struct {
	Path       string           // Root relative, forward slashes, as found on disk.
	Key        string           // Path, case folded when the filter folds case.
	Kind       filter.EntryKind // File or Folder.
	ModTime    int64            // Unix nano.
	Size       int64
	Mode       os.FileMode
	IsSymlink  bool   // A link that was not followed; it is synced as a link.
	LinkTarget string // Only set when IsSymlink is true.
}

// Signature returns the cheap identity of the entry.
func (e *Entry) Signature() Signature {
	return Signature{Size: e.Size, ModTime: e.ModTime}
}

// Tree is the filtered snapshot of one root. It is built once per run and is
// read-only afterwards.
type Tree struct {
	Root            string // Absolute, OS native.
	FoldCase        bool
	Missing         bool // The root did not exist when it was walked.
	entries         map[string]*Entry
	traversed       map[string]struct{}
	FilesExcluded   int64
	FoldersExcluded int64
	Errors          []error // *CycleDetectedError and *ScanError, in walk order.
}

func newTree(root string, foldCase bool) *Tree {
	return &Tree{
		Root:      root,
		FoldCase:  foldCase,
		entries:   make(map[string]*Entry),
		traversed: map[string]struct{}{"": {}},
	}
}

// KeyOf converts a root relative path into the lookup key used by this tree.
func (t *Tree) KeyOf(path string) string {
	if t.FoldCase {
		return strings.ToLower(path)
	}
	return path
}

// Lookup returns the entry stored under key.
func (t *Tree) Lookup(key string) (*Entry, bool) {
	e, ok := t.entries[key]
	return e, ok
}

// Traversed reports whether the walker descended into the folder with the given key.
// The root is always traversed.
func (t *Tree) Traversed(key string) bool {
	_, ok := t.traversed[key]
	return ok
}

// Len returns the number of included entries.
func (t *Tree) Len() int { return len(t.entries) }

// Entries returns all included entries sorted by path.
func (t *Tree) Entries() []*Entry {
	out := make([]*Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b *Entry) int { return strings.Compare(a.Path, b.Path) })
	return out
}

func (t *Tree) add(e *Entry) {
	t.entries[e.Key] = e
}

// NewTree builds a tree from entries, for callers that already hold a snapshot.
func NewTree(root string, foldCase bool, entries ...*Entry) *Tree {
	t := newTree(root, foldCase)
	for _, e := range entries {
		if e.Key == "" {
			e.Key = t.KeyOf(e.Path)
		}
		t.add(e)
		if e.Kind == filter.Folder {
			t.traversed[e.Key] = struct{}{}
		}
	}
	return t
}

// CycleDetectedError is recorded when following a symlink would re-enter a
// folder that is already on the active walk path.
type CycleDetectedError struct {
	Path    string // The link that closes the cycle.
	LoopsTo string // The folder it resolves to ("" is the root).
}

func (e *CycleDetectedError) Error() string {
	return fmt.Sprintf("symlink cycle detected at %q (loops back to %q), subtree skipped", e.Path, e.LoopsTo)
}

// ScanError is recorded when a folder or entry below the root cannot be read.
type ScanError struct {
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("failed to scan %q: %v", e.Path, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// OnlyIn returns the entries of a that have no entry under the same path in b,
// sorted by path.
func OnlyIn(a, b *Tree) []*Entry {
	var out []*Entry
	for _, e := range a.Entries() {
		if _, ok := b.Lookup(b.KeyOf(e.Path)); !ok {
			out = append(out, e)
		}
	}
	return out
}
