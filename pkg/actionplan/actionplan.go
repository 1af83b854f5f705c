// Package actionplan diffs a filtered source tree against a filtered
// destination tree and produces the ordered list of actions that makes the
// destination mirror the source.
//
// The plan is complete before anything is executed, and it only depends on the
// two snapshots, the rename hints and the state of the trash root. A dry run and
// a real run with the same inputs therefore see the same plan.
package actionplan

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/paulschiretz/pgl-sync/pkg/filter"
	"github.com/paulschiretz/pgl-sync/pkg/pathscan"
	"github.com/paulschiretz/pgl-sync/pkg/plog"
	"github.com/paulschiretz/pgl-sync/pkg/rename"
)

// Options controls planning.
type Options struct {
	// TrashRoot is the absolute folder destination-only entries are recycled into.
	// Empty disables recycling: destination-only entries are kept and reported.
	TrashRoot string
	// ModTimeWindow is the granularity modification times are truncated to
	// before comparing them. Zero compares exact nanoseconds.
	ModTimeWindow time.Duration
}

// Plan is the ordered action list of one sync.
type Plan struct {
	SourceRoot string
	DestRoot   string
	TrashRoot  string
	Actions    []Action
}

// Count returns the number of actions per kind.
func (p *Plan) Count() map[Kind]int {
	counts := make(map[Kind]int, len(Kinds))
	for _, a := range p.Actions {
		counts[a.Kind]++
	}
	return counts
}

// CopyBytes returns the number of bytes the Copy actions will write.
func (p *Plan) CopyBytes() int64 {
	var n int64
	for _, a := range p.Actions {
		if a.Kind == Copy {
			n += a.Size
		}
	}
	return n
}

// Mutating reports whether executing the plan would change anything.
func (p *Plan) Mutating() bool {
	for _, a := range p.Actions {
		if a.Kind != Skip {
			return true
		}
	}
	return false
}

// ConflictingEntryKindError is returned when a path is a file on one side and
// a folder on the other. It is fatal: the plan is rejected before execution.
type ConflictingEntryKindError struct {
	Path       string
	SourceKind filter.EntryKind
	DestKind   filter.EntryKind
}

func (e *ConflictingEntryKindError) Error() string {
	return fmt.Sprintf("conflicting entry kinds at %q: %s in source, %s in destination", e.Path, e.SourceKind, e.DestKind)
}

type builder struct {
	src, dst *pathscan.Tree
	opts     Options

	plannedDirs  map[string]bool   // Destination keys a MakeDir was planned for.
	plannedTrash map[string]bool   // Trash paths already handed out.
	trashDirs    map[string]string // Recycled folder key -> its trash path.

	mkdirs, moves, copies, recycleFiles, recycleFolders, skips []Action
}

// Build plans the sync of src into dst.
func Build(src, dst *pathscan.Tree, hints []rename.Hint, opts Options) (*Plan, error) {
	if err := checkKindConflicts(src, dst); err != nil {
		return nil, err
	}

	b := &builder{
		src:          src,
		dst:          dst,
		opts:         opts,
		plannedDirs:  make(map[string]bool),
		plannedTrash: make(map[string]bool),
		trashDirs:    make(map[string]string),
	}

	hintBySource := make(map[string]rename.Hint, len(hints))
	renamedFrom := make(map[string]bool, len(hints))
	for _, h := range hints {
		hintBySource[h.Source.Key] = h
		renamedFrom[h.Dest.Key] = true
	}

	// 1. Source entries: moves, copies, folders and up-to-date files.
	for _, s := range src.Entries() {
		if h, ok := hintBySource[s.Key]; ok {
			b.ensureAncestors(s.Path)
			b.moves = append(b.moves, Action{Kind: Move, Path: s.Path, Origin: h.Dest.Path, EntryKind: s.Kind, Size: s.Size, Entry: s})
			continue
		}
		d, exists := dst.Lookup(dst.KeyOf(s.Path))
		if s.Kind == filter.Folder {
			if exists {
				b.skips = append(b.skips, Action{Kind: Skip, Path: s.Path, Reason: ReasonUpToDate, EntryKind: s.Kind, Entry: s})
			} else {
				b.ensureAncestors(s.Path)
			}
			continue
		}
		if exists && b.upToDate(s, d) {
			b.skips = append(b.skips, Action{Kind: Skip, Path: s.Path, Reason: ReasonUpToDate, EntryKind: s.Kind, Size: s.Size, Entry: s})
			continue
		}
		b.ensureAncestors(s.Path)
		a := Action{Kind: Copy, Path: s.Path, Origin: s.Path, EntryKind: s.Kind, Size: s.Size, Entry: s}
		if exists {
			a.Replaces = d.Size
		}
		b.copies = append(b.copies, a)
	}

	// 2. Destination-only entries: recycle, or keep when recycling is off.
	for _, d := range dst.Entries() {
		if renamedFrom[d.Key] {
			continue
		}
		if _, inSource := src.Lookup(src.KeyOf(d.Path)); inSource {
			continue
		}
		if d.Kind == filter.Folder && holdsRenamedEntry(d.Key, renamedFrom) {
			b.skips = append(b.skips, Action{Kind: Skip, Path: d.Path, Reason: ReasonHoldsRenamedEntry, EntryKind: d.Kind, Entry: d})
			continue
		}
		if opts.TrashRoot == "" {
			b.skips = append(b.skips, Action{Kind: Skip, Path: d.Path, Reason: ReasonWouldDeleteSuppressed, EntryKind: d.Kind, Size: d.Size, Entry: d})
			continue
		}
		a := Action{Kind: Recycle, Path: d.Path, TrashPath: b.trashPathFor(d), EntryKind: d.Kind, Size: d.Size, Entry: d}
		if d.Kind == filter.Folder {
			b.recycleFolders = append(b.recycleFolders, a)
		} else {
			b.recycleFiles = append(b.recycleFiles, a)
		}
	}

	return &Plan{
		SourceRoot: src.Root,
		DestRoot:   dst.Root,
		TrashRoot:  opts.TrashRoot,
		Actions:    b.ordered(),
	}, nil
}

// ordered concatenates the stages: MakeDir (parents first), Move, Copy,
// Recycle files, Recycle folders (deepest first), Skip.
func (b *builder) ordered() []Action {
	byPath := func(a, c Action) int { return strings.Compare(a.Path, c.Path) }
	slices.SortFunc(b.mkdirs, byPath)
	slices.SortFunc(b.moves, byPath)
	slices.SortFunc(b.copies, byPath)
	slices.SortFunc(b.recycleFiles, byPath)
	slices.SortFunc(b.recycleFolders, func(a, c Action) int {
		return cmp.Or(cmp.Compare(depth(c.Path), depth(a.Path)), strings.Compare(a.Path, c.Path))
	})
	slices.SortFunc(b.skips, byPath)

	return slices.Concat(b.mkdirs, b.moves, b.copies, b.recycleFiles, b.recycleFolders, b.skips)
}

// upToDate reports whether the destination file already mirrors the source file.
func (b *builder) upToDate(s, d *pathscan.Entry) bool {
	if s.IsSymlink || d.IsSymlink {
		return s.IsSymlink && d.IsSymlink && s.LinkTarget == d.LinkTarget
	}
	if s.Size != d.Size {
		return false
	}
	return truncate(d.ModTime, b.opts.ModTimeWindow) >= truncate(s.ModTime, b.opts.ModTimeWindow)
}

// ensureAncestors plans a MakeDir for p and every ancestor of p that does not
// exist in the destination yet. Pass a file's path to create only its parents.
func (b *builder) ensureAncestors(p string) {
	dir := p
	if e, ok := b.src.Lookup(b.src.KeyOf(p)); !ok || e.Kind != filter.Folder {
		dir = path.Dir(p)
	}
	if dir == "." || dir == "" {
		return
	}

	parts := strings.Split(dir, "/")
	for i := range parts {
		prefix := strings.Join(parts[:i+1], "/")
		key := b.dst.KeyOf(prefix)
		if b.plannedDirs[key] || b.dirExists(key) {
			continue
		}
		b.plannedDirs[key] = true
		a := Action{Kind: MakeDir, Path: prefix, EntryKind: filter.Folder}
		if e, ok := b.src.Lookup(b.src.KeyOf(prefix)); ok {
			a.Entry = e
		}
		b.mkdirs = append(b.mkdirs, a)
	}
}

// dirExists reports whether the destination snapshot proves the folder exists.
func (b *builder) dirExists(key string) bool {
	if b.dst.Missing {
		return false
	}
	if e, ok := b.dst.Lookup(key); ok && e.Kind == filter.Folder {
		return true
	}
	return b.dst.Traversed(key)
}

// trashPathFor picks a collision-free path below the trash root. Children of a
// recycled folder follow the folder. Existing files are never overwritten; a
// numeric suffix is added instead.
func (b *builder) trashPathFor(d *pathscan.Entry) string {
	base := d.Path
	parent, name := path.Split(d.Path)
	parent = strings.TrimSuffix(parent, "/")
	if parentTrash, ok := b.trashDirs[b.dst.KeyOf(parent)]; ok && parent != "" {
		base = path.Join(parentTrash, name)
	}

	if d.Kind == filter.Folder {
		// Recycling a folder only mirrors it; merging into an existing trash folder overwrites nothing.
		b.trashDirs[d.Key] = base
		b.plannedTrash[base] = true
		return base
	}

	candidate := base
	for n := 1; b.plannedTrash[candidate] || b.trashOccupied(candidate); n++ {
		candidate = withSuffix(base, n)
	}
	b.plannedTrash[candidate] = true
	return candidate
}

func (b *builder) trashOccupied(rel string) bool {
	_, err := os.Lstat(filepath.Join(b.opts.TrashRoot, filepath.FromSlash(rel)))
	if err == nil {
		return true
	}
	if !errors.Is(err, fs.ErrNotExist) {
		// Unknown state: treat as taken so nothing is overwritten.
		plog.Debug("Could not stat trash path, treating as taken", "path", rel, "error", err)
		return true
	}
	return false
}

// withSuffix turns "a/b/name.ext" into "a/b/name.N.ext".
func withSuffix(p string, n int) string {
	dir, file := path.Split(p)
	ext := path.Ext(file)
	stem := strings.TrimSuffix(file, ext)
	if stem == "" { // Dot files like ".env".
		stem, ext = file, ""
	}
	return fmt.Sprintf("%s%s.%d%s", dir, stem, n, ext)
}

func holdsRenamedEntry(folderKey string, renamedFrom map[string]bool) bool {
	prefix := folderKey + "/"
	for key := range renamedFrom {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

func checkKindConflicts(src, dst *pathscan.Tree) error {
	var first *ConflictingEntryKindError
	for _, s := range src.Entries() {
		d, ok := dst.Lookup(dst.KeyOf(s.Path))
		if !ok || d.Kind == s.Kind {
			continue
		}
		conflict := &ConflictingEntryKindError{Path: s.Path, SourceKind: s.Kind, DestKind: d.Kind}
		plog.Error("Entry kind conflict", "path", s.Path, "source", s.Kind, "destination", d.Kind)
		if first == nil {
			first = conflict
		}
	}
	if first != nil {
		return first
	}
	return nil
}

func truncate(ns int64, window time.Duration) int64 {
	if window <= 0 {
		return ns
	}
	w := int64(window)
	return ns - ns%w
}

func depth(p string) int {
	return strings.Count(p, "/")
}
