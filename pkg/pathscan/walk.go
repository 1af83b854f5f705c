package pathscan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/paulschiretz/pgl-sync/pkg/filter"
	"github.com/paulschiretz/pgl-sync/pkg/metrics"
	"github.com/paulschiretz/pgl-sync/pkg/plog"
)

// Options controls how a tree is walked.
type Options struct {
	// FollowSymlinks resolves links and treats them as what they point to.
	// Links that are not followed, and dangling links, are recorded as links.
	FollowSymlinks bool
	Metrics        metrics.Metrics
}

type walker struct {
	ctx     context.Context
	spec    *filter.Spec
	opts    Options
	metrics metrics.Metrics
	tree    *Tree
	// active holds the identities of the folders on the current recursion path.
	active map[folderID]string
}

// Walk scans root and returns the entries the filter includes.
// A root that does not exist yields an empty tree with Missing set.
func Walk(ctx context.Context, root string, spec *filter.Spec, opts Options) (*Tree, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for %s: %w", root, err)
	}
	tree := newTree(absRoot, spec.Options().FoldCase)

	info, err := os.Stat(absRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			tree.Missing = true
			return tree, nil
		}
		return nil, fmt.Errorf("failed to stat root %s: %w", absRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", absRoot)
	}

	w := &walker{
		ctx:     ctx,
		spec:    spec,
		opts:    opts,
		metrics: metrics.OrNoop(opts.Metrics),
		tree:    tree,
		active:  make(map[folderID]string),
	}
	if err := w.walkFolder(absRoot, ""); err != nil {
		return nil, err
	}
	return tree, nil
}

// WalkPair walks the source and destination roots concurrently. The walks
// share nothing but the immutable filter.
func WalkPair(ctx context.Context, src, dst string, spec *filter.Spec, opts Options) (*Tree, *Tree, error) {
	var srcTree, dstTree *Tree
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		srcTree, err = Walk(gctx, src, spec, opts)
		if err != nil {
			return fmt.Errorf("failed to walk source: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		dstTree, err = Walk(gctx, dst, spec, opts)
		if err != nil {
			return fmt.Errorf("failed to walk destination: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return srcTree, dstTree, nil
}

// walkFolder lists a folder that the filter allowed us to enter.
// It only returns an error for the root or for cancellation.
func (w *walker) walkFolder(absDir, rel string) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}

	id, err := identify(absDir)
	if err != nil {
		if rel == "" {
			return fmt.Errorf("failed to identify root %s: %w", absDir, err)
		}
		w.recordScanError(rel, err)
		return nil
	}
	if origin, seen := w.active[id]; seen {
		cycleErr := &CycleDetectedError{Path: rel, LoopsTo: origin}
		plog.Warn("SKIP", "reason", "symlink cycle", "path", rel, "loops_to", origin)
		w.tree.Errors = append(w.tree.Errors, cycleErr)
		return nil
	}
	w.active[id] = rel
	defer delete(w.active, id)

	// os.ReadDir returns the children sorted by file name.
	children, err := os.ReadDir(absDir)
	if err != nil {
		if rel == "" {
			return fmt.Errorf("root %s is unreadable: %w", absDir, err)
		}
		w.recordScanError(rel, err)
		return nil
	}

	for _, d := range children {
		if err := w.visit(absDir, rel, d); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) visit(absDir, rel string, d fs.DirEntry) error {
	name := d.Name()
	childRel := path.Join(rel, name)
	absChild := filepath.Join(absDir, name)
	w.metrics.AddEntriesScanned(1)

	info, err := d.Info()
	if err != nil {
		w.recordScanError(childRel, err)
		return nil
	}

	isLink := info.Mode()&os.ModeSymlink != 0
	linkTarget := ""
	if isLink {
		if w.opts.FollowSymlinks {
			resolved, statErr := os.Stat(absChild)
			if statErr == nil {
				info = resolved
				isLink = false
			} else {
				plog.Debug("Dangling symlink is synced as a link", "path", childRel, "error", statErr)
			}
		}
		if isLink {
			if linkTarget, err = os.Readlink(absChild); err != nil {
				w.recordScanError(childRel, err)
				return nil
			}
		}
	}

	switch {
	case info.IsDir():
		return w.visitFolder(absChild, childRel, info)
	case info.Mode().IsRegular() || isLink:
		w.visitFile(childRel, info, isLink, linkTarget)
		return nil
	default:
		// Named pipes, sockets and devices are never synced.
		plog.Notice("SKIP", "type", info.Mode().String(), "path", childRel)
		return nil
	}
}

func (w *walker) visitFolder(absChild, childRel string, info fs.FileInfo) error {
	key := w.tree.KeyOf(childRel)
	if w.spec.Decide(childRel, filter.Folder) == filter.Included {
		w.tree.add(&Entry{
			Path:    childRel,
			Key:     key,
			Kind:    filter.Folder,
			ModTime: info.ModTime().UnixNano(),
			Mode:    info.Mode(),
		})
	} else {
		w.tree.FoldersExcluded++
		w.metrics.AddDirsExcluded(1)
	}

	if !w.spec.MustDescend(childRel) {
		plog.Debug("EXCL", "reason", "not descended", "path", childRel)
		return nil
	}
	w.tree.traversed[key] = struct{}{}
	return w.walkFolder(absChild, childRel)
}

func (w *walker) visitFile(childRel string, info fs.FileInfo, isLink bool, linkTarget string) {
	if w.spec.Decide(childRel, filter.File) != filter.Included {
		plog.Debug("EXCL", "reason", "excluded by filter", "path", childRel)
		w.tree.FilesExcluded++
		w.metrics.AddFilesExcluded(1)
		return
	}
	w.tree.add(&Entry{
		Path:       childRel,
		Key:        w.tree.KeyOf(childRel),
		Kind:       filter.File,
		ModTime:    info.ModTime().UnixNano(),
		Size:       info.Size(),
		Mode:       info.Mode(),
		IsSymlink:  isLink,
		LinkTarget: linkTarget,
	})
}

func (w *walker) recordScanError(rel string, err error) {
	plog.Warn("SKIP", "reason", "error accessing path", "path", rel, "error", err)
	w.tree.Errors = append(w.tree.Errors, &ScanError{Path: rel, Err: err})
}
