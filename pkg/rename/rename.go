// Package rename correlates files that exist only in the source with files
// that exist only in the destination and have the same content, so the sync
// can move them inside the destination instead of copying them again.
//
// Candidates must share a Signature (size and modification time). Unless
// metadata-only mode is on, candidates are then confirmed with a SHA-256
// fingerprint of their content, computed lazily and only for files whose
// signature also occurs on the other side.
package rename

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/sync/errgroup"

	"github.com/paulschiretz/pgl-sync/pkg/filter"
	"github.com/paulschiretz/pgl-sync/pkg/metrics"
	"github.com/paulschiretz/pgl-sync/pkg/pathscan"
	"github.com/paulschiretz/pgl-sync/pkg/plog"
	"github.com/paulschiretz/pgl-sync/pkg/pool"
	"github.com/paulschiretz/pgl-sync/pkg/util"
)

// Hint pairs a source-only entry with the destination-only entry it was renamed from.
type Hint struct {
	Source *pathscan.Entry
	Dest   *pathscan.Entry
}

// Options controls rename detection.
type Options struct {
	// Threshold is the minimum file size in bytes for a rename candidate.
	Threshold int64
	// MetadataOnly trusts equal signatures without reading file content.
	MetadataOnly bool
	// Workers bounds concurrent fingerprinting. Zero uses GOMAXPROCS.
	Workers int
	// Buffers supplies read buffers for fingerprinting. Nil allocates per file.
	Buffers *pool.FixedBufferPool
	Metrics metrics.Metrics
}

// Result holds the chosen hints, sorted by source path, and any non-fatal warnings.
type Result struct {
	Hints    []Hint
	Warnings []error
}

// AmbiguousRenameWarning is reported when several source or destination files
// share an identity. It is resolved deterministically and never fails the run.
type AmbiguousRenameWarning struct {
	Sources      []string
	Destinations []string
}

func (w *AmbiguousRenameWarning) Error() string {
	return fmt.Sprintf("ambiguous rename: %d source and %d destination files share an identity (sources %v, destinations %v)",
		len(w.Sources), len(w.Destinations), w.Sources, w.Destinations)
}

// IsHint marks the warning as a soft failure.
func (w *AmbiguousRenameWarning) IsHint() bool { return true }

// identity is the full equivalence key of a candidate.
type identity struct {
	sig         pathscan.Signature
	fingerprint string
}

type candidate struct {
	entry *pathscan.Entry
	abs   string
	fp    string
	err   error
}

// Detect pairs sourceOnly entries with destOnly entries of equal identity.
// Every entry appears in at most one hint. An error is only returned on cancellation.
func Detect(ctx context.Context, src, dst *pathscan.Tree, sourceOnly, destOnly []*pathscan.Entry, opts Options) (Result, error) {
	m := metrics.OrNoop(opts.Metrics)

	srcBySig := groupBySignature(sourceOnly, opts.Threshold)
	dstBySig := groupBySignature(destOnly, opts.Threshold)

	// 1. Keep only signatures that occur on both sides.
	var srcCands, dstCands []*candidate
	for sig, srcEntries := range srcBySig {
		dstEntries, ok := dstBySig[sig]
		if !ok {
			continue
		}
		for _, e := range srcEntries {
			srcCands = append(srcCands, &candidate{entry: e, abs: absPath(src, e)})
		}
		for _, e := range dstEntries {
			dstCands = append(dstCands, &candidate{entry: e, abs: absPath(dst, e)})
		}
	}
	if len(srcCands) == 0 {
		return Result{}, nil
	}

	// 2. Confirm by content.
	if !opts.MetadataOnly {
		if err := fingerprintAll(ctx, append(slices.Clone(srcCands), dstCands...), opts, m); err != nil {
			return Result{}, err
		}
	}

	// 3. Group into identity classes, dropping entries that could not be read.
	srcByID := groupByIdentity(srcCands)
	dstByID := groupByIdentity(dstCands)

	ids := make([]identity, 0, len(srcByID))
	for id := range srcByID {
		if _, ok := dstByID[id]; ok {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, compareIdentity)

	// 4. Resolve every class by a total order.
	var res Result
	for _, id := range ids {
		srcs, dsts := srcByID[id], dstByID[id]
		if len(srcs) > 1 || len(dsts) > 1 {
			warn := &AmbiguousRenameWarning{Sources: entryPaths(srcs), Destinations: entryPaths(dsts)}
			plog.Warn("Ambiguous rename resolved by path distance", "sources", warn.Sources, "destinations", warn.Destinations)
			res.Warnings = append(res.Warnings, warn)
		}
		res.Hints = append(res.Hints, pairClass(srcs, dsts)...)
	}

	slices.SortFunc(res.Hints, func(a, b Hint) int { return strings.Compare(a.Source.Path, b.Source.Path) })
	for _, h := range res.Hints {
		plog.Debug("RENAME", "from", h.Dest.Path, "to", h.Source.Path)
	}
	return res, nil
}

func groupBySignature(entries []*pathscan.Entry, threshold int64) map[pathscan.Signature][]*pathscan.Entry {
	out := make(map[pathscan.Signature][]*pathscan.Entry)
	for _, e := range entries {
		if e.Kind != filter.File || e.IsSymlink || e.Size < threshold {
			continue
		}
		out[e.Signature()] = append(out[e.Signature()], e)
	}
	return out
}

func groupByIdentity(cands []*candidate) map[identity][]*pathscan.Entry {
	out := make(map[identity][]*pathscan.Entry)
	for _, c := range cands {
		if c.err != nil {
			continue
		}
		id := identity{sig: c.entry.Signature(), fingerprint: c.fp}
		out[id] = append(out[id], c.entry)
	}
	return out
}

// pairClass matches sources and destinations of one identity class greedily,
// preferring the smallest path edit distance, then destination path, then source path.
func pairClass(srcs, dsts []*pathscan.Entry) []Hint {
	if len(srcs) == 1 && len(dsts) == 1 {
		return []Hint{{Source: srcs[0], Dest: dsts[0]}}
	}

	type pair struct {
		src, dst *pathscan.Entry
		dist     int
	}
	pairs := make([]pair, 0, len(srcs)*len(dsts))
	for _, s := range srcs {
		for _, d := range dsts {
			pairs = append(pairs, pair{src: s, dst: d, dist: fuzzy.LevenshteinDistance(s.Path, d.Path)})
		}
	}
	slices.SortFunc(pairs, func(a, b pair) int {
		return cmp.Or(
			cmp.Compare(a.dist, b.dist),
			strings.Compare(a.dst.Path, b.dst.Path),
			strings.Compare(a.src.Path, b.src.Path),
		)
	})

	usedSrc := make(map[*pathscan.Entry]bool, len(srcs))
	usedDst := make(map[*pathscan.Entry]bool, len(dsts))
	var hints []Hint
	for _, p := range pairs {
		if usedSrc[p.src] || usedDst[p.dst] {
			continue
		}
		usedSrc[p.src], usedDst[p.dst] = true, true
		hints = append(hints, Hint{Source: p.src, Dest: p.dst})
	}
	return hints
}

// fingerprintAll hashes every candidate with bounded concurrency.
// A file that cannot be read is logged and dropped from matching.
func fingerprintAll(ctx context.Context, cands []*candidate, opts Options, m metrics.Metrics) error {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, c := range cands {
		g.Go(func() error {
			fp, n, err := fingerprint(gctx, c.abs, opts.Buffers)
			m.AddBytesHashed(n)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				plog.Warn("Failed to fingerprint rename candidate, it will be copied instead", "path", c.entry.Path, "error", err)
				c.err = err
				return nil
			}
			c.fp = fp
			return nil
		})
	}
	return g.Wait()
}

// fingerprint returns the hex SHA-256 of the file at absPath.
func fingerprint(ctx context.Context, absPath string, buffers *pool.FixedBufferPool) (string, int64, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open %s: %w", absPath, err)
	}
	defer f.Close()

	var buf []byte
	if buffers != nil {
		bufPtr := buffers.Get()
		defer buffers.Put(bufPtr)
		buf = (*bufPtr)[:cap(*bufPtr)]
	}

	h := sha256.New()
	n, err := io.CopyBuffer(h, util.NewContextReader(ctx, f), buf)
	if err != nil {
		return "", n, fmt.Errorf("failed to read %s: %w", absPath, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

func absPath(t *pathscan.Tree, e *pathscan.Entry) string {
	return filepath.Join(t.Root, filepath.FromSlash(e.Path))
}

func entryPaths(entries []*pathscan.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	slices.Sort(out)
	return out
}

func compareIdentity(a, b identity) int {
	return cmp.Or(
		cmp.Compare(a.sig.Size, b.sig.Size),
		cmp.Compare(a.sig.ModTime, b.sig.ModTime),
		strings.Compare(a.fingerprint, b.fingerprint),
	)
}
