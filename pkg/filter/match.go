package filter

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

type segmentKind int

const (
	literalSegment segmentKind = iota
	wildcardSegment
	recursiveSegment
)

// segment is one "/" separated part of a compiled pattern.
type segment struct {
	kind segmentKind
	text string // Case folded when the pattern was compiled with FoldCase.
}

// Pattern is a compiled, root-anchored glob. Patterns are immutable and safe
// for concurrent use.
type Pattern struct {
	raw      string
	segments []segment
	kind     Kind
	opts     Options
}

// String returns the pattern as it was written in the filter string.
func (p Pattern) String() string { return p.raw }

// Kind returns the entry kinds the pattern applies to.
func (p Pattern) Kind() Kind { return p.kind }

// Matches reports whether the pattern consumes every segment of path exactly
// and the entry kind is compatible with the pattern kind.
// path is relative to the synced root and uses forward slashes.
func (p Pattern) Matches(path string, kind EntryKind) bool {
	if !p.kind.admits(kind) {
		return false
	}
	names := p.split(path)
	if len(names) == 0 {
		return false
	}

	// m[i][j]: pattern segments i.. consume path segments j.. exactly.
	np, nn := len(p.segments), len(names)
	m := make([][]bool, np+1)
	for i := range m {
		m[i] = make([]bool, nn+1)
	}
	m[np][nn] = true

	for i := np - 1; i >= 0; i-- {
		seg := p.segments[i]
		for j := nn; j >= 0; j-- {
			if seg.kind == recursiveSegment {
				// Zero segments, or one more segment and stay on "**".
				m[i][j] = m[i+1][j] || (j < nn && p.recursiveAccepts(names[j]) && m[i][j+1])
				continue
			}
			m[i][j] = j < nn && p.segmentMatches(seg, names[j]) && m[i+1][j+1]
		}
	}
	return m[0][0]
}

// ReachableThrough reports whether something strictly below folder could still
// be matched by the pattern. The empty folder denotes the root, which every
// pattern is reachable through.
//
// A pattern ending in a literal name is exhausted once folder, or one of its
// ancestors, already matches the whole pattern: for "foo/**/bar.txt" the folder
// "foo/a/bar.txt/extra" is not reachable.
func (p Pattern) ReachableThrough(folder string) bool {
	names := p.split(folder)
	np, nn := len(p.segments), len(names)
	if nn == 0 {
		return np > 0
	}

	// f[i][j]: pattern segments ..i consume path segments ..j exactly.
	f := make([][]bool, np+1)
	for i := range f {
		f[i] = make([]bool, nn+1)
	}
	f[0][0] = true

	for i := 1; i <= np; i++ {
		seg := p.segments[i-1]
		for j := 0; j <= nn; j++ {
			if seg.kind == recursiveSegment {
				f[i][j] = f[i-1][j] || (j > 0 && f[i][j-1] && p.recursiveAccepts(names[j-1]))
				continue
			}
			f[i][j] = j > 0 && f[i-1][j-1] && p.segmentMatches(seg, names[j-1])
		}
	}

	last := p.segments[np-1]
	if last.kind == literalSegment {
		for j := 1; j <= nn; j++ {
			if f[np][j] {
				return false
			}
		}
	}

	for i := 0; i < np; i++ {
		if f[i][nn] {
			return true
		}
	}
	// A trailing "**" that has consumed everything can keep growing.
	return last.kind == recursiveSegment && f[np][nn]
}

// split breaks a root-relative path into its names, folding case if required.
func (p Pattern) split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" || path == "." {
		return nil
	}
	if p.opts.FoldCase {
		path = strings.ToLower(path)
	}
	return strings.Split(path, "/")
}

func (p Pattern) segmentMatches(seg segment, name string) bool {
	switch seg.kind {
	case literalSegment:
		return seg.text == name
	case wildcardSegment:
		if p.opts.IgnoreHidden && isHidden(name) && !strings.HasPrefix(seg.text, ".") {
			return false
		}
		// The pattern was validated at compile time, so the error is always nil.
		ok, _ := doublestar.Match(seg.text, name)
		return ok
	default:
		return p.recursiveAccepts(name)
	}
}

// recursiveAccepts reports whether "**" may consume the named segment.
func (p Pattern) recursiveAccepts(name string) bool {
	return !(p.opts.IgnoreHidden && isHidden(name))
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
