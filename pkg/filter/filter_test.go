package filter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var caseSensitive = Options{}

func mustPattern(t *testing.T, raw string, opts Options) Pattern {
	t.Helper()
	p, ok, err := compilePattern(raw, opts)
	require.NoError(t, err)
	require.True(t, ok, "pattern %q compiled to nothing", raw)
	return p
}

func TestCompile(t *testing.T) {
	t.Run("Empty filter falls back to default", func(t *testing.T) {
		spec, err := Compile("   ", caseSensitive)
		require.NoError(t, err)
		assert.Equal(t, DefaultSpec, spec.String())
		rules := spec.Rules()
		require.Len(t, rules, 2)
		assert.Equal(t, FolderOnly, rules[0].Pattern.Kind())
		assert.Equal(t, FileOnly, rules[1].Pattern.Kind())
	})

	t.Run("Indicators apply to all following patterns", func(t *testing.T) {
		spec, err := Compile("- build/ *.tmp + **", caseSensitive)
		require.NoError(t, err)
		rules := spec.Rules()
		require.Len(t, rules, 3)
		assert.Equal(t, Exclude, rules[0].Sign)
		assert.Equal(t, Exclude, rules[1].Sign)
		assert.Equal(t, Include, rules[2].Sign)
		assert.Equal(t, Both, rules[2].Pattern.Kind())
	})

	t.Run("Quotes keep spaces and are removed", func(t *testing.T) {
		spec, err := Compile(`+ "My Docs/**/*.pdf" 'a b/'`, caseSensitive)
		require.NoError(t, err)
		rules := spec.Rules()
		require.Len(t, rules, 2)
		assert.Equal(t, "My Docs/**/*.pdf", rules[0].Pattern.String())
		assert.Equal(t, FolderOnly, rules[1].Pattern.Kind())
		assert.True(t, spec.Decide("My Docs/x/y.pdf", File) == Included)
	})

	t.Run("Quoted indicator is a pattern", func(t *testing.T) {
		spec, err := Compile(`+ "-"`, caseSensitive)
		require.NoError(t, err)
		assert.Equal(t, Included, spec.Decide("-", File))
	})

	t.Run("Leading dot slash is stripped", func(t *testing.T) {
		spec, err := Compile("+ ./docs/*.txt ./", caseSensitive)
		require.NoError(t, err)
		require.Len(t, spec.Rules(), 1)
		assert.Equal(t, Included, spec.Decide("docs/a.txt", File))
	})

	malformed := []struct {
		name   string
		filter string
	}{
		{"Pattern before indicator", "docs/ + **"},
		{"Indicator without pattern", "+ - **"},
		{"Trailing indicator", "+ ** -"},
		{"Unbalanced quote", `+ "docs/**`},
		{"Absolute pattern", "+ /etc/passwd"},
		{"Parent segment", "+ docs/../x"},
		{"Empty interior segment", "+ docs//x"},
		{"Invalid glob", "+ docs/[abc"},
		{"Only empty patterns", "+ ./"},
	}
	for _, tc := range malformed {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(tc.filter, caseSensitive)
			var mfe *MalformedFilterError
			require.True(t, errors.As(err, &mfe), "expected MalformedFilterError, got %v", err)
			assert.Equal(t, tc.filter, mfe.Filter)
		})
	}

	t.Run("MustCompile panics on malformed input", func(t *testing.T) {
		assert.Panics(t, func() { MustCompile("docs", caseSensitive) })
	})
}

func TestPatternMatches(t *testing.T) {
	testCases := []struct {
		name    string
		pattern string
		path    string
		kind    EntryKind
		want    bool
	}{
		{"Literal file", "docs/a.txt", "docs/a.txt", File, true},
		{"Literal wrong kind", "docs/a.txt", "docs/a.txt", Folder, false},
		{"Folder pattern on folder", "docs/", "docs", Folder, true},
		{"Folder pattern on file", "docs/", "docs", File, false},
		{"Star stays in one segment", "*.txt", "docs/a.txt", File, false},
		{"Star matches one segment", "*/*.txt", "docs/a.txt", File, true},
		{"Segment count must agree", "docs/*", "docs/a/b", File, false},
		{"Question mark", "a?c", "abc", File, true},
		{"Character class", "[ab]*.go", "b_test.go", File, true},
		{"Alternation", "{src,lib}/*.go", "lib/x.go", File, true},
		{"Recursive zero segments", "**/a.txt", "a.txt", File, true},
		{"Recursive many segments", "docs/**/a.txt", "docs/x/y/z/a.txt", File, true},
		{"Recursive in the middle needs tail", "docs/**/a.txt", "docs/x/b.txt", File, false},
		{"Lone recursive matches files", "**", "x/y", File, true},
		{"Lone recursive matches folders", "**", "x/y", Folder, true},
		{"Embedded double star is a plain wildcard", "a**b", "axxb", File, true},
		{"Embedded double star does not cross segments", "a**b", "ax/xb", File, false},
		{"Root never matches", "**", "", Folder, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := mustPattern(t, tc.pattern, caseSensitive)
			assert.Equal(t, tc.want, p.Matches(tc.path, tc.kind))
		})
	}
}

func TestPatternMatchesOptions(t *testing.T) {
	t.Run("IgnoreHidden", func(t *testing.T) {
		opts := Options{IgnoreHidden: true}
		assert.False(t, mustPattern(t, "*", opts).Matches(".bashrc", File))
		assert.True(t, mustPattern(t, ".*", opts).Matches(".bashrc", File))
		assert.False(t, mustPattern(t, "**/*.txt", opts).Matches(".git/a.txt", File))
		assert.True(t, mustPattern(t, ".git/**/*.txt", opts).Matches(".git/x/a.txt", File))
		assert.True(t, mustPattern(t, "*", caseSensitive).Matches(".bashrc", File))
	})

	t.Run("FoldCase", func(t *testing.T) {
		opts := Options{FoldCase: true}
		assert.True(t, mustPattern(t, "Docs/*.TXT", opts).Matches("docs/A.txt", File))
		assert.False(t, mustPattern(t, "Docs/*.TXT", caseSensitive).Matches("docs/A.txt", File))
	})
}

func TestPatternMatchesWithoutRecursionIsSegmentExact(t *testing.T) {
	patterns := []string{"a", "a/b", "*", "*/*", "a/*/c", "?/?"}
	paths := []string{"a", "a/b", "a/b/c", "ab", "a/bc/c", "x/y"}
	for _, raw := range patterns {
		p := mustPattern(t, raw, caseSensitive)
		for _, path := range paths {
			if p.Matches(path, File) && len(p.segments) != len(splitForTest(path)) {
				t.Errorf("pattern %q matched %q with a different segment count", raw, path)
			}
		}
	}
}

func splitForTest(path string) []string {
	return Pattern{}.split(path)
}

func TestPatternReachableThrough(t *testing.T) {
	p := mustPattern(t, "foo/**/bar.txt", caseSensitive)
	for _, folder := range []string{"", "foo", "foo/a", "foo/a/b"} {
		assert.True(t, p.ReachableThrough(folder), "expected %q to be reachable", folder)
	}
	for _, folder := range []string{"other", "foo/a/b/bar.txt/extra", "foo/bar.txt"} {
		assert.False(t, p.ReachableThrough(folder), "expected %q to be unreachable", folder)
	}

	t.Run("Literal prefix", func(t *testing.T) {
		p := mustPattern(t, "docs/reports/*.pdf", caseSensitive)
		assert.True(t, p.ReachableThrough("docs"))
		assert.True(t, p.ReachableThrough("docs/reports"))
		assert.False(t, p.ReachableThrough("docs/reports/2024"))
		assert.False(t, p.ReachableThrough("docs/other"))
	})

	t.Run("Folder pattern is not reachable through itself", func(t *testing.T) {
		p := mustPattern(t, "build/", caseSensitive)
		assert.False(t, p.ReachableThrough("build"))
	})

	t.Run("Trailing recursive keeps growing", func(t *testing.T) {
		p := mustPattern(t, "src/**", caseSensitive)
		assert.True(t, p.ReachableThrough("src"))
		assert.True(t, p.ReachableThrough("src/a/b/c"))
		assert.False(t, p.ReachableThrough("lib"))
	})

	t.Run("Hidden folders stop recursion", func(t *testing.T) {
		p := mustPattern(t, "**/*.txt", Options{IgnoreHidden: true})
		assert.True(t, p.ReachableThrough("docs"))
		assert.False(t, p.ReachableThrough(".git"))
	})
}

func TestSpecDecide(t *testing.T) {
	t.Run("First match wins", func(t *testing.T) {
		spec := MustCompile("- *.tmp + **", caseSensitive)
		assert.Equal(t, Excluded, spec.Decide("a.tmp", File))
		assert.Equal(t, Included, spec.Decide("a.txt", File))

		rule, ok := spec.FirstMatch("a.tmp", File)
		require.True(t, ok)
		assert.Equal(t, "- *.tmp", rule.String())
	})

	t.Run("No match excludes", func(t *testing.T) {
		spec := MustCompile("+ docs/*.txt", caseSensitive)
		assert.Equal(t, Excluded, spec.Decide("other.txt", File))
		assert.Equal(t, Excluded, spec.Decide("docs", Folder))
	})

	t.Run("Default includes everything", func(t *testing.T) {
		spec := MustCompile("", caseSensitive)
		assert.Equal(t, Included, spec.Decide("a/b/c.txt", File))
		assert.Equal(t, Included, spec.Decide("a/b", Folder))
	})
}

func TestSpecMustDescend(t *testing.T) {
	testCases := []struct {
		name   string
		filter string
		folder string
		want   bool
	}{
		{"Default descends everywhere", DefaultSpec, "a/b", true},
		{"Excluded folder blocks later include", "- foo/ + **", "foo", false},
		{"Sibling of excluded folder", "- foo/ + **", "bar", true},
		{"Implicit ancestor of nested include", "+ docs/**/*.pdf", "docs/x", true},
		{"Unrelated folder is not entered", "+ docs/**/*.pdf", "src", false},
		{"Reachable exclude does not block", "- docs/**/secret/ + docs/**/*.pdf", "docs", true},
		{"Direct exclude blocks", "- docs/**/secret/ + docs/**/*.pdf", "docs/a/secret", false},
		{"No rule at all", "+ *.txt", "docs", false},
		{"Root is always entered", "+ *.txt", "", true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			spec := MustCompile(tc.filter, caseSensitive)
			assert.Equal(t, tc.want, spec.MustDescend(tc.folder))
		})
	}

	t.Run("First match wins for nested file", func(t *testing.T) {
		spec := MustCompile("- foo/ + **", caseSensitive)
		assert.False(t, spec.MustDescend("foo"))
		// A file below foo would be included on its own; the walker never gets there.
		assert.Equal(t, Included, spec.Decide("foo/x.txt", File))
	})
}

func TestEntryKindJSON(t *testing.T) {
	b, err := Folder.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"folder"`, string(b))

	var k EntryKind
	require.NoError(t, k.UnmarshalJSON([]byte(`"file"`)))
	assert.Equal(t, File, k)
	assert.Error(t, k.UnmarshalJSON([]byte(`"device"`)))
}

func TestPrepend(t *testing.T) {
	assert.Equal(t, "- a.txt "+DefaultSpec, Prepend("", Exclude, "a.txt"))
	assert.Equal(t, "+ **", Prepend("+ **", Exclude))

	got := Prepend("+ **", Exclude, "My Docs/", `say "hi".txt`, "-")
	assert.Equal(t, `- "My Docs/" - 'say "hi".txt' - "-" + **`, got)

	spec, err := Compile(got, caseSensitive)
	require.NoError(t, err)
	assert.Equal(t, Excluded, spec.Decide("My Docs", Folder))
	assert.Equal(t, Excluded, spec.Decide(`say "hi".txt`, File))
	assert.Equal(t, Excluded, spec.Decide("-", File))
	assert.Equal(t, Included, spec.Decide("other.txt", File))
}
