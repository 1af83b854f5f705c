package actionplan

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulschiretz/pgl-sync/pkg/filter"
	"github.com/paulschiretz/pgl-sync/pkg/pathscan"
	"github.com/paulschiretz/pgl-sync/pkg/rename"
)

func file(path string, size, mtime int64) *pathscan.Entry {
	return &pathscan.Entry{Path: path, Kind: filter.File, Size: size, ModTime: mtime, Mode: 0644}
}

func folder(path string) *pathscan.Entry {
	return &pathscan.Entry{Path: path, Kind: filter.Folder, Mode: os.ModeDir | 0755}
}

func tree(entries ...*pathscan.Entry) *pathscan.Tree {
	return pathscan.NewTree("/root", false, entries...)
}

func summary(p *Plan) []string {
	var out []string
	for _, a := range p.Actions {
		out = append(out, a.String())
	}
	return out
}

func TestBuildWorkedExample(t *testing.T) {
	src := tree(folder("docs"), file("docs/a.txt", 3, 10), file("docs/old.txt", 4, 5))
	dst := tree(folder("archive"), file("archive/old.txt", 4, 5), folder("docs"), file("docs/a.txt", 3, 5))

	srcOld, _ := src.Lookup("docs/old.txt")
	dstOld, _ := dst.Lookup("archive/old.txt")
	hints := []rename.Hint{{Source: srcOld, Dest: dstOld}}

	plan, err := Build(src, dst, hints, Options{TrashRoot: t.TempDir()})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"move archive/old.txt -> docs/old.txt",
		"copy docs/a.txt",
		"skip archive (holds-renamed-entry)",
		"skip docs (up-to-date)",
	}, summary(plan))
	assert.Zero(t, plan.Count()[Recycle])
}

func TestBuildRenamePreservation(t *testing.T) {
	src := tree(file("a.txt", 5, 1))
	dst := tree(file("b.txt", 5, 1))
	a, _ := src.Lookup("a.txt")
	b, _ := dst.Lookup("b.txt")

	plan, err := Build(src, dst, []rename.Hint{{Source: a, Dest: b}}, Options{TrashRoot: t.TempDir()})
	require.NoError(t, err)

	counts := plan.Count()
	assert.Equal(t, 1, counts[Move])
	assert.Zero(t, counts[Copy])
	assert.Zero(t, counts[Recycle])
	assert.Equal(t, []string{"move b.txt -> a.txt"}, summary(plan))
}

func TestBuildNoDeleteByDefault(t *testing.T) {
	src := tree(file("keep.txt", 1, 1))
	dst := tree(file("keep.txt", 1, 1), folder("orphans"), file("orphans/x.txt", 1, 1))

	plan, err := Build(src, dst, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"skip keep.txt (up-to-date)",
		"skip orphans (would-delete-suppressed)",
		"skip orphans/x.txt (would-delete-suppressed)",
	}, summary(plan))
	assert.False(t, plan.Mutating())
}

func TestBuildUpToDate(t *testing.T) {
	second := int64(time.Second)
	testCases := []struct {
		name   string
		src    *pathscan.Entry
		dst    *pathscan.Entry
		window time.Duration
		want   Kind
	}{
		{"Equal", file("f", 10, 5*second), file("f", 10, 5*second), 0, Skip},
		{"Destination newer", file("f", 10, 5*second), file("f", 10, 6*second), 0, Skip},
		{"Source newer", file("f", 10, 6*second), file("f", 10, 5*second), 0, Copy},
		{"Size differs", file("f", 10, 5*second), file("f", 11, 9*second), 0, Copy},
		{"Sub-second drift within window", file("f", 10, 5*second+900), file("f", 10, 5*second+100), time.Second, Skip},
		{"Sub-second drift without window", file("f", 10, 5*second+900), file("f", 10, 5*second+100), 0, Copy},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := Build(tree(tc.src), tree(tc.dst), nil, Options{ModTimeWindow: tc.window})
			require.NoError(t, err)
			require.Len(t, plan.Actions, 1)
			assert.Equal(t, tc.want, plan.Actions[0].Kind)
		})
	}

	t.Run("Symlinks compare by target", func(t *testing.T) {
		s := &pathscan.Entry{Path: "l", Kind: filter.File, IsSymlink: true, LinkTarget: "a"}
		same := &pathscan.Entry{Path: "l", Kind: filter.File, IsSymlink: true, LinkTarget: "a"}
		other := &pathscan.Entry{Path: "l", Kind: filter.File, IsSymlink: true, LinkTarget: "b"}

		plan, err := Build(tree(s), tree(same), nil, Options{})
		require.NoError(t, err)
		assert.Equal(t, Skip, plan.Actions[0].Kind)

		plan, err = Build(tree(s), tree(other), nil, Options{})
		require.NoError(t, err)
		assert.Equal(t, Copy, plan.Actions[0].Kind)
	})
}

func TestBuildMakeDirs(t *testing.T) {
	t.Run("Missing ancestors are created parents first", func(t *testing.T) {
		src := tree(folder("a"), folder("a/b"), file("a/b/c.txt", 1, 1), folder("z"))
		dst := tree()
		dst.Missing = true

		plan, err := Build(src, dst, nil, Options{})
		require.NoError(t, err)
		assert.Equal(t, []string{"mkdir a", "mkdir a/b", "mkdir z", "copy a/b/c.txt"}, summary(plan))
		assert.NotNil(t, plan.Actions[0].Entry)
	})

	t.Run("Implicit ancestors without an entry", func(t *testing.T) {
		src := tree(file("docs/x.pdf", 1, 1))
		plan, err := Build(src, tree(), nil, Options{})
		require.NoError(t, err)
		assert.Equal(t, []string{"mkdir docs", "copy docs/x.pdf"}, summary(plan))
		assert.Nil(t, plan.Actions[0].Entry)
	})

	t.Run("Traversed destination folders are not recreated", func(t *testing.T) {
		src := tree(folder("docs"), file("docs/x.pdf", 1, 1))
		dst := tree(folder("docs"))
		plan, err := Build(src, dst, nil, Options{})
		require.NoError(t, err)
		assert.Equal(t, []string{"copy docs/x.pdf", "skip docs (up-to-date)"}, summary(plan))
	})
}

func TestBuildRecycle(t *testing.T) {
	trash := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(trash, "f.txt"), []byte("old"), 0644))

	src := tree()
	dst := tree(file("f.txt", 1, 1), folder("x"), folder("x/y"), file("x/y/g.txt", 1, 1), file("x/h", 1, 1))

	plan, err := Build(src, dst, nil, Options{TrashRoot: trash})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"recycle f.txt -> f.1.txt",
		"recycle x/h -> x/h",
		"recycle x/y/g.txt -> x/y/g.txt",
		"recycle x/y -> x/y",
		"recycle x -> x",
	}, summary(plan))
}

func TestBuildKindConflict(t *testing.T) {
	src := tree(file("a", 1, 1))
	dst := tree(folder("a"))

	_, err := Build(src, dst, nil, Options{})
	var conflict *ConflictingEntryKindError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "a", conflict.Path)
	assert.Equal(t, filter.File, conflict.SourceKind)
	assert.Equal(t, filter.Folder, conflict.DestKind)
}

func TestWithSuffix(t *testing.T) {
	testCases := []struct {
		in   string
		n    int
		want string
	}{
		{"a/b.txt", 1, "a/b.1.txt"},
		{"noext", 2, "noext.2"},
		{".env", 1, ".env.1"},
		{"x/archive.tar.gz", 3, "x/archive.tar.3.gz"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, withSuffix(tc.in, tc.n))
	}
}

func TestKindJSON(t *testing.T) {
	b, err := Recycle.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"recycle"`, string(b))

	var k Kind
	require.NoError(t, k.UnmarshalJSON([]byte(`"move"`)))
	assert.Equal(t, Move, k)
	assert.Error(t, k.UnmarshalJSON([]byte(`"delete"`)))
}
