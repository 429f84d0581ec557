package ignore

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/autobuild/internal/errors"
)

func mustFilter(t *testing.T, patterns, regexes []string, opts ...Option) *Filter {
	t.Helper()
	f, err := New(patterns, regexes, opts...)
	require.NoError(t, err)
	require.NotNil(t, f)
	return f
}

func TestShouldIgnore_EmptyFilter(t *testing.T) {
	f := mustFilter(t, nil, nil)

	for _, p := range []string{"", ".", "/", "file.txt", "a/b/c", "/abs/path.rst", "../up"} {
		assert.False(t, f.ShouldIgnore(p), "path %q", p)
	}
}

func TestShouldIgnore_EmptyCandidate(t *testing.T) {
	f := mustFilter(t, []string{"."}, []string{".*"})
	assert.False(t, f.ShouldIgnore(""))
}

func TestShouldIgnore_PrefixIsSeparatorBounded(t *testing.T) {
	t.Chdir(t.TempDir())
	f := mustFilter(t, []string{"bar"}, nil)

	tests := []struct {
		path string
		want bool
	}{
		{"bar", true},
		{"bar/x.txt", true},
		{"bar/deep/nested/x.txt", true},
		{"./bar/x.txt", true},
		{"other/../bar/x.txt", true},
		{"barometer.txt", false},
		{"bar.txt", false},
		{"foo/bar/x.txt", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, f.ShouldIgnore(tt.path))
		})
	}
}

func TestShouldIgnore_AbsoluteAndRelativeAgree(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	f := mustFilter(t, []string{"out"}, nil)

	assert.True(t, f.ShouldIgnore(filepath.Join(dir, "out", "index.html")))
	assert.True(t, f.ShouldIgnore("out/index.html"))
	assert.False(t, f.ShouldIgnore(filepath.Join(dir, "src", "index.rst")))

	abs := mustFilter(t, []string{filepath.Join(dir, "out")}, nil)
	assert.True(t, abs.ShouldIgnore("out/index.html"))
	assert.True(t, abs.ShouldIgnore(filepath.Join(dir, "out")))
}

func TestShouldIgnore_Regex(t *testing.T) {
	f := mustFilter(t, nil, []string{`\.pyc$`})

	assert.True(t, f.ShouldIgnore("module.pyc"))
	assert.True(t, f.ShouldIgnore("dir/module.pyc"))
	assert.False(t, f.ShouldIgnore("module.pyc.bak"))
	assert.False(t, f.ShouldIgnore("module.py"))
}

func TestShouldIgnore_RegexIsSearch(t *testing.T) {
	f := mustFilter(t, nil, []string{`tmp`})

	assert.True(t, f.ShouldIgnore("a/tmp/b.rst"))
	assert.True(t, f.ShouldIgnore("notes.tmp"))
	assert.False(t, f.ShouldIgnore("notes.rst"))
}

func TestShouldIgnore_GlobStarStopsAtSeparator(t *testing.T) {
	t.Chdir(t.TempDir())

	f := mustFilter(t, []string{"*.pyc"}, nil)
	assert.True(t, f.ShouldIgnore("module.pyc"))
	assert.False(t, f.ShouldIgnore("dir/module.pyc"))

	recursive := mustFilter(t, []string{"**/*.pyc"}, nil)
	assert.True(t, recursive.ShouldIgnore("module.pyc"))
	assert.True(t, recursive.ShouldIgnore("dir/module.pyc"))
	assert.True(t, recursive.ShouldIgnore("dir/sub/module.pyc"))
	assert.False(t, recursive.ShouldIgnore("dir/module.py"))
}

func TestShouldIgnore_GlobSyntax(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name    string
		pattern string
		path    string
		want    bool
	}{
		{"question mark", "file?.txt", "file1.txt", true},
		{"question mark needs a char", "file?.txt", "file.txt", false},
		{"class", "file[0-9].txt", "file7.txt", true},
		{"class miss", "file[0-9].txt", "filex.txt", false},
		{"negated class", "file[!0-9].txt", "filex.txt", true},
		{"alternatives", "*.{swp,swx}", ".index.rst.swp", true},
		{"alternatives miss", "*.{swp,swx}", "index.rst", false},
		{"directory glob covers children", "**/_build", "docs/_build/html/index.html", true},
		{"nested directory", "docs/*/cache", "docs/pkg/cache/x.bin", true},
		{"nested directory miss", "docs/*/cache", "docs/pkg/other/x.bin", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := mustFilter(t, []string{tt.pattern}, nil, WithExpansion(false))
			assert.Equal(t, tt.want, f.ShouldIgnore(tt.path))
		})
	}
}

func TestShouldIgnore_EitherMatches(t *testing.T) {
	t.Chdir(t.TempDir())
	f := mustFilter(t, []string{"build"}, []string{`\.log$`})

	assert.True(t, f.ShouldIgnore("build/out.html"), "literal only")
	assert.True(t, f.ShouldIgnore("src/run.log"), "regex only")
	assert.True(t, f.ShouldIgnore("build/run.log"), "both")
	assert.False(t, f.ShouldIgnore("src/index.rst"), "neither")
}

func TestShouldIgnore_EndToEnd(t *testing.T) {
	t.Chdir(t.TempDir())
	f := mustFilter(t, []string{"bar", "foo"}, []string{`\.txt`, `one\.*`})

	tests := []struct {
		path string
		want bool
	}{
		{"amazing-file.txt", true},
		{"module.pyc", false},
		{"one.md", true},
		{"two.rst", false},
		{"foo/random.txt", true},
		{"bar/__pycache__/file.pyc", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, f.ShouldIgnore(tt.path))
		})
	}
}

func TestShouldIgnore_OutputDirectoryAlwaysIgnored(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	outDir := filepath.Join(dir, "docs", "_build", "html")

	// User patterns that would never match the output on their own.
	f := mustFilter(t, []string{"*.tmp", "notes", outDir}, []string{`^never$`})

	for _, p := range []string{
		outDir,
		filepath.Join(outDir, "index.html"),
		filepath.Join(outDir, "_static", "basic.css"),
		"docs/_build/html/search.html",
	} {
		assert.True(t, f.ShouldIgnore(p), "path %q", p)
	}
	assert.False(t, f.ShouldIgnore("docs/index.rst"))
	assert.False(t, f.ShouldIgnore("docs/_build/htmlx/index.html"))
}

func TestShouldIgnore_FilesystemExpansion(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	for _, p := range []string{
		"one/do_ignore/file.txt",
		"two/three.doignore.md",
		"keep/file.txt",
	} {
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	}

	f := mustFilter(t, []string{"**/do_ignore", "**/*doignore*.*"}, nil)

	assert.True(t, f.ShouldIgnore("one/do_ignore/file.txt"))
	assert.True(t, f.ShouldIgnore(filepath.Join(dir, "one", "do_ignore", "file.txt")))
	assert.True(t, f.ShouldIgnore("two/three.doignore.md"))
	assert.True(t, f.ShouldIgnore("one/do_ignore/not-yet-created.rst"))
	assert.False(t, f.ShouldIgnore("keep/file.txt"))
}

func TestShouldIgnore_NonexistentPathsDoNotFail(t *testing.T) {
	t.Chdir(t.TempDir())
	f := mustFilter(t, []string{"missing/**/deep", "gone"}, []string{`zzz`})

	assert.NotPanics(t, func() {
		assert.False(t, f.ShouldIgnore("does/not/exist.rst"))
		assert.True(t, f.ShouldIgnore("gone/child"))
		assert.True(t, f.ShouldIgnore("missing/a/b/deep/file"))
	})
}

func TestShouldIgnore_WorkingDirectoryResolvedPerCall(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()

	t.Chdir(first)
	f := mustFilter(t, []string{"out"}, nil)
	assert.True(t, f.ShouldIgnore(filepath.Join(first, "out", "a.html")))

	t.Chdir(second)
	assert.True(t, f.ShouldIgnore(filepath.Join(second, "out", "a.html")))
	assert.False(t, f.ShouldIgnore(filepath.Join(first, "out", "a.html")))
	assert.True(t, f.ShouldIgnore("out/a.html"))
}

func TestNew_InvalidRegex(t *testing.T) {
	f, err := New([]string{"ok"}, []string{`valid`, `(unclosed`})

	require.Error(t, err)
	assert.Nil(t, f)
	assert.True(t, errors.IsConfigError(err))
	assert.True(t, errors.HasErrorCode(err, errors.ErrCodeInvalidIgnoreRegex))
	assert.Contains(t, err.Error(), "(unclosed")
}

func TestNew_InvalidGlobTolerated(t *testing.T) {
	t.Chdir(t.TempDir())
	f := mustFilter(t, []string{"[unclosed", "ok/*.txt"}, nil)

	assert.False(t, f.ShouldIgnore("a.txt"))
	assert.False(t, f.ShouldIgnore("u"))
	assert.True(t, f.ShouldIgnore("ok/a.txt"))
	// Literal use of the malformed pattern still works as a prefix.
	assert.True(t, f.ShouldIgnore("[unclosed/child"))
}

func TestNew_DeduplicatesKeepingOrder(t *testing.T) {
	f := mustFilter(t,
		[]string{"b", "a", "b", "", "c", "a"},
		[]string{`x`, `y`, `x`},
	)

	assert.Equal(t, []string{"b", "a", "c"}, f.Patterns())
	assert.Equal(t, []string{"x", "y"}, f.Regexes())
	assert.Equal(t, `Filter(patterns=["b" "a" "c"], regexes=["x" "y"])`, f.String())
}

func TestShouldIgnore_Deterministic(t *testing.T) {
	t.Chdir(t.TempDir())
	patterns := []string{"bar", "**/*.pyc", "docs/_build"}
	regexes := []string{`\.swp$`, `~$`}

	a := mustFilter(t, patterns, regexes)
	b := mustFilter(t, patterns, regexes)

	for _, p := range []string{
		"bar/x", "x.pyc", "a/b.pyc", "docs/_build/index.html", "docs/index.rst",
		".index.rst.swp", "index.rst~", "barometer",
	} {
		first := a.ShouldIgnore(p)
		assert.Equal(t, first, b.ShouldIgnore(p), "path %q", p)
		assert.Equal(t, first, a.ShouldIgnore(p), "path %q repeated", p)
	}
}

func TestShouldIgnore_Concurrent(t *testing.T) {
	t.Chdir(t.TempDir())
	f := mustFilter(t, []string{"out", "**/*.tmp"}, []string{`\.swp$`})

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := range 100 {
				assert.True(t, f.ShouldIgnore(fmt.Sprintf("out/%d/%d.html", n, j)))
				assert.True(t, f.ShouldIgnore(fmt.Sprintf("src/%d.tmp", j)))
				assert.False(t, f.ShouldIgnore(fmt.Sprintf("src/%d.rst", j)))
			}
		}(i)
	}
	wg.Wait()
}

func TestExpander_CacheDisabled(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	e := newExpander(0, nil)
	assert.Nil(t, e.cache)
	assert.Empty(t, e.expand("*.rst"))

	require.NoError(t, os.WriteFile("index.rst", nil, 0o600))
	assert.Equal(t, []string{filepath.ToSlash(filepath.Join(dir, "index.rst"))}, e.expand("*.rst"))
}

func TestExpander_CacheReusesResults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	e := newExpander(DefaultGlobCacheTTL*60, nil)
	assert.Empty(t, e.expand("*.rst"))

	require.NoError(t, os.WriteFile("index.rst", nil, 0o600))
	assert.Empty(t, e.expand("*.rst"), "cached expansion is reused until it expires")
}

// deniedDirFS fails ReadDir for one directory, like a directory without
// read permission.
type deniedDirFS struct {
	fstest.MapFS
	denied string
}

func (d deniedDirFS) ReadDir(name string) ([]fs.DirEntry, error) {
	if name == d.denied {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrPermission}
	}
	return d.MapFS.ReadDir(name)
}

// rootedAt serves fsys as the directory root, so expansion bases below root
// map onto sub-trees of fsys.
func rootedAt(root string, fsys fs.FS) DirFS {
	return func(dir string) fs.FS {
		if dir == root {
			return fsys
		}
		sub, err := fs.Sub(fsys, strings.TrimPrefix(dir, root+"/"))
		if err != nil {
			return fstest.MapFS{}
		}
		return sub
	}
}

func newDeniedTree(t *testing.T) (string, DirFS) {
	t.Helper()
	root := Normalize(t.TempDir())
	fsys := deniedDirFS{
		MapFS: fstest.MapFS{
			"ok/a.tmp":     {},
			"locked/b.tmp": {},
			"gen/out.html": {},
		},
		denied: "locked",
	}
	return root, rootedAt(root, fsys)
}

func TestExpander_ReadDirErrorYieldsNoMatches(t *testing.T) {
	root, open := newDeniedTree(t)
	e := newExpander(0, open)

	assert.Empty(t, e.expand(root+"/**/*.tmp"), "walk reaches the unreadable directory")
	assert.Equal(t, []string{root + "/ok/a.tmp"}, e.expand(root+"/ok/*.tmp"))
	assert.Equal(t, []string{root + "/gen"}, e.expand(root+"/ge?"))
}

func TestShouldIgnore_ExpansionErrorDoesNotStopEvaluation(t *testing.T) {
	root, open := newDeniedTree(t)
	f := mustFilter(t,
		[]string{root + "/**/*.tmp", root + "/ge?", root + "/ok"},
		[]string{`\.swp$`},
		WithDirFS(open), WithGlobCacheTTL(0),
	)

	assert.NotPanics(t, func() {
		assert.True(t, f.ShouldIgnore(root+"/locked/b.tmp"), "glob match still applies")
		assert.True(t, f.ShouldIgnore(root+"/gen/out.html"), "later pattern expands")
		assert.True(t, f.ShouldIgnore(root+"/ok/index.rst"), "later literal pattern")
		assert.True(t, f.ShouldIgnore(root+"/locked/x.swp"), "regexes still run")
		assert.False(t, f.ShouldIgnore(root+"/locked/index.rst"))
	})
}
