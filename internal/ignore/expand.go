package ignore

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultGlobCacheTTL bounds how stale a cached glob expansion can be.
	DefaultGlobCacheTTL = time.Second

	globCacheSize = 256
)

// DirFS opens the file system rooted at a slash-separated directory.
type DirFS func(dir string) fs.FS

func osDirFS(dir string) fs.FS {
	return os.DirFS(filepath.FromSlash(dir))
}

// expander expands glob patterns against the file system. Results are cached
// for a short time because a burst of change notifications would otherwise
// walk the same directories once per event.
type expander struct {
	open  DirFS
	cache *expirable.LRU[string, []string]
}

func newExpander(ttl time.Duration, open DirFS) *expander {
	if open == nil {
		open = osDirFS
	}
	e := &expander{open: open}
	if ttl > 0 {
		e.cache = expirable.NewLRU[string, []string](globCacheSize, nil, ttl)
	}
	return e
}

// expand returns the normalized paths the pattern currently matches on disk.
// Any I/O error while walking, and any invalid pattern, yields no results.
func (e *expander) expand(pattern string) []string {
	abs := Normalize(pattern)

	if e.cache != nil {
		if matches, ok := e.cache.Get(abs); ok {
			return matches
		}
	}

	matches := e.glob(abs)

	if e.cache != nil {
		e.cache.Add(abs, matches)
	}
	return matches
}

func (e *expander) glob(abs string) []string {
	base, rest := doublestar.SplitPattern(abs)
	if rest == "" {
		return nil
	}

	found, err := doublestar.Glob(e.open(base), rest, doublestar.WithFailOnIOErrors())
	if err != nil {
		return nil
	}

	matches := make([]string, 0, len(found))
	for _, m := range found {
		matches = append(matches, normcase(path.Join(base, m)))
	}
	return matches
}
