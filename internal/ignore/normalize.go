package ignore

import (
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/text/cases"
)

// foldCase is true on hosts whose native path comparison ignores case.
var foldCase = runtime.GOOS == "windows"

// Normalize returns the absolute, slash-separated form of p with "." and ".."
// resolved. The path does not need to exist and symbolic links are not
// followed. Relative paths resolve against the current working directory.
func Normalize(p string) string {
	if runtime.GOOS == "windows" {
		p = strings.ReplaceAll(p, `\`, "/")
	}

	abs, err := filepath.Abs(filepath.FromSlash(p))
	if err != nil {
		abs = filepath.Clean(filepath.FromSlash(p))
	}

	return filepath.ToSlash(abs)
}

// normcase prepares a path for comparison on the host.
func normcase(p string) string {
	if foldCase {
		return cases.Fold().String(p)
	}
	return p
}

// hasPathPrefix reports whether p equals prefix or lies beneath it. Both
// arguments are slash-separated.
func hasPathPrefix(p, prefix string) bool {
	if p == prefix {
		return true
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return strings.HasPrefix(p, prefix)
}

// ancestors returns the parent directories of a slash-separated path,
// nearest first.
func ancestors(p string) []string {
	var dirs []string
	for {
		parent := path.Dir(p)
		if parent == p || parent == "." || parent == "" {
			return dirs
		}
		dirs = append(dirs, parent)
		p = parent
	}
}
