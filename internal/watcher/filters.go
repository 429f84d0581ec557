package watcher

import "path/filepath"

var vcsDirs = map[string]struct{}{
	".git": {},
	".hg":  {},
	".svn": {},
	".bzr": {},
}

// NoVCSFilter prunes version control metadata directories.
func NoVCSFilter(path string) bool {
	_, ok := vcsDirs[filepath.Base(path)]
	return !ok
}

// SkipPathsFilter prunes the given directory trees, typically the build
// output, so a large output tree does not consume watch descriptors. It does
// not replace ignore rules: events for these paths may still arrive from
// their parent directory.
func SkipPathsFilter(paths ...string) FileFilter {
	abs := make([]string, 0, len(paths))
	for _, p := range paths {
		if a, err := filepath.Abs(p); err == nil {
			abs = append(abs, a)
		}
	}
	return func(path string) bool {
		a, err := filepath.Abs(path)
		if err != nil {
			return true
		}
		for _, skip := range abs {
			if a == skip {
				return false
			}
		}
		return true
	}
}

func allowed(filters []FileFilter, path string) bool {
	for _, filter := range filters {
		if !filter(path) {
			return false
		}
	}
	return true
}
