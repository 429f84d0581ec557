package ignore

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dlclark/regexp2"

	"github.com/conneroisu/autobuild/internal/errors"
)

// DefaultRegexTimeout caps a single regular expression search.
const DefaultRegexTimeout = 100 * time.Millisecond

// Filter decides whether a changed path must not trigger a rebuild.
type Filter struct {
	patterns []pattern
	regexes  []*regexp2.Regexp
	expander *expander
}

type pattern struct {
	source string
	// glob is set for patterns that contain glob syntax and parse cleanly.
	// Malformed globs only take part in the prefix check.
	glob bool
}

type options struct {
	globCacheTTL time.Duration
	expand       bool
	dirFS        DirFS
	regexTimeout time.Duration
}

// Option configures a Filter.
type Option func(*options)

// WithGlobCacheTTL sets how long file-system glob expansions are reused.
// Zero disables the cache.
func WithGlobCacheTTL(ttl time.Duration) Option {
	return func(o *options) { o.globCacheTTL = ttl }
}

// WithExpansion toggles expanding glob patterns against the file system.
func WithExpansion(enabled bool) Option {
	return func(o *options) { o.expand = enabled }
}

// WithDirFS replaces the file system that glob patterns are expanded
// against. The default reads the host file system.
func WithDirFS(open DirFS) Option {
	return func(o *options) { o.dirFS = open }
}

// WithRegexTimeout sets the per-search timeout for regular expressions.
func WithRegexTimeout(d time.Duration) Option {
	return func(o *options) { o.regexTimeout = d }
}

// New builds a Filter from literal/glob patterns and regular expression
// sources. Duplicates are dropped, keeping the first occurrence. An invalid
// regular expression is a configuration error and no Filter is returned.
func New(patterns, regexes []string, opts ...Option) (*Filter, error) {
	o := options{
		globCacheTTL: DefaultGlobCacheTTL,
		expand:       true,
		regexTimeout: DefaultRegexTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	f := &Filter{}

	for _, src := range dedupe(patterns) {
		if src == "" {
			continue
		}
		f.patterns = append(f.patterns, pattern{
			source: src,
			glob:   hasMeta(src) && doublestar.ValidatePattern(filepath.ToSlash(src)),
		})
	}

	for _, src := range dedupe(regexes) {
		re, err := regexp2.Compile(src, regexp2.None)
		if err != nil {
			return nil, errors.NewConfigError(
				errors.ErrCodeInvalidIgnoreRegex,
				fmt.Sprintf("invalid ignore regular expression %q", src),
				err,
			).WithContext("regex", src)
		}
		re.MatchTimeout = o.regexTimeout
		f.regexes = append(f.regexes, re)
	}

	if o.expand {
		f.expander = newExpander(o.globCacheTTL, o.dirFS)
	}

	return f, nil
}

// ShouldIgnore reports whether a change to path must not trigger a rebuild.
// It never fails: paths that do not exist, unreadable directories and
// malformed globs simply do not match.
func (f *Filter) ShouldIgnore(path string) bool {
	if path == "" {
		return false
	}

	normPath := normcase(Normalize(path))

	for _, p := range f.patterns {
		if f.matchPattern(p, path, normPath) {
			return true
		}
	}

	for _, re := range f.regexes {
		if ok, err := re.MatchString(path); err == nil && ok {
			return true
		}
	}

	return false
}

func (f *Filter) matchPattern(p pattern, rawPath, normPath string) bool {
	normPattern := normcase(Normalize(p.source))

	if hasPathPrefix(normPath, normPattern) {
		return true
	}

	if !p.glob {
		return false
	}

	if f.expander != nil {
		for _, match := range f.expander.expand(p.source) {
			if hasPathPrefix(normPath, match) {
				return true
			}
		}
	}

	if globMatch(normcase(filepath.ToSlash(p.source)), normcase(filepath.ToSlash(rawPath))) {
		return true
	}
	return globMatch(normPattern, normPath)
}

// globMatch matches name, and then each of its parent directories, against
// pattern. A glob naming a directory therefore covers the files beneath it
// even before the directory exists on disk.
func globMatch(pattern, name string) bool {
	if ok, _ := doublestar.Match(pattern, name); ok {
		return true
	}
	for _, dir := range ancestors(name) {
		if ok, _ := doublestar.Match(pattern, dir); ok {
			return true
		}
	}
	return false
}

// Patterns returns the de-duplicated literal/glob patterns.
func (f *Filter) Patterns() []string {
	out := make([]string, len(f.patterns))
	for i, p := range f.patterns {
		out[i] = p.source
	}
	return out
}

// Regexes returns the de-duplicated regular expression sources.
func (f *Filter) Regexes() []string {
	out := make([]string, len(f.regexes))
	for i, re := range f.regexes {
		out[i] = re.String()
	}
	return out
}

func (f *Filter) String() string {
	return fmt.Sprintf("Filter(patterns=%q, regexes=%q)", f.Patterns(), f.Regexes())
}

func hasMeta(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
