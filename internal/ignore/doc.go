// Package ignore decides whether a file-system change should trigger a
// rebuild.
//
// A Filter holds literal/glob patterns and regular expressions. A path is
// ignored when any of them matches:
//
//   - Prefix: the normalized path equals a normalized pattern or lies beneath
//     it, so listing a directory ignores everything under it.
//   - Expansion: the pattern, expanded as a glob against the file system,
//     yields the path or one of its parent directories. An I/O error during
//     the walk leaves the expansion empty.
//   - Glob: the pattern matches the path as a shell glob, tried on both the
//     raw and the normalized form. "*" stops at separators, "**" does not.
//   - Regex: an unanchored search of the raw path succeeds.
//
// Normalization happens on every call against the working directory at that
// moment, so a Filter never pins the directory it was built in. Filters are
// immutable and safe for concurrent use.
package ignore
