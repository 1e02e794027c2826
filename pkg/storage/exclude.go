package storage

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ShouldExclude reports whether relativePath matches one of the patterns.
// Patterns without a slash match the base name at any depth (*.tmp);
// patterns ending in / match a directory and everything below it (.git/);
// other patterns are doublestar globs against the whole relative path.
func ShouldExclude(relativePath string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}

	normalized := filepath.ToSlash(relativePath)
	base := path.Base(normalized)

	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		pattern = filepath.ToSlash(pattern)

		if dir, ok := strings.CutSuffix(pattern, "/"); ok {
			if matchDirPattern(normalized, dir) {
				return true
			}
			continue
		}

		if !strings.Contains(pattern, "/") {
			if ok, _ := doublestar.Match(pattern, base); ok {
				return true
			}
			continue
		}

		if ok, _ := doublestar.Match(pattern, normalized); ok {
			return true
		}
	}

	return false
}

// matchDirPattern matches a directory pattern against every ancestor
// component of the path, and the path itself
func matchDirPattern(normalized, dir string) bool {
	parts := strings.Split(normalized, "/")
	for i := range parts {
		prefix := strings.Join(parts[:i+1], "/")
		if ok, _ := doublestar.Match(dir, prefix); ok {
			return true
		}
		if !strings.Contains(dir, "/") {
			if ok, _ := doublestar.Match(dir, parts[i]); ok {
				return true
			}
		}
	}
	return false
}
