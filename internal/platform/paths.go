package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// NormalizePath returns the cleaned absolute form of path
func NormalizePath(path string) (string, error) {
	if path == "" {
		return "", &PathError{Path: path, Message: "path is empty"}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &PathError{Path: path, Message: err.Error()}
	}

	return filepath.Clean(abs), nil
}

// ValidateName checks that name is usable as a single path component
func ValidateName(name string) error {
	if name == "" {
		return &PathError{Path: name, Message: "name is empty"}
	}
	if name == "." || name == ".." {
		return &PathError{Path: name, Message: "name is a relative path reference"}
	}
	if strings.ContainsRune(name, '/') || strings.ContainsRune(name, filepath.Separator) {
		return &PathError{Path: name, Message: "name contains a path separator"}
	}
	if strings.ContainsRune(name, 0) {
		return &PathError{Path: name, Message: "name contains a NUL byte"}
	}

	// Check for invalid characters based on OS
	if runtime.GOOS == "windows" {
		invalidChars := []string{"<", ">", ":", "\"", "|", "?", "*", "\\"}
		for _, char := range invalidChars {
			if strings.Contains(name, char) {
				return &PathError{Path: name, Message: "name contains invalid character: " + char}
			}
		}
	}

	return nil
}

// IsWithin reports whether path is parent itself or lies below it
func IsWithin(parent, path string) bool {
	rel, err := filepath.Rel(parent, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// UniquePath returns path if it is free, otherwise the first free
// "stem_N.ext" sibling. taken overrides the filesystem check when non-nil.
func UniquePath(path string, taken func(string) bool) string {
	if taken == nil {
		taken = Exists
	}
	if !taken(path) {
		return path
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" {
		// dotfiles like ".bashrc" have no stem
		stem, ext = base, ""
	}

	for i := 1; ; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
		if !taken(candidate) {
			return candidate
		}
	}
}

// Exists reports whether something (including a dangling symlink) is at path
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// PathError represents a path validation error
type PathError struct {
	Path    string
	Message string
}

func (e *PathError) Error() string {
	return "invalid path '" + e.Path + "': " + e.Message
}
