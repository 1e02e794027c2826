package storage

import (
	"context"
	"io"
	"time"

	"github.com/sdejongh/tfm/pkg/models"
)

// FileInfo represents metadata about a file
type FileInfo struct {
	Path         string
	Size         int64
	ModTime      time.Time
	IsDir        bool
	Permissions  uint32
	RelativePath string
}

// Entry converts the listing metadata into the model type used by groups
func (f FileInfo) Entry() models.FileEntry {
	return models.FileEntry{
		Path:        f.Path,
		Size:        f.Size,
		ModTime:     f.ModTime,
		IsDir:       f.IsDir,
		Permissions: f.Permissions,
	}
}

// ListOptions controls what List returns
type ListOptions struct {
	// Recursive descends into sub-directories
	Recursive bool

	// Exclude holds doublestar patterns matched against the slash-separated
	// path relative to the root, and against the base name
	Exclude []string

	// IncludeDirs also returns directories (regular files only otherwise)
	IncludeDirs bool
}

// Backend defines the read side of a storage tree, used by search to
// enumerate candidates and read their content.
type Backend interface {
	// List returns the entries below the root
	List(ctx context.Context, opts ListOptions) ([]FileInfo, error)

	// Read opens a file for reading. Relative paths resolve against the root.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Root returns the absolute root path
	Root() string

	// Close releases any resources held by the backend
	Close() error
}
