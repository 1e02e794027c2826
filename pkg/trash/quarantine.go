// Package trash implements the quarantine: a holding directory on the
// same volume where deleted entries are kept until their history record
// is evicted.
package trash

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrOccupied is returned by Restore when the original path is taken
var ErrOccupied = errors.New("restore target occupied")

// Item describes one quarantined entry
type Item struct {
	// ID is the unique prefix of the quarantine name
	ID string `json:"id"`

	// Name is the original base name
	Name string `json:"name"`

	// Path is the location inside the quarantine
	Path string `json:"path"`

	Size      int64     `json:"size"`
	IsDir     bool      `json:"is_dir"`
	DeletedAt time.Time `json:"deleted_at"`
}

// RenameFunc moves an entry. os.Rename by default.
type RenameFunc func(oldpath, newpath string) error

// Quarantine owns one quarantine directory
type Quarantine struct {
	dir    string
	rename RenameFunc
}

// New opens (and creates if needed) the quarantine at dir
func New(dir string, rename RenameFunc) (*Quarantine, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve trash directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0700); err != nil {
		return nil, fmt.Errorf("failed to create trash directory: %w", err)
	}
	if rename == nil {
		rename = os.Rename
	}
	return &Quarantine{dir: abs, rename: rename}, nil
}

// Dir returns the quarantine directory
func (q *Quarantine) Dir() string {
	return q.dir
}

// Contains reports whether path lies inside the quarantine
func (q *Quarantine) Contains(path string) bool {
	rel, err := filepath.Rel(q.dir, path)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

// NewPath returns a fresh quarantine location for an entry named like path
func (q *Quarantine) NewPath(path string) string {
	return filepath.Join(q.dir, uuid.NewString()+"_"+filepath.Base(path))
}

// Put relocates path into the quarantine and returns its new location
func (q *Quarantine) Put(path string) (string, error) {
	trashPath := q.NewPath(path)
	if err := q.PutAt(path, trashPath); err != nil {
		return "", err
	}
	return trashPath, nil
}

// PutAt relocates path to a given quarantine location. Redo of a delete
// uses it to reproduce the recorded trash path.
func (q *Quarantine) PutAt(path, trashPath string) error {
	if !q.Contains(trashPath) {
		return fmt.Errorf("trash path %s is outside %s", trashPath, q.dir)
	}
	if _, err := os.Lstat(trashPath); err == nil {
		return fmt.Errorf("trash path %s: %w", trashPath, fs.ErrExist)
	}
	return q.rename(path, trashPath)
}

// Restore moves a quarantined entry back to original. Missing parent
// directories are recreated.
func (q *Quarantine) Restore(trashPath, original string) error {
	if _, err := os.Lstat(original); err == nil {
		return fmt.Errorf("%s: %w", original, ErrOccupied)
	}
	if _, err := os.Lstat(trashPath); err != nil {
		return fmt.Errorf("quarantined entry missing: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(original), 0755); err != nil {
		return fmt.Errorf("failed to recreate parent directory: %w", err)
	}
	return q.rename(trashPath, original)
}

// Remove permanently deletes a quarantined entry. Removing an entry that
// is already gone is not an error.
func (q *Quarantine) Remove(trashPath string) error {
	if !q.Contains(trashPath) {
		return fmt.Errorf("trash path %s is outside %s", trashPath, q.dir)
	}
	if err := os.RemoveAll(trashPath); err != nil {
		return fmt.Errorf("failed to purge %s: %w", trashPath, err)
	}
	return nil
}

// List returns quarantined entries, most recently deleted first
func (q *Quarantine) List() ([]Item, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read trash directory: %w", err)
	}

	items := make([]Item, 0, len(entries))
	for _, entry := range entries {
		id, name, ok := strings.Cut(entry.Name(), "_")
		if !ok || uuid.Validate(id) != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		items = append(items, Item{
			ID:        id,
			Name:      name,
			Path:      filepath.Join(q.dir, entry.Name()),
			Size:      info.Size(),
			IsDir:     info.IsDir(),
			DeletedAt: info.ModTime(),
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].DeletedAt.After(items[j].DeletedAt)
	})
	return items, nil
}
