package models

import (
	"os"
	"time"
)

// FileEntry describes a filesystem object as seen by the engine
type FileEntry struct {
	// Path is the absolute path on the filesystem
	Path string `json:"path"`

	// Size in bytes
	Size int64 `json:"size"`

	// ModTime is the last modification time
	ModTime time.Time `json:"mod_time"`

	// IsDir indicates if this is a directory
	IsDir bool `json:"is_dir,omitempty"`

	// Permissions are the file mode bits
	Permissions uint32 `json:"permissions,omitempty"`
}

// EntryFromInfo builds a FileEntry from os.FileInfo
func EntryFromInfo(path string, info os.FileInfo) FileEntry {
	return FileEntry{
		Path:        path,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		IsDir:       info.IsDir(),
		Permissions: uint32(info.Mode().Perm()),
	}
}
