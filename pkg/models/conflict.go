package models

import (
	"time"
)

// Conflict describes a destination collision found before a mutation
type Conflict struct {
	// Kind is the operation that would have written the destination
	Kind OperationKind `json:"kind"`

	// Source is the entry being copied, moved or renamed
	Source string `json:"source"`

	// Dest is the colliding destination path
	Dest string `json:"dest"`

	// Existing is the metadata of the entry already at Dest
	Existing FileEntry `json:"existing"`

	// DetectedAt is when the conflict was detected
	DetectedAt time.Time `json:"detected_at"`
}

// ConflictResolution defines how a destination collision is handled
type ConflictResolution string

const (
	// ConflictFail returns the conflict to the caller (default)
	ConflictFail ConflictResolution = "fail"
	// ConflictOverwrite deletes the existing entry reversibly, then retries
	ConflictOverwrite ConflictResolution = "overwrite"
	// ConflictSkip leaves both sides untouched
	ConflictSkip ConflictResolution = "skip"
	// ConflictKeepBoth writes to a free name next to the destination
	ConflictKeepBoth ConflictResolution = "keep-both"
)

// Valid reports whether r is a known resolution
func (r ConflictResolution) Valid() bool {
	switch r {
	case "", ConflictFail, ConflictOverwrite, ConflictSkip, ConflictKeepBoth:
		return true
	}
	return false
}
