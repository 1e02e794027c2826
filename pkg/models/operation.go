package models

import (
	"time"
)

// OperationKind identifies a mutation supported by the executor
type OperationKind string

const (
	// KindCopy copies a file or directory tree to a new path
	KindCopy OperationKind = "copy"
	// KindMove moves a file or directory tree to a new path
	KindMove OperationKind = "move"
	// KindDelete relocates an entry into the quarantine
	KindDelete OperationKind = "delete"
	// KindRename renames an entry inside its parent directory
	KindRename OperationKind = "rename"
	// KindCreateDirectory creates a directory (and missing parents)
	KindCreateDirectory OperationKind = "create_directory"
)

// Valid reports whether k is one of the supported kinds
func (k OperationKind) Valid() bool {
	switch k {
	case KindCopy, KindMove, KindDelete, KindRename, KindCreateDirectory:
		return true
	}
	return false
}

// HasDestination reports whether the kind writes to a second path
func (k OperationKind) HasDestination() bool {
	return k == KindCopy || k == KindMove || k == KindRename
}

// OperationRequest is a caller's request for one mutation
type OperationRequest struct {
	Kind OperationKind `json:"kind"`

	// Source is the path acted upon (the directory to create for create_directory)
	Source string `json:"source"`

	// Dest is the target path for copy and move
	Dest string `json:"dest,omitempty"`

	// NewName is the new base name for rename
	NewName string `json:"new_name,omitempty"`

	// Overwrite approves replacing an existing destination. The existing
	// entry is deleted reversibly before the request is retried.
	Overwrite bool `json:"overwrite,omitempty"`

	// OnConflict selects what happens when the destination exists and
	// Overwrite is not set. Empty means ConflictFail.
	OnConflict ConflictResolution `json:"on_conflict,omitempty"`

	// AllowPermanent permits an irreversible delete when the entry cannot
	// be moved into the quarantine
	AllowPermanent bool `json:"allow_permanent,omitempty"`
}

// Validate checks the request shape before it reaches the filesystem
func (r OperationRequest) Validate() error {
	if !r.Kind.Valid() {
		return &ValidationError{Field: "Kind", Message: "unsupported operation kind: " + string(r.Kind)}
	}
	if r.Source == "" {
		return &ValidationError{Field: "Source", Message: "source path is required"}
	}
	if (r.Kind == KindCopy || r.Kind == KindMove) && r.Dest == "" {
		return &ValidationError{Field: "Dest", Message: "destination path is required"}
	}
	if r.Kind == KindRename && r.NewName == "" {
		return &ValidationError{Field: "NewName", Message: "new name is required", Err: ErrInvalidName}
	}
	if !r.OnConflict.Valid() {
		return &ValidationError{Field: "OnConflict", Message: "unknown conflict resolution: " + string(r.OnConflict)}
	}
	return nil
}

// UndoPayload holds what the executor needs to invert a record
type UndoPayload struct {
	// TrashPath is where a deleted entry was relocated
	TrashPath string `json:"trash_path,omitempty"`

	// Permanent is set when a delete could not be quarantined and the
	// entry was removed for good
	Permanent bool `json:"permanent,omitempty"`

	// CreatedPath is the path a copy created
	CreatedPath string `json:"created_path,omitempty"`

	// OriginalPath is where a moved or renamed entry came from
	OriginalPath string `json:"original_path,omitempty"`

	// CreatedDirs lists directories created by create_directory, outermost first
	CreatedDirs []string `json:"created_dirs,omitempty"`

	// Preexisting marks a create_directory that found an empty directory in place
	Preexisting bool `json:"preexisting,omitempty"`
}

// OperationRecord describes one committed mutation. Records are values and
// are never modified after the executor returns them.
type OperationRecord struct {
	ID        string        `json:"id"`
	Kind      OperationKind `json:"kind"`
	Source    string        `json:"source"`
	Dest      string        `json:"dest,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Undo      UndoPayload   `json:"undo"`
}

// Reversible reports whether the record can be undone
func (r OperationRecord) Reversible() bool {
	return !(r.Kind == KindDelete && r.Undo.Permanent)
}

// PathsAdded returns the paths that exist because of the record
func (r OperationRecord) PathsAdded() []string {
	switch r.Kind {
	case KindCopy, KindMove, KindRename:
		return []string{r.Dest}
	case KindCreateDirectory:
		if r.Undo.Preexisting {
			return nil
		}
		return append([]string(nil), r.Undo.CreatedDirs...)
	}
	return nil
}

// PathsRemoved returns the paths that no longer exist because of the record
func (r OperationRecord) PathsRemoved() []string {
	switch r.Kind {
	case KindMove, KindRename, KindDelete:
		return []string{r.Source}
	}
	return nil
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string

	// Err is the sentinel the failure matches, if any
	Err error
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
