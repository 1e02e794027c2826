package models

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the executor, the history and the engine.
// Callers match with errors.Is; OperationError and ConflictError carry
// the path and details.
var (
	ErrPathNotFound              = errors.New("path not found")
	ErrPermissionDenied          = errors.New("permission denied")
	ErrDestinationExists         = errors.New("destination exists")
	ErrAlreadyExists             = errors.New("already exists")
	ErrInvalidName               = errors.New("invalid name")
	ErrMoveIntegrity             = errors.New("move integrity check failed")
	ErrIrreversibleDeleteRefused = errors.New("irreversible delete refused")
	ErrUndoTargetOccupied        = errors.New("undo target occupied")
	ErrUndoBlockedNotEmpty       = errors.New("undo blocked: directory not empty")
	ErrNotReversible             = errors.New("operation is not reversible")
	ErrNothingToUndo             = errors.New("nothing to undo")
	ErrNothingToRedo             = errors.New("nothing to redo")
	ErrUndoFailed                = errors.New("undo failed")
	ErrRedoFailed                = errors.New("redo failed")
	ErrHistoryCorrupted          = errors.New("history corrupted")
	ErrDiskFull                  = errors.New("disk full")
	ErrDecisionPending           = errors.New("resolution decision is pending")
	ErrContentMismatch           = errors.New("content differs from the kept file")
)

// OperationError is returned by the executor. Err is one of the sentinels
// above; Cause is the underlying OS error when there is one.
type OperationError struct {
	Kind  OperationKind
	Path  string
	Err   error
	Cause error
}

func (e *OperationError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Kind, e.Path, e.Err)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes both the sentinel and the cause to errors.Is / errors.As
func (e *OperationError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// NewOperationError builds an OperationError
func NewOperationError(kind OperationKind, path string, sentinel, cause error) *OperationError {
	return &OperationError{Kind: kind, Path: path, Err: sentinel, Cause: cause}
}

// ConflictError is returned when a destination collision blocks a request
type ConflictError struct {
	Conflict *Conflict
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s: destination exists: %s", e.Conflict.Kind, e.Conflict.Source, e.Conflict.Dest)
}

// Is makes errors.Is(err, ErrDestinationExists) hold for conflicts
func (e *ConflictError) Is(target error) bool {
	return target == ErrDestinationExists
}

// HistoryError wraps a failure of an undo or redo step
type HistoryError struct {
	Op     string // "undo" or "redo"
	Record OperationRecord
	Err    error
}

func (e *HistoryError) Error() string {
	return fmt.Sprintf("%s of %s %s failed: %v", e.Op, e.Record.Kind, e.Record.Source, e.Err)
}

func (e *HistoryError) Unwrap() []error {
	sentinel := ErrUndoFailed
	if e.Op == "redo" {
		sentinel = ErrRedoFailed
	}
	return []error{sentinel, e.Err}
}
