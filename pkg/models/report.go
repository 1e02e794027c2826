package models

import (
	"time"
)

// Status represents the overall result of a task
type Status string

const (
	// StatusSuccess indicates all operations completed successfully
	StatusSuccess Status = "success"
	// StatusPartial indicates some operations failed
	StatusPartial Status = "partial"
	// StatusFailed indicates the task failed
	StatusFailed Status = "failed"
	// StatusCancelled indicates the task was cancelled before finishing
	StatusCancelled Status = "cancelled"
)

// ExitCode returns the process exit code for the status
func (s Status) ExitCode() int {
	switch s {
	case StatusSuccess:
		return 0
	case StatusPartial:
		return 1
	case StatusFailed:
		return 2
	case StatusCancelled:
		return 3
	default:
		return 2
	}
}

// ScanStats holds duplicate scan metrics
type ScanStats struct {
	FilesScanned   int   `json:"files_scanned"`
	BytesScanned   int64 `json:"bytes_scanned"`
	SizeCandidates int   `json:"size_candidates"` // files surviving the size pass
	PartialHashed  int   `json:"partial_hashed"`  // files read for a prefix digest
	FullHashed     int   `json:"full_hashed"`     // files read completely
	Groups         int   `json:"groups"`
	Duplicates     int   `json:"duplicates"` // members beyond the first in each group
	Reclaimable    int64 `json:"reclaimable"`
	Errors         int   `json:"errors"`
}

// ScanReport is the collected outcome of a duplicate scan
type ScanReport struct {
	Root       string            `json:"root"`
	Recursive  bool              `json:"recursive"`
	StartTime  time.Time         `json:"start_time"`
	EndTime    time.Time         `json:"end_time"`
	Groups     []*DuplicateGroup `json:"groups"`
	Stats      ScanStats         `json:"stats"`
	Incomplete bool              `json:"incomplete"`
	Errors     []TaskError       `json:"errors,omitempty"`
}

// Status derives the report status
func (r *ScanReport) Status() Status {
	switch {
	case r.Incomplete:
		return StatusCancelled
	case len(r.Errors) > 0:
		return StatusPartial
	}
	return StatusSuccess
}

// BulkReport is the outcome of a task issuing many operation requests
type BulkReport struct {
	Name       string             `json:"name"`
	DryRun     bool               `json:"dry_run"`
	StartTime  time.Time          `json:"start_time"`
	EndTime    time.Time          `json:"end_time"`
	Planned    []OperationRequest `json:"planned,omitempty"`
	Records    []OperationRecord  `json:"records"`
	Skipped    []string           `json:"skipped,omitempty"`
	Errors     []TaskError        `json:"errors,omitempty"`
	Incomplete bool               `json:"incomplete"`
}

// Status derives the report status
func (r *BulkReport) Status() Status {
	switch {
	case r.Incomplete:
		return StatusCancelled
	case len(r.Errors) > 0 && len(r.Records) == 0 && !r.DryRun:
		return StatusFailed
	case len(r.Errors) > 0:
		return StatusPartial
	}
	return StatusSuccess
}

// SearchReport lists the entries matching a search, in path order
type SearchReport struct {
	Root       string      `json:"root"`
	StartTime  time.Time   `json:"start_time"`
	EndTime    time.Time   `json:"end_time"`
	Matches    []FileEntry `json:"matches"`
	Errors     []TaskError `json:"errors,omitempty"`
	Incomplete bool        `json:"incomplete"`
}

// Status derives the report status. Unreadable files make a search
// partial, never failed.
func (r *SearchReport) Status() Status {
	switch {
	case r.Incomplete:
		return StatusCancelled
	case len(r.Errors) > 0:
		return StatusPartial
	}
	return StatusSuccess
}

// TaskError records a per-path failure inside a task
type TaskError struct {
	Path      string    `json:"path"`
	Operation string    `json:"operation,omitempty"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}
