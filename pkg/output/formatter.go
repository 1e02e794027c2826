package output

import (
	"fmt"
	"io"

	"github.com/sdejongh/tfm/pkg/engine"
	"github.com/sdejongh/tfm/pkg/models"
)

// Action says what happened to a record that is being reported
type Action string

const (
	ActionCommitted Action = "committed"
	ActionUndone    Action = "undone"
	ActionRedone    Action = "redone"
)

// Formatter defines the interface for output formatting
// Implementations include human-readable and JSON formatters
type Formatter interface {
	// Record reports a single committed, undone or redone record
	Record(action Action, rec models.OperationRecord) error

	// History lists the records and marks the cursor
	History(records []models.OperationRecord, cursor int) error

	// ScanReport shows duplicate groups. decisions is either empty or
	// aligned with report.Groups.
	ScanReport(report *models.ScanReport, decisions []models.ResolutionDecision) error

	// BulkReport summarizes a task that issued many requests
	BulkReport(report *models.BulkReport) error

	// SearchReport lists search matches
	SearchReport(report *models.SearchReport) error

	// Trash lists quarantined entries
	Trash(entries []engine.TrashEntry) error

	// Error reports an error
	Error(err error) error

	// Name returns the formatter name
	Name() string
}

// New returns the formatter for format ("human" or "json")
func New(format string, w io.Writer) (Formatter, error) {
	switch format {
	case "", "human":
		return NewHumanFormatter(w), nil
	case "json":
		return NewJSONFormatter(w), nil
	}
	return nil, fmt.Errorf("unknown output format %q", format)
}
