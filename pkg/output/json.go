package output

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/sdejongh/tfm/pkg/engine"
	"github.com/sdejongh/tfm/pkg/models"
)

// JSONFormatter formats output as JSON for automation and scripting.
// Every call writes one indented document.
type JSONFormatter struct {
	writer io.Writer
}

// JSONRecordData is the document written for a single record
type JSONRecordData struct {
	Action Action                 `json:"action"`
	Record models.OperationRecord `json:"record"`
}

// JSONHistoryData is the document written for the history listing
type JSONHistoryData struct {
	Cursor  int                      `json:"cursor"`
	Records []models.OperationRecord `json:"records"`
}

// JSONScanData is the document written for a duplicate scan
type JSONScanData struct {
	Status    models.Status               `json:"status"`
	Report    *models.ScanReport          `json:"report"`
	Decisions []models.ResolutionDecision `json:"decisions,omitempty"`
}

// JSONBulkData is the document written for a bulk task
type JSONBulkData struct {
	Status models.Status      `json:"status"`
	Report *models.BulkReport `json:"report"`
}

// JSONSearchData is the document written for a search
type JSONSearchData struct {
	Status models.Status        `json:"status"`
	Report *models.SearchReport `json:"report"`
}

// JSONErrorData is the document written for an error
type JSONErrorData struct {
	Error    string           `json:"error"`
	Conflict *models.Conflict `json:"conflict,omitempty"`
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(w io.Writer) *JSONFormatter {
	if w == nil {
		w = io.Discard
	}
	return &JSONFormatter{writer: w}
}

// Record reports a single record
func (f *JSONFormatter) Record(action Action, rec models.OperationRecord) error {
	return f.encode(JSONRecordData{Action: action, Record: rec})
}

// History lists records and the cursor
func (f *JSONFormatter) History(records []models.OperationRecord, cursor int) error {
	if records == nil {
		records = []models.OperationRecord{}
	}
	return f.encode(JSONHistoryData{Cursor: cursor, Records: records})
}

// ScanReport writes the scan report and decisions
func (f *JSONFormatter) ScanReport(report *models.ScanReport, decisions []models.ResolutionDecision) error {
	return f.encode(JSONScanData{Status: report.Status(), Report: report, Decisions: decisions})
}

// BulkReport writes a bulk task report
func (f *JSONFormatter) BulkReport(report *models.BulkReport) error {
	return f.encode(JSONBulkData{Status: report.Status(), Report: report})
}

// SearchReport writes the search matches
func (f *JSONFormatter) SearchReport(report *models.SearchReport) error {
	return f.encode(JSONSearchData{Status: report.Status(), Report: report})
}

// Trash lists quarantined entries
func (f *JSONFormatter) Trash(entries []engine.TrashEntry) error {
	if entries == nil {
		entries = []engine.TrashEntry{}
	}
	return f.encode(entries)
}

// Error reports an error
func (f *JSONFormatter) Error(err error) error {
	data := JSONErrorData{Error: err.Error()}
	var conflict *models.ConflictError
	if errors.As(err, &conflict) {
		data.Conflict = conflict.Conflict
	}
	return f.encode(data)
}

// Name returns the formatter name
func (f *JSONFormatter) Name() string {
	return "json"
}

func (f *JSONFormatter) encode(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
