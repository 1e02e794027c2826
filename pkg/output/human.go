package output

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/sdejongh/tfm/pkg/engine"
	"github.com/sdejongh/tfm/pkg/models"
)

// HumanFormatter formats output in human-readable format
type HumanFormatter struct {
	writer io.Writer
}

// NewHumanFormatter creates a new human-readable formatter
func NewHumanFormatter(w io.Writer) *HumanFormatter {
	if w == nil {
		w = io.Discard
	}
	return &HumanFormatter{writer: w}
}

// Record reports a single record
func (f *HumanFormatter) Record(action Action, rec models.OperationRecord) error {
	prefix := ""
	switch action {
	case ActionUndone:
		prefix = "Undone: "
	case ActionRedone:
		prefix = "Redone: "
	}
	_, err := fmt.Fprintf(f.writer, "%s%s\n", prefix, describe(rec))
	return err
}

// History lists records oldest first. Records at or after the cursor were
// undone and can be redone.
func (f *HumanFormatter) History(records []models.OperationRecord, cursor int) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(f.writer, "History is empty")
		return err
	}

	fmt.Fprintf(f.writer, "%4s  %-19s  %-16s  %s\n", "#", "TIME", "KIND", "OPERATION")
	for i, rec := range records {
		state := ""
		if i >= cursor {
			state = "  (undone)"
		}
		fmt.Fprintf(f.writer, "%4d  %-19s  %-16s  %s%s\n",
			i+1, rec.Timestamp.Local().Format("2006-01-02 15:04:05"), rec.Kind, paths(rec), state)
	}
	fmt.Fprintf(f.writer, "\n%d record(s), %d undoable, %d redoable\n", len(records), cursor, len(records)-cursor)
	return nil
}

// ScanReport shows duplicate groups and their resolution
func (f *HumanFormatter) ScanReport(report *models.ScanReport, decisions []models.ResolutionDecision) error {
	for i, group := range report.Groups {
		fmt.Fprintf(f.writer, "Group %d: %d files, %s each (%s)\n",
			i+1, len(group.Members), formatBytes(group.Signature.Size), shortHash(group.Signature.FullHash))

		var d *models.ResolutionDecision
		if i < len(decisions) {
			d = &decisions[i]
		}
		for _, m := range group.Members {
			marker := " "
			if d != nil && !d.Pending {
				marker = "-"
				if m.Path == d.Keep {
					marker = "+"
				}
			}
			fmt.Fprintf(f.writer, "  %s %s  %s\n", marker, m.ModTime.Local().Format("2006-01-02 15:04"), m.Path)
		}
		fmt.Fprintln(f.writer)
	}

	stats := report.Stats
	fmt.Fprintf(f.writer, "Scan completed in %s\n", formatDuration(report.EndTime.Sub(report.StartTime)))
	fmt.Fprintf(f.writer, "\n")
	fmt.Fprintf(f.writer, "Summary:\n")
	fmt.Fprintf(f.writer, "  Files scanned:     %d (%s)\n", stats.FilesScanned, formatBytes(stats.BytesScanned))
	fmt.Fprintf(f.writer, "  Size candidates:   %d\n", stats.SizeCandidates)
	fmt.Fprintf(f.writer, "  Prefix hashed:     %d\n", stats.PartialHashed)
	fmt.Fprintf(f.writer, "  Fully hashed:      %d\n", stats.FullHashed)
	fmt.Fprintf(f.writer, "  Duplicate groups:  %d\n", stats.Groups)
	fmt.Fprintf(f.writer, "  Redundant copies:  %d\n", stats.Duplicates)
	fmt.Fprintf(f.writer, "  Reclaimable:       %s\n", formatBytes(stats.Reclaimable))
	fmt.Fprintf(f.writer, "\n")
	fmt.Fprintf(f.writer, "Status: %s\n", report.Status())

	f.taskErrors(report.Errors)
	return nil
}

// BulkReport summarizes a bulk task
func (f *HumanFormatter) BulkReport(report *models.BulkReport) error {
	if report.DryRun {
		fmt.Fprintf(f.writer, "Dry run of %s, nothing was changed:\n", report.Name)
		for _, req := range report.Planned {
			fmt.Fprintf(f.writer, "  %s\n", describeRequest(req))
		}
	} else {
		for _, rec := range report.Records {
			fmt.Fprintf(f.writer, "  %s\n", describe(rec))
		}
	}

	if len(report.Skipped) > 0 {
		fmt.Fprintf(f.writer, "\nSkipped:\n")
		for _, path := range report.Skipped {
			fmt.Fprintf(f.writer, "  %s\n", path)
		}
	}

	fmt.Fprintf(f.writer, "\n")
	if report.DryRun {
		fmt.Fprintf(f.writer, "Planned: %d, skipped: %d\n", len(report.Planned), len(report.Skipped))
	} else {
		fmt.Fprintf(f.writer, "Committed: %d, skipped: %d, errors: %d\n", len(report.Records), len(report.Skipped), len(report.Errors))
	}
	if report.Incomplete {
		fmt.Fprintf(f.writer, "Cancelled before completion; committed operations remain undoable\n")
	}
	fmt.Fprintf(f.writer, "Status: %s\n", report.Status())

	f.taskErrors(report.Errors)
	return nil
}

// SearchReport prints one match per line
func (f *HumanFormatter) SearchReport(report *models.SearchReport) error {
	for _, m := range report.Matches {
		if m.IsDir {
			fmt.Fprintf(f.writer, "%s%c\n", m.Path, filepath.Separator)
			continue
		}
		fmt.Fprintf(f.writer, "%s  (%s)\n", m.Path, formatBytes(m.Size))
	}

	fmt.Fprintf(f.writer, "\n%d match(es) under %s\n", len(report.Matches), report.Root)
	if report.Incomplete {
		fmt.Fprintf(f.writer, "Search cancelled, results are partial\n")
	}

	f.taskErrors(report.Errors)
	return nil
}

// Trash lists quarantined entries
func (f *HumanFormatter) Trash(entries []engine.TrashEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(f.writer, "Trash is empty")
		return err
	}

	var total int64
	for _, e := range entries {
		origin := e.Original
		if origin == "" {
			origin = e.Name + " (no longer in history)"
		}
		kind := "file"
		if e.IsDir {
			kind = "dir"
		}
		fmt.Fprintf(f.writer, "%s  %-4s  %10s  %s\n",
			e.DeletedAt.Local().Format("2006-01-02 15:04"), kind, formatBytes(e.Size), origin)
		total += e.Size
	}
	fmt.Fprintf(f.writer, "\n%d item(s), %s\n", len(entries), formatBytes(total))
	return nil
}

// Error reports an error
func (f *HumanFormatter) Error(err error) error {
	var conflict *models.ConflictError
	if errors.As(err, &conflict) {
		c := conflict.Conflict
		_, werr := fmt.Fprintf(f.writer, "Error: %s already exists (%s, modified %s); use --overwrite or --on-conflict\n",
			c.Dest, formatBytes(c.Existing.Size), c.Existing.ModTime.Local().Format("2006-01-02 15:04"))
		return werr
	}
	_, werr := fmt.Fprintf(f.writer, "Error: %v\n", err)
	return werr
}

// Name returns the formatter name
func (f *HumanFormatter) Name() string {
	return "human"
}

func (f *HumanFormatter) taskErrors(errs []models.TaskError) {
	if len(errs) == 0 {
		return
	}
	fmt.Fprintf(f.writer, "\nErrors:\n")
	for _, err := range errs {
		fmt.Fprintf(f.writer, "  %s: %s\n", err.Path, err.Error)
	}
}

var verbs = map[models.OperationKind]string{
	models.KindCopy:            "Copied",
	models.KindMove:            "Moved",
	models.KindDelete:          "Deleted",
	models.KindRename:          "Renamed",
	models.KindCreateDirectory: "Created directory",
}

// describe renders a record as a sentence
func describe(rec models.OperationRecord) string {
	s := verbs[rec.Kind] + " " + paths(rec)
	switch {
	case rec.Kind == models.KindDelete && rec.Undo.Permanent:
		s += " (permanently)"
	case rec.Kind == models.KindCreateDirectory && rec.Undo.Preexisting:
		s += " (already existed)"
	}
	return s
}

func describeRequest(req models.OperationRequest) string {
	switch req.Kind {
	case models.KindRename:
		return fmt.Sprintf("rename %s -> %s", req.Source, req.NewName)
	case models.KindCopy, models.KindMove:
		return fmt.Sprintf("%s %s -> %s", req.Kind, req.Source, req.Dest)
	}
	return fmt.Sprintf("%s %s", req.Kind, req.Source)
}

func paths(rec models.OperationRecord) string {
	if rec.Dest == "" {
		return rec.Source
	}
	return rec.Source + " -> " + rec.Dest
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// formatBytes formats bytes in human-readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatDuration formats duration in human-readable format
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
