package engine

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/sdejongh/tfm/pkg/dedupe"
	"github.com/sdejongh/tfm/pkg/logging"
	"github.com/sdejongh/tfm/pkg/models"
	"github.com/sdejongh/tfm/pkg/tasks"
)

// ScanItem is one duplicate group with its resolution, when a strategy
// was given
type ScanItem struct {
	Group    *models.DuplicateGroup
	Decision *dedupe.Decision
}

// ScanForDuplicates lazily yields duplicate groups under root. With a
// non-nil strategy every group comes with a decision; nothing is deleted
// until the decision is applied. Unreadable files are yielded as a
// *dedupe.FileError with an empty item and the scan goes on.
func (e *Engine) ScanForDuplicates(ctx context.Context, root string, recursive bool, strategy *models.Strategy) iter.Seq2[ScanItem, error] {
	return func(yield func(ScanItem, error) bool) {
		for group, err := range e.scanner.Groups(ctx, root, recursive) {
			if err != nil {
				if !yield(ScanItem{}, err) {
					return
				}
				continue
			}

			item := ScanItem{Group: group}
			if strategy != nil {
				decision, err := dedupe.Resolve(group, *strategy)
				if err != nil {
					yield(ScanItem{}, err)
					return
				}
				item.Decision = decision
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

// StartScan runs a collecting scan on the task runner. A cancelled scan
// returns the groups found so far flagged incomplete.
func (e *Engine) StartScan(ctx context.Context, root string, recursive bool, opts ...tasks.Option) *tasks.Handle[*models.ScanReport] {
	return tasks.Run(e.runner, ctx, "scan "+root, func(ctx context.Context, rep *tasks.Reporter) (*models.ScanReport, error) {
		report, err := e.scanner.WithProgress(rep).Scan(ctx, root, recursive)
		if report != nil && report.Incomplete {
			return report, nil
		}
		return report, err
	}, opts...)
}

// ApplyDecision submits the delete requests of a completed decision. With
// verification enabled nothing is removed unless every removal still
// matches the kept file.
func (e *Engine) ApplyDecision(ctx context.Context, d *dedupe.Decision) ([]models.OperationRecord, error) {
	reqs, err := d.Requests()
	if err != nil {
		return nil, err
	}
	if e.verifier != nil {
		if err := e.verifier.Check(ctx, d); err != nil {
			return nil, err
		}
	}

	records := make([]models.OperationRecord, 0, len(reqs))
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		rec, err := e.Submit(ctx, req)
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// StartResolve applies decisions on the task runner. Each removal is its
// own undoable record; cancelling stops before the next removal and
// keeps what was already committed.
func (e *Engine) StartResolve(ctx context.Context, decisions []*dedupe.Decision, opts ...tasks.Option) *tasks.Handle[*models.BulkReport] {
	return tasks.Run(e.runner, ctx, "resolve duplicates", func(ctx context.Context, rep *tasks.Reporter) (*models.BulkReport, error) {
		report := &models.BulkReport{Name: "resolve", StartTime: time.Now()}
		defer func() { report.EndTime = time.Now() }()

		for _, d := range decisions {
			rep.AddTotal(int64(len(d.Remove)))
		}

		for _, d := range decisions {
			if ctx.Err() != nil {
				report.Incomplete = true
				break
			}
			if d.Pending {
				report.Errors = append(report.Errors, taskError(d.Group.Members[0].Path, "resolve", models.ErrDecisionPending))
				continue
			}

			rep.Start(d.Keep)
			records, err := e.ApplyDecision(ctx, d)
			report.Records = append(report.Records, records...)
			rep.Advance(int64(len(records)))
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					report.Incomplete = true
					break
				}
				var opErr *models.OperationError
				path := d.Keep
				if errors.As(err, &opErr) {
					path = opErr.Path
				}
				report.Errors = append(report.Errors, taskError(path, "delete", err))
			}
		}

		e.logger.Info(ctx, "duplicates resolved", logging.Fields{
			"removed":    len(report.Records),
			"errors":     len(report.Errors),
			"incomplete": report.Incomplete,
		})
		return report, nil
	}, opts...)
}

func taskError(path, op string, err error) models.TaskError {
	return models.TaskError{
		Path:      path,
		Operation: op,
		Error:     err.Error(),
		Timestamp: time.Now(),
	}
}
