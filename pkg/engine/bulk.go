package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sdejongh/tfm/internal/platform"
	"github.com/sdejongh/tfm/pkg/logging"
	"github.com/sdejongh/tfm/pkg/models"
	"github.com/sdejongh/tfm/pkg/storage"
	"github.com/sdejongh/tfm/pkg/tasks"
)

// DefaultDateLayout groups files by year and month
const DefaultDateLayout = "2006/01"

// BatchRenameRequest renames every file whose name contains Pattern
type BatchRenameRequest struct {
	Dir         string
	Pattern     string
	Replacement string
	Recursive   bool
	DryRun      bool
}

// OrganizeRequest sorts the files directly inside Dir into sub-directories
// of Target
type OrganizeRequest struct {
	Dir string

	// Target receives the sub-directories (default: Dir)
	Target string

	// Move moves files instead of copying them
	Move bool

	// DateLayout names the folders of OrganizeByDate (default "2006/01")
	DateLayout string

	DryRun bool
}

// CleanupRequest deletes files not modified for OlderThan
type CleanupRequest struct {
	Dir       string
	OlderThan time.Duration
	Recursive bool
	DryRun    bool
}

// plan is the ordered list of requests a bulk task will submit
type plan struct {
	requests []models.OperationRequest
	skipped  []string
}

// BatchRename replaces Pattern with Replacement in matching file names.
// Invalid or colliding new names are skipped.
func (e *Engine) BatchRename(ctx context.Context, req BatchRenameRequest, opts ...tasks.Option) (*tasks.Handle[*models.BulkReport], error) {
	if req.Pattern == "" {
		return nil, &models.ValidationError{Field: "pattern", Message: "pattern cannot be empty"}
	}

	return e.startBulk(ctx, "batch-rename", req.DryRun, func(ctx context.Context) (*plan, error) {
		files, err := e.listFiles(ctx, req.Dir, req.Recursive)
		if err != nil {
			return nil, err
		}

		p := &plan{}
		used := make(map[string]bool)
		for _, f := range files {
			name := filepath.Base(f.Path)
			if !strings.Contains(name, req.Pattern) {
				continue
			}

			newName := strings.ReplaceAll(name, req.Pattern, req.Replacement)
			if newName == name {
				continue
			}
			newPath := filepath.Join(filepath.Dir(f.Path), newName)
			if platform.ValidateName(newName) != nil || used[newPath] || platform.Exists(newPath) {
				p.skipped = append(p.skipped, f.Path)
				continue
			}
			used[newPath] = true

			p.requests = append(p.requests, models.OperationRequest{
				Kind:       models.KindRename,
				Source:     f.Path,
				NewName:    newName,
				OnConflict: models.ConflictSkip,
			})
		}
		return p, nil
	}, opts...), nil
}

// OrganizeByType sorts files into category folders using the configured
// extension map. Files with an unknown extension are skipped.
func (e *Engine) OrganizeByType(ctx context.Context, req OrganizeRequest, opts ...tasks.Option) (*tasks.Handle[*models.BulkReport], error) {
	extensions := e.extensionMap()
	return e.organize(ctx, "organize-type", req, func(f storage.FileInfo) string {
		return extensions[strings.ToLower(filepath.Ext(f.Path))]
	}, opts...)
}

// OrganizeByDate sorts files into folders named after their modification
// time formatted with req.DateLayout
func (e *Engine) OrganizeByDate(ctx context.Context, req OrganizeRequest, opts ...tasks.Option) (*tasks.Handle[*models.BulkReport], error) {
	layout := req.DateLayout
	if layout == "" {
		layout = DefaultDateLayout
	}
	return e.organize(ctx, "organize-date", req, func(f storage.FileInfo) string {
		return filepath.FromSlash(f.ModTime.Format(layout))
	}, opts...)
}

func (e *Engine) organize(ctx context.Context, name string, req OrganizeRequest, key func(storage.FileInfo) string, opts ...tasks.Option) (*tasks.Handle[*models.BulkReport], error) {
	if req.Dir == "" {
		return nil, &models.ValidationError{Field: "dir", Message: "directory is required"}
	}
	target := req.Target
	if target == "" {
		target = req.Dir
	}
	target, err := platform.NormalizePath(target)
	if err != nil {
		return nil, err
	}

	kind := models.KindCopy
	if req.Move {
		kind = models.KindMove
	}

	return e.startBulk(ctx, name, req.DryRun, func(ctx context.Context) (*plan, error) {
		files, err := e.listFiles(ctx, req.Dir, false)
		if err != nil {
			return nil, err
		}

		p := &plan{}
		used := make(map[string]bool)
		taken := func(path string) bool { return used[path] || platform.Exists(path) }
		for _, f := range files {
			folder := key(f)
			if folder == "" {
				p.skipped = append(p.skipped, f.Path)
				continue
			}
			dir := filepath.Join(target, folder)
			if dir == target || !platform.IsWithin(target, dir) {
				p.skipped = append(p.skipped, f.Path)
				continue
			}

			if !used[dir] && !platform.Exists(dir) {
				p.requests = append(p.requests, models.OperationRequest{
					Kind:   models.KindCreateDirectory,
					Source: dir,
				})
			}
			used[dir] = true

			dest := platform.UniquePath(filepath.Join(dir, filepath.Base(f.Path)), taken)
			used[dest] = true
			p.requests = append(p.requests, models.OperationRequest{
				Kind:       kind,
				Source:     f.Path,
				Dest:       dest,
				OnConflict: models.ConflictKeepBoth,
			})
		}
		return p, nil
	}, opts...), nil
}

// CleanupOlderThan moves files not modified for req.OlderThan to the trash
func (e *Engine) CleanupOlderThan(ctx context.Context, req CleanupRequest, opts ...tasks.Option) (*tasks.Handle[*models.BulkReport], error) {
	if req.OlderThan <= 0 {
		return nil, &models.ValidationError{Field: "older_than", Message: "must be positive"}
	}

	return e.startBulk(ctx, "cleanup", req.DryRun, func(ctx context.Context) (*plan, error) {
		files, err := e.listFiles(ctx, req.Dir, req.Recursive)
		if err != nil {
			return nil, err
		}

		cutoff := time.Now().Add(-req.OlderThan)
		p := &plan{}
		for _, f := range files {
			if f.ModTime.Before(cutoff) {
				p.requests = append(p.requests, models.OperationRequest{
					Kind:   models.KindDelete,
					Source: f.Path,
				})
			}
		}
		return p, nil
	}, opts...), nil
}

// startBulk plans on the task runner and then submits the planned
// requests one by one. Cancellation stops before the next request;
// records already committed stay in the history.
func (e *Engine) startBulk(ctx context.Context, name string, dryRun bool, build func(ctx context.Context) (*plan, error), opts ...tasks.Option) *tasks.Handle[*models.BulkReport] {
	return tasks.Run(e.runner, ctx, name, func(ctx context.Context, rep *tasks.Reporter) (*models.BulkReport, error) {
		report := &models.BulkReport{Name: name, DryRun: dryRun, StartTime: time.Now()}
		defer func() { report.EndTime = time.Now() }()

		p, err := build(ctx)
		if err != nil {
			if ctx.Err() != nil {
				report.Incomplete = true
				return report, nil
			}
			return report, err
		}
		report.Planned = p.requests
		report.Skipped = p.skipped

		if dryRun {
			return report, nil
		}

		rep.SetTotal(int64(len(p.requests)))
		for _, req := range p.requests {
			if ctx.Err() != nil {
				report.Incomplete = true
				break
			}

			rep.Start(req.Source)
			rec, err := e.Submit(ctx, req)
			rep.Advance(1)

			var conflict *models.ConflictError
			switch {
			case err == nil:
				report.Records = append(report.Records, rec)
			case errors.As(err, &conflict) && req.OnConflict == models.ConflictSkip:
				report.Skipped = append(report.Skipped, req.Source)
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				report.Incomplete = true
			default:
				report.Errors = append(report.Errors, taskError(req.Source, string(req.Kind), err))
			}
		}

		e.logger.Info(ctx, "bulk operation finished", logging.Fields{
			"task":       name,
			"records":    len(report.Records),
			"skipped":    len(report.Skipped),
			"errors":     len(report.Errors),
			"incomplete": report.Incomplete,
		})
		return report, nil
	}, opts...)
}

// listFiles returns the regular files under dir, leaving out excluded
// paths and anything inside the quarantine
func (e *Engine) listFiles(ctx context.Context, dir string, recursive bool) ([]storage.FileInfo, error) {
	backend, err := storage.NewLocal(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPathNotFound, err)
	}
	defer backend.Close()

	files, err := backend.List(ctx, storage.ListOptions{Recursive: recursive, Exclude: e.exclude})
	if err != nil {
		return nil, err
	}

	quarantine := e.executor.Quarantine()
	kept := files[:0]
	for _, f := range files {
		if !quarantine.Contains(f.Path) {
			kept = append(kept, f)
		}
	}
	return kept, nil
}

// extensionMap inverts the category map. Categories are visited in name
// order so an extension listed twice always maps to the same folder.
func (e *Engine) extensionMap() map[string]string {
	names := make([]string, 0, len(e.categories))
	for name := range e.categories {
		names = append(names, name)
	}
	sort.Strings(names)

	m := make(map[string]string)
	for _, name := range names {
		for _, ext := range e.categories[name] {
			ext = strings.ToLower(ext)
			if _, ok := m[ext]; !ok {
				m[ext] = name
			}
		}
	}
	return m
}
