package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/sdejongh/tfm/pkg/logging"
	"github.com/sdejongh/tfm/pkg/models"
	"github.com/sdejongh/tfm/pkg/storage"
	"github.com/sdejongh/tfm/pkg/tasks"
)

const (
	// searchChunkSize is how much of a file is scanned per read
	searchChunkSize = 64 * 1024

	// binarySniffSize is the prefix checked for NUL bytes
	binarySniffSize = 512
)

// SearchRequest selects entries below Dir. Every criterion that is set
// must match.
type SearchRequest struct {
	Dir string

	// Name is a doublestar pattern matched against the base name, or
	// against the slash-separated path relative to Dir when it holds a "/"
	Name string

	// Content is text the file must contain. Binary files never match.
	Content string

	// MinSize and MaxSize bound the file size in bytes; zero disables a bound
	MinSize int64
	MaxSize int64

	CaseSensitive bool
	Recursive     bool
}

func (r SearchRequest) validate() error {
	switch {
	case r.Name != "" && !doublestar.ValidatePattern(r.Name):
		return &models.ValidationError{Field: "name", Message: "invalid pattern: " + r.Name}
	case r.MinSize < 0 || r.MaxSize < 0:
		return &models.ValidationError{Field: "size", Message: "sizes cannot be negative"}
	case r.MaxSize > 0 && r.MinSize > r.MaxSize:
		return &models.ValidationError{Field: "size", Message: fmt.Sprintf("min size %d exceeds max size %d", r.MinSize, r.MaxSize)}
	}
	return nil
}

// namesOnly reports whether directories can match, which is only the case
// when nothing but the name is filtered
func (r SearchRequest) namesOnly() bool {
	return r.Content == "" && r.MinSize == 0 && r.MaxSize == 0
}

func (r SearchRequest) matchName(f storage.FileInfo) bool {
	if r.Name == "" {
		return true
	}
	pattern, subject := r.Name, filepath.Base(f.Path)
	if strings.Contains(pattern, "/") {
		subject = filepath.ToSlash(f.RelativePath)
	}
	if !r.CaseSensitive {
		pattern, subject = strings.ToLower(pattern), strings.ToLower(subject)
	}
	ok, _ := doublestar.Match(pattern, subject)
	return ok
}

func (r SearchRequest) matchSize(f storage.FileInfo) bool {
	if f.IsDir {
		return true
	}
	if r.MinSize > 0 && f.Size < r.MinSize {
		return false
	}
	return r.MaxSize == 0 || f.Size <= r.MaxSize
}

// Search finds entries under req.Dir by name, content and size. The
// quarantine and excluded paths are never searched. Files that cannot be
// read are reported and the search goes on.
func (e *Engine) Search(ctx context.Context, req SearchRequest, opts ...tasks.Option) (*tasks.Handle[*models.SearchReport], error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	return tasks.Run(e.runner, ctx, "search "+req.Dir, func(ctx context.Context, rep *tasks.Reporter) (*models.SearchReport, error) {
		backend, err := storage.NewLocal(req.Dir)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrPathNotFound, err)
		}
		defer backend.Close()

		report, err := e.search(ctx, backend, req, rep)
		if err != nil {
			return nil, err
		}
		e.logger.Info(ctx, "search complete", logging.Fields{
			"root":       report.Root,
			"matches":    len(report.Matches),
			"errors":     len(report.Errors),
			"incomplete": report.Incomplete,
		})
		return report, nil
	}, opts...), nil
}

func (e *Engine) search(ctx context.Context, backend storage.Backend, req SearchRequest, rep *tasks.Reporter) (*models.SearchReport, error) {
	report := &models.SearchReport{
		Root:      backend.Root(),
		StartTime: time.Now(),
		Matches:   []models.FileEntry{},
	}
	defer func() { report.EndTime = time.Now() }()

	entries, err := backend.List(ctx, storage.ListOptions{
		Recursive:   req.Recursive,
		Exclude:     e.exclude,
		IncludeDirs: req.namesOnly(),
	})
	if err != nil {
		if ctx.Err() != nil {
			report.Incomplete = true
			return report, nil
		}
		return nil, err
	}

	quarantine := e.executor.Quarantine()
	candidates := entries[:0]
	for _, f := range entries {
		if f.Path == quarantine.Dir() || quarantine.Contains(f.Path) {
			continue
		}
		if req.matchName(f) && req.matchSize(f) {
			candidates = append(candidates, f)
		}
	}

	var needle []byte
	if req.Content != "" {
		needle = []byte(req.Content)
		if !req.CaseSensitive {
			needle = bytes.ToLower(needle)
		}
	}

	rep.SetTotal(int64(len(candidates)))
	for _, f := range candidates {
		if ctx.Err() != nil {
			report.Incomplete = true
			break
		}
		rep.Start(f.RelativePath)

		matched := true
		if needle != nil {
			matched, err = containsText(ctx, backend, f.Path, needle, req.CaseSensitive)
			if err != nil && ctx.Err() == nil {
				report.Errors = append(report.Errors, models.TaskError{
					Path:      f.Path,
					Operation: "read",
					Error:     err.Error(),
					Timestamp: time.Now(),
				})
			}
		}
		if matched {
			report.Matches = append(report.Matches, f.Entry())
		}
		rep.Advance(1)
	}
	return report, nil
}

// containsText streams path looking for needle. Consecutive windows
// overlap by len(needle)-1 bytes so a match across a read boundary is
// found. A NUL byte in the first 512 bytes marks the file as binary.
func containsText(ctx context.Context, backend storage.Backend, path string, needle []byte, caseSensitive bool) (bool, error) {
	rc, err := backend.Read(ctx, path)
	if err != nil {
		return false, err
	}
	defer rc.Close()

	overlap := len(needle) - 1
	chunk := max(searchChunkSize, 2*len(needle))
	buf := make([]byte, chunk+overlap)
	carry := 0
	for first := true; ; first = false {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		n, readErr := io.ReadFull(rc, buf[carry:carry+chunk])
		window := buf[:carry+n]
		if first && bytes.IndexByte(window[:min(len(window), binarySniffSize)], 0) >= 0 {
			return false, nil
		}

		haystack := window
		if !caseSensitive {
			haystack = bytes.ToLower(window)
		}
		if bytes.Contains(haystack, needle) {
			return true, nil
		}

		switch readErr {
		case nil:
		case io.EOF, io.ErrUnexpectedEOF:
			return false, nil
		default:
			return false, readErr
		}

		carry = min(overlap, len(window))
		copy(buf, window[len(window)-carry:])
	}
}
