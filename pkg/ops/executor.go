// Package ops performs single filesystem mutations and their inversions.
package ops

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sdejongh/tfm/internal/platform"
	"github.com/sdejongh/tfm/pkg/digest"
	"github.com/sdejongh/tfm/pkg/logging"
	"github.com/sdejongh/tfm/pkg/models"
	"github.com/sdejongh/tfm/pkg/ratelimit"
	"github.com/sdejongh/tfm/pkg/trash"
)

// Options configures an Executor
type Options struct {
	// Quarantine receives deleted entries (required)
	Quarantine *trash.Quarantine

	// Hasher verifies cross-device moves (sha256 by default)
	Hasher *digest.Hasher

	// Limiter caps copy bandwidth (nil = unlimited)
	Limiter *ratelimit.Limiter

	// BufferSize is the copy buffer size in bytes
	BufferSize int

	// StrictMkdir makes create_directory fail on any existing directory
	StrictMkdir bool

	// AllowPermanent permits irreversible deletes for every request
	AllowPermanent bool

	Logger logging.Logger

	// Rename replaces os.Rename
	Rename trash.RenameFunc
}

// Executor performs one mutation per call and returns the record needed
// to invert it. It never touches the history.
type Executor struct {
	quarantine     *trash.Quarantine
	hasher         *digest.Hasher
	limiter        *ratelimit.Limiter
	bufferPool     *sync.Pool
	strictMkdir    bool
	allowPermanent bool
	logger         logging.Logger
	rename         trash.RenameFunc
	now            func() time.Time

	// afterCopy runs between the copy and the verification of a
	// cross-device move
	afterCopy func(dst string) error
}

// NewExecutor creates an executor
func NewExecutor(opts Options) (*Executor, error) {
	if opts.Quarantine == nil {
		return nil, fmt.Errorf("executor requires a quarantine")
	}

	hasher := opts.Hasher
	if hasher == nil {
		var err error
		if hasher, err = digest.New(digest.Options{BufferSize: opts.BufferSize}); err != nil {
			return nil, err
		}
	}

	bufferSize := opts.BufferSize
	if bufferSize < 4096 {
		bufferSize = 64 * 1024
	}

	rename := opts.Rename
	if rename == nil {
		rename = os.Rename
	}

	return &Executor{
		quarantine:     opts.Quarantine,
		hasher:         hasher,
		limiter:        opts.Limiter,
		strictMkdir:    opts.StrictMkdir,
		allowPermanent: opts.AllowPermanent,
		logger:         logging.OrNull(opts.Logger),
		rename:         rename,
		now:            time.Now,
		bufferPool: &sync.Pool{
			New: func() interface{} {
				buf := make([]byte, bufferSize)
				return &buf
			},
		},
	}, nil
}

// Quarantine returns the quarantine owned by the executor
func (e *Executor) Quarantine() *trash.Quarantine {
	return e.quarantine
}

// Execute performs req and returns its record
func (e *Executor) Execute(ctx context.Context, req models.OperationRequest) (models.OperationRecord, error) {
	if err := req.Validate(); err != nil {
		return models.OperationRecord{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.OperationRecord{}, err
	}

	src, err := platform.NormalizePath(req.Source)
	if err != nil {
		return models.OperationRecord{}, opErrorCause(req.Kind, req.Source, models.ErrPathNotFound, err)
	}

	var rec models.OperationRecord
	switch req.Kind {
	case models.KindCopy, models.KindMove:
		dst, err := platform.NormalizePath(req.Dest)
		if err != nil {
			return rec, opErrorCause(req.Kind, req.Dest, models.ErrPathNotFound, err)
		}
		if req.Kind == models.KindCopy {
			rec, err = e.copy(ctx, src, dst)
		} else {
			rec, err = e.move(ctx, src, dst)
		}
		if err != nil {
			return rec, err
		}
	case models.KindDelete:
		rec, err = e.delete(src, req.AllowPermanent || e.allowPermanent)
	case models.KindRename:
		rec, err = e.renameEntry(ctx, src, req.NewName)
	case models.KindCreateDirectory:
		rec, err = e.createDirectory(src)
	}
	if err != nil {
		return models.OperationRecord{}, err
	}

	rec.ID = uuid.NewString()
	rec.Kind = req.Kind
	rec.Timestamp = e.now()

	e.logger.Info(ctx, "operation executed", logging.Fields{
		"op":        string(rec.Kind),
		"source":    rec.Source,
		"dest":      rec.Dest,
		"record_id": rec.ID,
	})
	return rec, nil
}

func (e *Executor) copy(ctx context.Context, src, dst string) (models.OperationRecord, error) {
	info, err := e.checkTransfer(models.KindCopy, src, dst)
	if err != nil {
		return models.OperationRecord{}, err
	}

	if err := e.copyEntry(ctx, src, dst, info); err != nil {
		os.RemoveAll(dst)
		return models.OperationRecord{}, classify(models.KindCopy, dst, err)
	}

	return models.OperationRecord{
		Source: src,
		Dest:   dst,
		Undo:   models.UndoPayload{CreatedPath: dst},
	}, nil
}

func (e *Executor) move(ctx context.Context, src, dst string) (models.OperationRecord, error) {
	info, err := e.checkTransfer(models.KindMove, src, dst)
	if err != nil {
		return models.OperationRecord{}, err
	}

	if err := e.relocate(ctx, models.KindMove, src, dst, info); err != nil {
		return models.OperationRecord{}, err
	}

	return models.OperationRecord{
		Source: src,
		Dest:   dst,
		Undo:   models.UndoPayload{OriginalPath: src},
	}, nil
}

// checkTransfer validates a copy or move before anything is written
func (e *Executor) checkTransfer(kind models.OperationKind, src, dst string) (fs.FileInfo, error) {
	info, err := os.Lstat(src)
	if err != nil {
		return nil, classify(kind, src, err)
	}
	if platform.Exists(dst) {
		return nil, opError(kind, dst, models.ErrDestinationExists)
	}
	if info.IsDir() && platform.IsWithin(src, dst) {
		return nil, opErrorCause(kind, dst, models.ErrInvalidName, fmt.Errorf("destination is inside the source directory"))
	}
	if _, err := os.Stat(filepath.Dir(dst)); err != nil {
		return nil, classify(kind, filepath.Dir(dst), err)
	}
	return info, nil
}

// relocate renames from to to, falling back to copy, verify and remove
// when the two paths are on different filesystems.
func (e *Executor) relocate(ctx context.Context, kind models.OperationKind, from, to string, info fs.FileInfo) error {
	err := e.rename(from, to)
	if err == nil {
		return nil
	}
	if !platform.IsCrossDevice(err) {
		return classify(kind, from, err)
	}

	e.logger.Debug(ctx, "cross-device move, copying", logging.Fields{"source": from, "dest": to})

	if err := e.copyEntry(ctx, from, to, info); err != nil {
		os.RemoveAll(to)
		return classify(kind, to, err)
	}
	if e.afterCopy != nil {
		if err := e.afterCopy(to); err != nil {
			return classify(kind, to, err)
		}
	}
	if err := e.verifyCopy(ctx, from, to); err != nil {
		e.logger.Error(ctx, "move verification failed, both copies kept", err, logging.Fields{"source": from, "dest": to})
		return opErrorCause(kind, to, models.ErrMoveIntegrity, err)
	}
	if err := os.RemoveAll(from); err != nil {
		return classify(kind, from, err)
	}
	return nil
}

func (e *Executor) delete(src string, allowPermanent bool) (models.OperationRecord, error) {
	if _, err := os.Lstat(src); err != nil {
		return models.OperationRecord{}, classify(models.KindDelete, src, err)
	}
	if e.quarantine.Contains(src) {
		return models.OperationRecord{}, opErrorCause(models.KindDelete, src, models.ErrInvalidName, fmt.Errorf("path is inside the quarantine"))
	}

	trashPath, err := e.quarantine.Put(src)
	if err == nil {
		return models.OperationRecord{
			Source: src,
			Undo:   models.UndoPayload{TrashPath: trashPath},
		}, nil
	}
	if errors.Is(err, fs.ErrPermission) {
		return models.OperationRecord{}, classify(models.KindDelete, src, err)
	}
	if !allowPermanent {
		return models.OperationRecord{}, opErrorCause(models.KindDelete, src, models.ErrIrreversibleDeleteRefused, err)
	}

	e.logger.Warn(context.Background(), "quarantine unavailable, deleting permanently", logging.Fields{
		"source": src,
		"reason": err.Error(),
	})
	if err := os.RemoveAll(src); err != nil {
		return models.OperationRecord{}, classify(models.KindDelete, src, err)
	}
	return models.OperationRecord{
		Source: src,
		Undo:   models.UndoPayload{Permanent: true},
	}, nil
}

func (e *Executor) renameEntry(ctx context.Context, src, newName string) (models.OperationRecord, error) {
	if err := platform.ValidateName(newName); err != nil {
		return models.OperationRecord{}, opErrorCause(models.KindRename, newName, models.ErrInvalidName, err)
	}

	info, err := os.Lstat(src)
	if err != nil {
		return models.OperationRecord{}, classify(models.KindRename, src, err)
	}

	dst := filepath.Join(filepath.Dir(src), newName)
	if platform.Exists(dst) {
		return models.OperationRecord{}, opError(models.KindRename, dst, models.ErrDestinationExists)
	}

	if err := e.relocate(ctx, models.KindRename, src, dst, info); err != nil {
		return models.OperationRecord{}, err
	}

	return models.OperationRecord{
		Source: src,
		Dest:   dst,
		Undo:   models.UndoPayload{OriginalPath: src},
	}, nil
}

func (e *Executor) createDirectory(path string) (models.OperationRecord, error) {
	info, err := os.Lstat(path)
	if err == nil {
		if !info.IsDir() || e.strictMkdir {
			return models.OperationRecord{}, opError(models.KindCreateDirectory, path, models.ErrAlreadyExists)
		}
		empty, err := isEmptyDir(path)
		if err != nil {
			return models.OperationRecord{}, classify(models.KindCreateDirectory, path, err)
		}
		if !empty {
			return models.OperationRecord{}, opError(models.KindCreateDirectory, path, models.ErrAlreadyExists)
		}
		return models.OperationRecord{
			Source: path,
			Undo:   models.UndoPayload{Preexisting: true},
		}, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return models.OperationRecord{}, classify(models.KindCreateDirectory, path, err)
	}

	created, err := makeDirs(missingDirs(path))
	if err != nil {
		return models.OperationRecord{}, classify(models.KindCreateDirectory, path, err)
	}

	return models.OperationRecord{
		Source: path,
		Undo:   models.UndoPayload{CreatedDirs: created},
	}, nil
}

// Purge drops the quarantine data of a record that left the history
func (e *Executor) Purge(rec models.OperationRecord) error {
	if rec.Kind != models.KindDelete || rec.Undo.Permanent || rec.Undo.TrashPath == "" {
		return nil
	}
	return e.quarantine.Remove(rec.Undo.TrashPath)
}

// missingDirs lists path and its missing ancestors, outermost first
func missingDirs(path string) []string {
	var missing []string
	for p := path; ; {
		if platform.Exists(p) {
			break
		}
		missing = append([]string{p}, missing...)
		parent := filepath.Dir(p)
		if parent == p {
			break
		}
		p = parent
	}
	return missing
}

// makeDirs creates dirs in order. On failure the ones already created are
// removed again.
func makeDirs(dirs []string) ([]string, error) {
	for i, dir := range dirs {
		if err := os.Mkdir(dir, 0755); err != nil {
			removeDirs(dirs[:i])
			return nil, err
		}
	}
	return dirs, nil
}

// removeDirs removes dirs innermost first
func removeDirs(dirs []string) {
	for i := len(dirs) - 1; i >= 0; i-- {
		os.Remove(dirs[i])
	}
}

func isEmptyDir(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}

func opErrorCause(kind models.OperationKind, path string, sentinel, cause error) error {
	return models.NewOperationError(kind, path, sentinel, cause)
}
