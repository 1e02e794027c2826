package ops

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sdejongh/tfm/internal/platform"
	"github.com/sdejongh/tfm/pkg/logging"
	"github.com/sdejongh/tfm/pkg/models"
	"github.com/sdejongh/tfm/pkg/trash"
)

// Undo inverts a record. Nothing is changed when the inversion is blocked.
func (e *Executor) Undo(ctx context.Context, rec models.OperationRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var err error
	switch rec.Kind {
	case models.KindCopy:
		err = e.undoCopy(rec)
	case models.KindMove, models.KindRename:
		err = e.undoMove(ctx, rec)
	case models.KindDelete:
		err = e.undoDelete(rec)
	case models.KindCreateDirectory:
		err = e.undoCreateDirectory(rec)
	default:
		err = opError(rec.Kind, rec.Source, models.ErrNotReversible)
	}
	if err != nil {
		return err
	}

	e.logger.Info(ctx, "operation undone", logging.Fields{
		"op":        string(rec.Kind),
		"source":    rec.Source,
		"dest":      rec.Dest,
		"record_id": rec.ID,
	})
	return nil
}

func (e *Executor) undoCopy(rec models.OperationRecord) error {
	created := rec.Undo.CreatedPath
	if _, err := os.Lstat(created); err != nil {
		return classify(rec.Kind, created, err)
	}
	if err := os.RemoveAll(created); err != nil {
		return classify(rec.Kind, created, err)
	}
	return nil
}

func (e *Executor) undoMove(ctx context.Context, rec models.OperationRecord) error {
	original := rec.Undo.OriginalPath
	if platform.Exists(original) {
		return opError(rec.Kind, original, models.ErrUndoTargetOccupied)
	}

	info, err := os.Lstat(rec.Dest)
	if err != nil {
		return classify(rec.Kind, rec.Dest, err)
	}
	if err := os.MkdirAll(filepath.Dir(original), 0755); err != nil {
		return classify(rec.Kind, original, err)
	}
	return e.relocate(ctx, rec.Kind, rec.Dest, original, info)
}

func (e *Executor) undoDelete(rec models.OperationRecord) error {
	if rec.Undo.Permanent {
		return opError(rec.Kind, rec.Source, models.ErrNotReversible)
	}

	err := e.quarantine.Restore(rec.Undo.TrashPath, rec.Source)
	if errors.Is(err, trash.ErrOccupied) {
		return opError(rec.Kind, rec.Source, models.ErrUndoTargetOccupied)
	}
	return classify(rec.Kind, rec.Source, err)
}

func (e *Executor) undoCreateDirectory(rec models.OperationRecord) error {
	if rec.Undo.Preexisting {
		return nil
	}

	dirs := rec.Undo.CreatedDirs
	// every created directory may only contain the next one in the chain
	for i := len(dirs) - 1; i >= 0; i-- {
		entries, err := os.ReadDir(dirs[i])
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return classify(rec.Kind, dirs[i], err)
		}
		for _, entry := range entries {
			if i+1 < len(dirs) && filepath.Join(dirs[i], entry.Name()) == dirs[i+1] {
				continue
			}
			return opError(rec.Kind, dirs[i], models.ErrUndoBlockedNotEmpty)
		}
	}

	for i := len(dirs) - 1; i >= 0; i-- {
		if err := os.Remove(dirs[i]); err != nil && !errors.Is(err, fs.ErrNotExist) {
			if platform.IsNotEmpty(err) {
				return opError(rec.Kind, dirs[i], models.ErrUndoBlockedNotEmpty)
			}
			return classify(rec.Kind, dirs[i], err)
		}
	}
	return nil
}

// Redo re-applies a record that was undone, reproducing the same paths.
// A redone delete goes back to the recorded quarantine location.
func (e *Executor) Redo(ctx context.Context, rec models.OperationRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var err error
	switch rec.Kind {
	case models.KindCopy:
		var info fs.FileInfo
		if info, err = e.checkTransfer(rec.Kind, rec.Source, rec.Dest); err == nil {
			if err = e.copyEntry(ctx, rec.Source, rec.Dest, info); err != nil {
				os.RemoveAll(rec.Dest)
				err = classify(rec.Kind, rec.Dest, err)
			}
		}
	case models.KindMove, models.KindRename:
		var info fs.FileInfo
		if info, err = e.checkTransfer(rec.Kind, rec.Source, rec.Dest); err == nil {
			err = e.relocate(ctx, rec.Kind, rec.Source, rec.Dest, info)
		}
	case models.KindDelete:
		err = e.redoDelete(rec)
	case models.KindCreateDirectory:
		err = e.redoCreateDirectory(rec)
	default:
		err = opError(rec.Kind, rec.Source, models.ErrNotReversible)
	}
	if err != nil {
		return err
	}

	e.logger.Info(ctx, "operation redone", logging.Fields{
		"op":        string(rec.Kind),
		"source":    rec.Source,
		"dest":      rec.Dest,
		"record_id": rec.ID,
	})
	return nil
}

func (e *Executor) redoDelete(rec models.OperationRecord) error {
	if rec.Undo.Permanent {
		return opError(rec.Kind, rec.Source, models.ErrNotReversible)
	}
	if _, err := os.Lstat(rec.Source); err != nil {
		return classify(rec.Kind, rec.Source, err)
	}
	if err := e.quarantine.PutAt(rec.Source, rec.Undo.TrashPath); err != nil {
		return classify(rec.Kind, rec.Source, err)
	}
	return nil
}

func (e *Executor) redoCreateDirectory(rec models.OperationRecord) error {
	if rec.Undo.Preexisting {
		return nil
	}
	for _, dir := range rec.Undo.CreatedDirs {
		if platform.Exists(dir) {
			return opError(rec.Kind, dir, models.ErrAlreadyExists)
		}
	}
	if _, err := makeDirs(rec.Undo.CreatedDirs); err != nil {
		return classify(rec.Kind, rec.Source, err)
	}
	return nil
}
