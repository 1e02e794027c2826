package ops

import (
	"errors"
	"io/fs"

	"github.com/sdejongh/tfm/internal/platform"
	"github.com/sdejongh/tfm/pkg/models"
)

// classify maps an OS error onto the model sentinels. Errors that do not
// belong to a known class are wrapped as they are.
func classify(kind models.OperationKind, path string, err error) error {
	if err == nil {
		return nil
	}

	var opErr *models.OperationError
	if errors.As(err, &opErr) {
		return err
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return models.NewOperationError(kind, path, models.ErrPathNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return models.NewOperationError(kind, path, models.ErrPermissionDenied, err)
	case platform.IsNoSpace(err):
		return models.NewOperationError(kind, path, models.ErrDiskFull, err)
	case errors.Is(err, fs.ErrExist):
		return models.NewOperationError(kind, path, models.ErrDestinationExists, err)
	}
	return models.NewOperationError(kind, path, err, nil)
}

func opError(kind models.OperationKind, path string, sentinel error) error {
	return models.NewOperationError(kind, path, sentinel, nil)
}
