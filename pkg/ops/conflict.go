package ops

import (
	"os"
	"path/filepath"
	"time"

	"github.com/sdejongh/tfm/internal/platform"
	"github.com/sdejongh/tfm/pkg/models"
)

// Destination returns the path a request writes to, or "" for kinds
// without a destination.
func Destination(req models.OperationRequest) string {
	switch req.Kind {
	case models.KindCopy, models.KindMove:
		if dst, err := platform.NormalizePath(req.Dest); err == nil {
			return dst
		}
	case models.KindRename:
		if src, err := platform.NormalizePath(req.Source); err == nil {
			return filepath.Join(filepath.Dir(src), req.NewName)
		}
	}
	return ""
}

// ConflictResolver detects destination collisions. It never decides how
// a collision is handled; that is up to the caller.
type ConflictResolver struct {
	now func() time.Time
}

// NewConflictResolver creates a resolver
func NewConflictResolver() *ConflictResolver {
	return &ConflictResolver{now: time.Now}
}

// Check returns the conflict a request would run into, or nil
func (r *ConflictResolver) Check(req models.OperationRequest) *models.Conflict {
	if !req.Kind.HasDestination() {
		return nil
	}

	dst := Destination(req)
	if dst == "" {
		return nil
	}

	info, err := os.Lstat(dst)
	if err != nil {
		return nil
	}

	src, _ := platform.NormalizePath(req.Source)
	if src == dst {
		// renaming onto itself is not a collision with another entry
		return nil
	}

	return &models.Conflict{
		Kind:       req.Kind,
		Source:     src,
		Dest:       dst,
		Existing:   models.EntryFromInfo(dst, info),
		DetectedAt: r.now(),
	}
}

// KeepBoth retargets req to the first free "name_N.ext" next to the
// conflicting destination.
func (r *ConflictResolver) KeepBoth(req models.OperationRequest, conflict *models.Conflict) models.OperationRequest {
	free := platform.UniquePath(conflict.Dest, nil)

	out := req
	out.OnConflict = models.ConflictFail
	out.Overwrite = false
	if req.Kind == models.KindRename {
		out.NewName = filepath.Base(free)
	} else {
		out.Dest = free
	}
	return out
}

// Replacement returns the delete request that clears the way for an approved
// overwrite. The delete is never permanent.
func (r *ConflictResolver) Replacement(conflict *models.Conflict) models.OperationRequest {
	return models.OperationRequest{Kind: models.KindDelete, Source: conflict.Dest}
}
