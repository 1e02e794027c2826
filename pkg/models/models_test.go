package models

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============== OperationRequest Tests ==============

func TestOperationRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     OperationRequest
		field   string
		wantErr bool
	}{
		{"copy", OperationRequest{Kind: KindCopy, Source: "/a", Dest: "/b"}, "", false},
		{"rename", OperationRequest{Kind: KindRename, Source: "/a", NewName: "b"}, "", false},
		{"delete", OperationRequest{Kind: KindDelete, Source: "/a"}, "", false},
		{"mkdir", OperationRequest{Kind: KindCreateDirectory, Source: "/a"}, "", false},
		{"unknown kind", OperationRequest{Kind: "link", Source: "/a"}, "Kind", true},
		{"missing source", OperationRequest{Kind: KindDelete}, "Source", true},
		{"move without dest", OperationRequest{Kind: KindMove, Source: "/a"}, "Dest", true},
		{"rename without name", OperationRequest{Kind: KindRename, Source: "/a"}, "NewName", true},
		{"bad resolution", OperationRequest{Kind: KindCopy, Source: "/a", Dest: "/b", OnConflict: "merge"}, "OnConflict", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	err := OperationRequest{Kind: KindRename, Source: "/a"}.Validate()
	assert.ErrorIs(t, err, ErrInvalidName)
	err = OperationRequest{Kind: KindDelete}.Validate()
	assert.NotErrorIs(t, err, ErrInvalidName)
}

func TestOperationKind(t *testing.T) {
	assert.True(t, KindCopy.HasDestination())
	assert.True(t, KindRename.HasDestination())
	assert.False(t, KindDelete.HasDestination())
	assert.False(t, KindCreateDirectory.HasDestination())
	assert.False(t, OperationKind("chmod").Valid())
}

func TestConflictResolution(t *testing.T) {
	for _, r := range []ConflictResolution{"", ConflictFail, ConflictOverwrite, ConflictSkip, ConflictKeepBoth} {
		assert.True(t, r.Valid(), "resolution %q", r)
	}
	assert.False(t, ConflictResolution("newer").Valid())
}

// ============== OperationRecord Tests ==============

func TestRecordReversible(t *testing.T) {
	assert.True(t, OperationRecord{Kind: KindDelete, Undo: UndoPayload{TrashPath: "/t/x"}}.Reversible())
	assert.False(t, OperationRecord{Kind: KindDelete, Undo: UndoPayload{Permanent: true}}.Reversible())
	assert.True(t, OperationRecord{Kind: KindMove}.Reversible())
}

func TestRecordPaths(t *testing.T) {
	tests := []struct {
		name    string
		rec     OperationRecord
		added   []string
		removed []string
	}{
		{"copy", OperationRecord{Kind: KindCopy, Source: "/a", Dest: "/b"}, []string{"/b"}, nil},
		{"move", OperationRecord{Kind: KindMove, Source: "/a", Dest: "/b"}, []string{"/b"}, []string{"/a"}},
		{"rename", OperationRecord{Kind: KindRename, Source: "/d/a", Dest: "/d/b"}, []string{"/d/b"}, []string{"/d/a"}},
		{"delete", OperationRecord{Kind: KindDelete, Source: "/a"}, nil, []string{"/a"}},
		{"mkdir", OperationRecord{Kind: KindCreateDirectory, Source: "/x/y", Undo: UndoPayload{CreatedDirs: []string{"/x", "/x/y"}}}, []string{"/x", "/x/y"}, nil},
		{"mkdir preexisting", OperationRecord{Kind: KindCreateDirectory, Source: "/x", Undo: UndoPayload{Preexisting: true}}, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.added, tt.rec.PathsAdded())
			assert.Equal(t, tt.removed, tt.rec.PathsRemoved())
		})
	}
}

// ============== Duplicate Tests ==============

func TestDuplicateGroup(t *testing.T) {
	g := &DuplicateGroup{
		Signature: ContentSignature{Size: 100},
		Members:   []FileEntry{{Path: "/a"}, {Path: "/b"}, {Path: "/c"}},
	}

	assert.Equal(t, []string{"/a", "/b", "/c"}, g.Paths())
	assert.Equal(t, int64(200), g.Reclaimable())

	m, ok := g.Member("/b")
	assert.True(t, ok)
	assert.Equal(t, "/b", m.Path)
	_, ok = g.Member("/z")
	assert.False(t, ok)

	single := &DuplicateGroup{Signature: ContentSignature{Size: 100}, Members: []FileEntry{{Path: "/a"}}}
	assert.Zero(t, single.Reclaimable())
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("oldest")
	require.NoError(t, err)
	assert.Equal(t, StrategyOldest, s)

	_, err = ParseStrategy("biggest")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

// ============== Error Tests ==============

func TestOperationError(t *testing.T) {
	err := NewOperationError(KindCopy, "/a", ErrPermissionDenied, fs.ErrPermission)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.ErrorIs(t, err, fs.ErrPermission)
	assert.Equal(t, "copy /a: permission denied: permission denied", err.Error())

	bare := NewOperationError(KindDelete, "/b", ErrPathNotFound, nil)
	assert.Equal(t, "delete /b: path not found", bare.Error())
}

func TestConflictError(t *testing.T) {
	err := error(&ConflictError{Conflict: &Conflict{Kind: KindMove, Source: "/a", Dest: "/b"}})
	assert.ErrorIs(t, err, ErrDestinationExists)
	assert.False(t, errors.Is(err, ErrAlreadyExists))
	assert.Contains(t, err.Error(), "/b")
}

func TestHistoryError(t *testing.T) {
	undo := &HistoryError{Op: "undo", Record: OperationRecord{Kind: KindMove, Source: "/a"}, Err: ErrUndoTargetOccupied}
	assert.ErrorIs(t, undo, ErrUndoFailed)
	assert.ErrorIs(t, undo, ErrUndoTargetOccupied)
	assert.False(t, errors.Is(undo, ErrRedoFailed))

	redo := &HistoryError{Op: "redo", Err: ErrDestinationExists}
	assert.ErrorIs(t, redo, ErrRedoFailed)
}

// ============== Entry Tests ==============

func TestEntryFromInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0644))
	info, err := os.Stat(path)
	require.NoError(t, err)

	entry := EntryFromInfo(path, info)
	assert.Equal(t, path, entry.Path)
	assert.Equal(t, int64(3), entry.Size)
	assert.False(t, entry.IsDir)
	assert.Equal(t, info.ModTime(), entry.ModTime)
}

// ============== Report Tests ==============

func TestStatusExitCode(t *testing.T) {
	assert.Equal(t, 0, StatusSuccess.ExitCode())
	assert.Equal(t, 1, StatusPartial.ExitCode())
	assert.Equal(t, 2, StatusFailed.ExitCode())
	assert.Equal(t, 3, StatusCancelled.ExitCode())
	assert.Equal(t, 2, Status("odd").ExitCode())
}

func TestReportStatus(t *testing.T) {
	scan := &ScanReport{}
	assert.Equal(t, StatusSuccess, scan.Status())
	scan.Errors = []TaskError{{Path: "/x"}}
	assert.Equal(t, StatusPartial, scan.Status())
	scan.Incomplete = true
	assert.Equal(t, StatusCancelled, scan.Status())

	bulk := &BulkReport{Errors: []TaskError{{Path: "/x"}}}
	assert.Equal(t, StatusFailed, bulk.Status())
	bulk.Records = []OperationRecord{{ID: "1"}}
	assert.Equal(t, StatusPartial, bulk.Status())
	bulk.Incomplete = true
	assert.Equal(t, StatusCancelled, bulk.Status())

	dry := &BulkReport{DryRun: true, Errors: []TaskError{{Path: "/x"}}}
	assert.Equal(t, StatusPartial, dry.Status())
}
