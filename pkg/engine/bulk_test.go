package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdejongh/tfm/pkg/models"
	"github.com/sdejongh/tfm/pkg/tasks"
)

// awaiter returns a helper that waits for a started bulk task and fails
// the test on any error
func awaiter(t *testing.T) func(*tasks.Handle[*models.BulkReport], error) *models.BulkReport {
	return func(h *tasks.Handle[*models.BulkReport], err error) *models.BulkReport {
		t.Helper()
		require.NoError(t, err)
		res := h.Await(context.Background())
		require.NoError(t, res.Err)
		require.NotNil(t, res.Value)
		return res.Value
	}
}

func undoAll(t *testing.T, e *Engine) {
	t.Helper()
	for {
		_, err := e.UndoLast(context.Background())
		if errors.Is(err, models.ErrNothingToUndo) {
			return
		}
		require.NoError(t, err)
	}
}

func TestBatchRename(t *testing.T) {
	ctx := context.Background()
	await := awaiter(t)
	e, work := newTestEngine(t, nil)

	writeFile(t, filepath.Join(work, "IMG_001.jpg"), "1")
	writeFile(t, filepath.Join(work, "IMG_002.jpg"), "2")
	writeFile(t, filepath.Join(work, "notes.txt"), "n")
	writeFile(t, filepath.Join(work, "sub", "IMG_003.jpg"), "3")

	report := await(e.BatchRename(ctx, BatchRenameRequest{Dir: work, Pattern: "IMG_", Replacement: "photo-"}))
	assert.Len(t, report.Records, 2)
	assert.Equal(t, models.StatusSuccess, report.Status())
	assert.FileExists(t, filepath.Join(work, "photo-001.jpg"))
	assert.FileExists(t, filepath.Join(work, "photo-002.jpg"))
	assert.FileExists(t, filepath.Join(work, "sub", "IMG_003.jpg"))

	undoAll(t, e)
	assert.FileExists(t, filepath.Join(work, "IMG_001.jpg"))
	assert.FileExists(t, filepath.Join(work, "IMG_002.jpg"))
}

func TestBatchRename_Recursive(t *testing.T) {
	ctx := context.Background()
	await := awaiter(t)
	e, work := newTestEngine(t, nil)

	writeFile(t, filepath.Join(work, "a_old.txt"), "1")
	writeFile(t, filepath.Join(work, "sub", "b_old.txt"), "2")

	report := await(e.BatchRename(ctx, BatchRenameRequest{Dir: work, Pattern: "_old", Replacement: "", Recursive: true}))
	assert.Len(t, report.Records, 2)
	assert.FileExists(t, filepath.Join(work, "a.txt"))
	assert.FileExists(t, filepath.Join(work, "sub", "b.txt"))
}

func TestBatchRename_SkipsInvalidAndColliding(t *testing.T) {
	ctx := context.Background()
	await := awaiter(t)
	e, work := newTestEngine(t, nil)

	writeFile(t, filepath.Join(work, "x-a"), "1")
	writeFile(t, filepath.Join(work, "y-a"), "2")
	writeFile(t, filepath.Join(work, "y-b"), "taken")

	// "x-a" -> "x-b" is fine, "y-a" -> "y-b" collides
	report := await(e.BatchRename(ctx, BatchRenameRequest{Dir: work, Pattern: "-a", Replacement: "-b"}))
	assert.Len(t, report.Records, 1)
	assert.Equal(t, []string{filepath.Join(work, "y-a")}, report.Skipped)
	assert.Equal(t, "taken", readFile(t, filepath.Join(work, "y-b")))

	report = await(e.BatchRename(ctx, BatchRenameRequest{Dir: work, Pattern: "-b", Replacement: "/"}))
	assert.Empty(t, report.Records)
	assert.Len(t, report.Skipped, 2)
}

func TestBatchRename_DryRun(t *testing.T) {
	ctx := context.Background()
	await := awaiter(t)
	e, work := newTestEngine(t, nil)

	writeFile(t, filepath.Join(work, "draft1.md"), "1")
	writeFile(t, filepath.Join(work, "draft2.md"), "2")

	report := await(e.BatchRename(ctx, BatchRenameRequest{Dir: work, Pattern: "draft", Replacement: "final", DryRun: true}))
	assert.True(t, report.DryRun)
	assert.Len(t, report.Planned, 2)
	assert.Empty(t, report.Records)
	assert.FileExists(t, filepath.Join(work, "draft1.md"))

	records, _ := e.History()
	assert.Empty(t, records)
}

func TestBatchRename_EmptyPattern(t *testing.T) {
	e, work := newTestEngine(t, nil)
	_, err := e.BatchRename(context.Background(), BatchRenameRequest{Dir: work})
	var ve *models.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestOrganizeByType_Move(t *testing.T) {
	ctx := context.Background()
	await := awaiter(t)
	e, work := newTestEngine(t, nil)

	writeFile(t, filepath.Join(work, "photo.JPG"), "img")
	writeFile(t, filepath.Join(work, "song.mp3"), "audio")
	writeFile(t, filepath.Join(work, "mystery.xyz"), "?")
	writeFile(t, filepath.Join(work, "images", "photo.JPG"), "existing")

	report := await(e.OrganizeByType(ctx, OrganizeRequest{Dir: work, Move: true}))
	assert.Equal(t, models.StatusSuccess, report.Status())
	assert.Equal(t, []string{filepath.Join(work, "mystery.xyz")}, report.Skipped)

	assert.Equal(t, "existing", readFile(t, filepath.Join(work, "images", "photo.JPG")))
	assert.Equal(t, "img", readFile(t, filepath.Join(work, "images", "photo_1.JPG")))
	assert.Equal(t, "audio", readFile(t, filepath.Join(work, "audio", "song.mp3")))
	assert.NoFileExists(t, filepath.Join(work, "song.mp3"))

	// images existed, audio had to be created
	kinds := make(map[models.OperationKind]int)
	for _, rec := range report.Records {
		kinds[rec.Kind]++
	}
	assert.Equal(t, 1, kinds[models.KindCreateDirectory])
	assert.Equal(t, 2, kinds[models.KindMove])

	undoAll(t, e)
	assert.Equal(t, "img", readFile(t, filepath.Join(work, "photo.JPG")))
	assert.Equal(t, "audio", readFile(t, filepath.Join(work, "song.mp3")))
	assert.NoDirExists(t, filepath.Join(work, "audio"))
}

func TestOrganizeByType_CopyToTarget(t *testing.T) {
	ctx := context.Background()
	await := awaiter(t)
	e, work := newTestEngine(t, func(o *Options) {
		o.Categories = map[string][]string{"text": {".txt"}}
	})

	writeFile(t, filepath.Join(work, "a.txt"), "a")
	target := filepath.Join(work, "..", "sorted")

	report := await(e.OrganizeByType(ctx, OrganizeRequest{Dir: work, Target: target}))
	assert.Len(t, report.Records, 2)
	assert.Equal(t, "a", readFile(t, filepath.Join(work, "a.txt")))
	assert.Equal(t, "a", readFile(t, filepath.Join(target, "text", "a.txt")))
}

func TestOrganizeByType_DryRunPlansUniqueNames(t *testing.T) {
	ctx := context.Background()
	await := awaiter(t)
	e, work := newTestEngine(t, nil)

	writeFile(t, filepath.Join(work, "a.png"), "1")
	writeFile(t, filepath.Join(work, "b.png"), "2")

	report := await(e.OrganizeByType(ctx, OrganizeRequest{Dir: work, DryRun: true}))
	require.Len(t, report.Planned, 3)
	assert.Equal(t, models.KindCreateDirectory, report.Planned[0].Kind)
	assert.Equal(t, filepath.Join(work, "images"), report.Planned[0].Source)
	assert.Equal(t, filepath.Join(work, "images", "a.png"), report.Planned[1].Dest)
	assert.NoDirExists(t, filepath.Join(work, "images"))
}

func TestOrganizeByDate(t *testing.T) {
	ctx := context.Background()
	await := awaiter(t)
	e, work := newTestEngine(t, nil)

	stamp := time.Date(2023, time.March, 14, 12, 0, 0, 0, time.Local)
	path := filepath.Join(work, "scan.pdf")
	writeFile(t, path, "pdf")
	require.NoError(t, os.Chtimes(path, stamp, stamp))

	report := await(e.OrganizeByDate(ctx, OrganizeRequest{Dir: work, Move: true}))
	assert.Empty(t, report.Errors)
	assert.Equal(t, "pdf", readFile(t, filepath.Join(work, "2023", "03", "scan.pdf")))

	// folders escaping the target are refused
	writeFile(t, filepath.Join(work, "other.pdf"), "pdf")
	report = await(e.OrganizeByDate(ctx, OrganizeRequest{Dir: work, DateLayout: "../2006", DryRun: true}))
	assert.Empty(t, report.Planned)
	assert.Equal(t, []string{filepath.Join(work, "other.pdf")}, report.Skipped)
}

func TestCleanupOlderThan(t *testing.T) {
	ctx := context.Background()
	await := awaiter(t)
	e, work := newTestEngine(t, nil)

	writeAged(t, filepath.Join(work, "old.log"), "old", 40*24*time.Hour)
	writeAged(t, filepath.Join(work, "nested", "older.log"), "older", 90*24*time.Hour)
	writeAged(t, filepath.Join(work, "fresh.log"), "fresh", time.Hour)

	report := await(e.CleanupOlderThan(ctx, CleanupRequest{Dir: work, OlderThan: 30 * 24 * time.Hour}))
	assert.Len(t, report.Records, 1)
	assert.NoFileExists(t, filepath.Join(work, "old.log"))
	assert.FileExists(t, filepath.Join(work, "nested", "older.log"))
	assert.FileExists(t, filepath.Join(work, "fresh.log"))

	report = await(e.CleanupOlderThan(ctx, CleanupRequest{Dir: work, OlderThan: 30 * 24 * time.Hour, Recursive: true}))
	assert.Len(t, report.Records, 1)
	assert.NoFileExists(t, filepath.Join(work, "nested", "older.log"))

	items, err := e.Trash()
	require.NoError(t, err)
	assert.Len(t, items, 2)

	undoAll(t, e)
	assert.Equal(t, "old", readFile(t, filepath.Join(work, "old.log")))
	assert.Equal(t, "older", readFile(t, filepath.Join(work, "nested", "older.log")))
}

func TestCleanupOlderThan_Validation(t *testing.T) {
	e, work := newTestEngine(t, nil)
	_, err := e.CleanupOlderThan(context.Background(), CleanupRequest{Dir: work})
	var ve *models.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestBulk_MissingDirectoryFails(t *testing.T) {
	e, work := newTestEngine(t, nil)
	h, err := e.CleanupOlderThan(context.Background(), CleanupRequest{Dir: filepath.Join(work, "nope"), OlderThan: time.Hour})
	require.NoError(t, err)

	res := h.Await(context.Background())
	assert.ErrorIs(t, res.Err, models.ErrPathNotFound)
}

func TestBulk_CancelledKeepsCommittedRecords(t *testing.T) {
	e, work := newTestEngine(t, nil)
	for _, name := range []string{"a", "b", "c", "d"} {
		writeAged(t, filepath.Join(work, name), name, 48*time.Hour)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// cancel once the second file is being processed
	h, err := e.CleanupOlderThan(ctx, CleanupRequest{Dir: work, OlderThan: time.Hour}, tasks.WithProgress(func(p tasks.Progress) {
		if p.Done == 2 {
			cancel()
		}
	}))
	require.NoError(t, err)

	res := h.Await(context.Background())
	require.NoError(t, res.Err)
	assert.True(t, res.Incomplete)
	require.NotNil(t, res.Value)
	assert.True(t, res.Value.Incomplete)
	assert.Len(t, res.Value.Records, 2)

	records, _ := e.History()
	assert.Len(t, records, 2)

	undoAll(t, e)
	for _, name := range []string{"a", "b", "c", "d"} {
		assert.FileExists(t, filepath.Join(work, name))
	}
}
