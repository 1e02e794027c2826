package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdejongh/tfm/pkg/events"
	"github.com/sdejongh/tfm/pkg/models"
)

func newTestEngine(t *testing.T, mutate func(*Options)) (*Engine, string) {
	t.Helper()
	root := t.TempDir()
	opts := Options{
		HistoryPath: filepath.Join(root, "state", "history.json"),
		TrashDir:    filepath.Join(root, ".trash"),
		PartialSize: 16,
		ScanWorkers: 2,
	}
	if mutate != nil {
		mutate(&opts)
	}

	e, err := New(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	work := filepath.Join(root, "work")
	require.NoError(t, os.Mkdir(work, 0755))
	return e, work
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Notify(_ context.Context, ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func TestNew_RequiresPaths(t *testing.T) {
	_, err := New(context.Background(), Options{TrashDir: t.TempDir()})
	var ve *models.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "HistoryPath", ve.Field)

	_, err = New(context.Background(), Options{HistoryPath: filepath.Join(t.TempDir(), "h.json")})
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "TrashDir", ve.Field)
}

func TestSubmit_UndoRedoRoundTrip(t *testing.T) {
	ctx := context.Background()
	e, work := newTestEngine(t, nil)

	src := filepath.Join(work, "a.txt")
	dst := filepath.Join(work, "b.txt")
	writeFile(t, src, "hello")

	rec, err := e.Submit(ctx, models.OperationRequest{Kind: models.KindMove, Source: src, Dest: dst})
	require.NoError(t, err)
	assert.Equal(t, models.KindMove, rec.Kind)
	assert.NoFileExists(t, src)
	assert.Equal(t, "hello", readFile(t, dst))

	records, cursor := e.History()
	require.Len(t, records, 1)
	assert.Equal(t, 1, cursor)

	undone, err := e.UndoLast(ctx)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, undone.ID)
	assert.Equal(t, "hello", readFile(t, src))
	assert.NoFileExists(t, dst)

	_, err = e.UndoLast(ctx)
	assert.ErrorIs(t, err, models.ErrNothingToUndo)

	_, err = e.RedoLast(ctx)
	require.NoError(t, err)
	assert.NoFileExists(t, src)
	assert.Equal(t, "hello", readFile(t, dst))

	_, err = e.RedoLast(ctx)
	assert.ErrorIs(t, err, models.ErrNothingToRedo)
}

func TestSubmit_InvalidRequest(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	_, err := e.Submit(context.Background(), models.OperationRequest{Kind: "chmod", Source: "/x"})
	var ve *models.ValidationError
	assert.True(t, errors.As(err, &ve))

	records, _ := e.History()
	assert.Empty(t, records)
}

func TestSubmit_ConflictReturnedToCaller(t *testing.T) {
	ctx := context.Background()
	e, work := newTestEngine(t, nil)

	src := filepath.Join(work, "src.txt")
	dst := filepath.Join(work, "dst.txt")
	writeFile(t, src, "new")
	writeFile(t, dst, "old")

	for _, policy := range []models.ConflictResolution{"", models.ConflictFail, models.ConflictSkip} {
		_, err := e.Submit(ctx, models.OperationRequest{Kind: models.KindCopy, Source: src, Dest: dst, OnConflict: policy})

		var conflict *models.ConflictError
		require.True(t, errors.As(err, &conflict), "policy %q", policy)
		assert.ErrorIs(t, err, models.ErrDestinationExists)
		assert.Equal(t, dst, conflict.Conflict.Dest)
		assert.Equal(t, int64(3), conflict.Conflict.Existing.Size)
	}

	assert.Equal(t, "old", readFile(t, dst))
	records, _ := e.History()
	assert.Empty(t, records)
}

func TestSubmit_OverwriteProducesTwoRecords(t *testing.T) {
	ctx := context.Background()
	e, work := newTestEngine(t, nil)

	src := filepath.Join(work, "src.txt")
	dst := filepath.Join(work, "dst.txt")
	writeFile(t, src, "new")
	writeFile(t, dst, "old")

	rec, err := e.Submit(ctx, models.OperationRequest{Kind: models.KindCopy, Source: src, Dest: dst, Overwrite: true})
	require.NoError(t, err)
	assert.Equal(t, models.KindCopy, rec.Kind)
	assert.Equal(t, "new", readFile(t, dst))

	records, cursor := e.History()
	require.Len(t, records, 2)
	assert.Equal(t, 2, cursor)
	assert.Equal(t, models.KindDelete, records[0].Kind)
	assert.Equal(t, dst, records[0].Source)
	assert.Equal(t, models.KindCopy, records[1].Kind)

	// first undo removes the copy, second restores the replaced file
	_, err = e.UndoLast(ctx)
	require.NoError(t, err)
	assert.NoFileExists(t, dst)

	_, err = e.UndoLast(ctx)
	require.NoError(t, err)
	assert.Equal(t, "old", readFile(t, dst))
	assert.Equal(t, "new", readFile(t, src))
}

func TestSubmit_OverwriteViaPolicy(t *testing.T) {
	ctx := context.Background()
	e, work := newTestEngine(t, nil)

	src := filepath.Join(work, "src.txt")
	writeFile(t, src, "x")
	writeFile(t, filepath.Join(work, "taken.txt"), "y")

	_, err := e.Submit(ctx, models.OperationRequest{
		Kind:       models.KindRename,
		Source:     src,
		NewName:    "taken.txt",
		OnConflict: models.ConflictOverwrite,
	})
	require.NoError(t, err)
	assert.Equal(t, "x", readFile(t, filepath.Join(work, "taken.txt")))

	records, _ := e.History()
	assert.Len(t, records, 2)
}

func TestSubmit_KeepBoth(t *testing.T) {
	ctx := context.Background()
	e, work := newTestEngine(t, nil)

	src := filepath.Join(work, "in", "report.pdf")
	dst := filepath.Join(work, "report.pdf")
	writeFile(t, src, "second")
	writeFile(t, dst, "first")

	rec, err := e.Submit(ctx, models.OperationRequest{Kind: models.KindMove, Source: src, Dest: dst, OnConflict: models.ConflictKeepBoth})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(work, "report_1.pdf"), rec.Dest)
	assert.Equal(t, "first", readFile(t, dst))
	assert.Equal(t, "second", readFile(t, rec.Dest))
}

func TestSubmit_RedoTailInvalidated(t *testing.T) {
	ctx := context.Background()
	e, work := newTestEngine(t, nil)

	writeFile(t, filepath.Join(work, "a"), "a")
	writeFile(t, filepath.Join(work, "b"), "b")

	_, err := e.Submit(ctx, models.OperationRequest{Kind: models.KindDelete, Source: filepath.Join(work, "a")})
	require.NoError(t, err)
	_, err = e.UndoLast(ctx)
	require.NoError(t, err)

	_, err = e.Submit(ctx, models.OperationRequest{Kind: models.KindDelete, Source: filepath.Join(work, "b")})
	require.NoError(t, err)

	_, err = e.RedoLast(ctx)
	assert.ErrorIs(t, err, models.ErrNothingToRedo)
	assert.FileExists(t, filepath.Join(work, "a"))
}

func TestSubmit_CreateDirectoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	e, work := newTestEngine(t, nil)

	dir := filepath.Join(work, "x", "y")
	rec, err := e.Submit(ctx, models.OperationRequest{Kind: models.KindCreateDirectory, Source: dir})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(work, "x"), dir}, rec.Undo.CreatedDirs)

	_, err = e.UndoLast(ctx)
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(work, "x"))

	_, err = e.RedoLast(ctx)
	require.NoError(t, err)
	assert.DirExists(t, dir)
}

func TestSubmit_FailedUndoKeepsCursor(t *testing.T) {
	ctx := context.Background()
	e, work := newTestEngine(t, nil)

	src := filepath.Join(work, "a")
	dst := filepath.Join(work, "b")
	writeFile(t, src, "1")

	_, err := e.Submit(ctx, models.OperationRequest{Kind: models.KindMove, Source: src, Dest: dst})
	require.NoError(t, err)

	// something else now lives at the original path
	writeFile(t, src, "intruder")

	_, err = e.UndoLast(ctx)
	assert.ErrorIs(t, err, models.ErrUndoFailed)
	assert.ErrorIs(t, err, models.ErrUndoTargetOccupied)

	_, cursor := e.History()
	assert.Equal(t, 1, cursor)
	assert.Equal(t, "intruder", readFile(t, src))
	assert.Equal(t, "1", readFile(t, dst))
}

func TestEvents(t *testing.T) {
	ctx := context.Background()
	e, work := newTestEngine(t, nil)

	rec := &recorder{}
	unsubscribe := e.Subscribe(rec)

	src := filepath.Join(work, "a")
	dst := filepath.Join(work, "b")
	writeFile(t, src, "1")

	_, err := e.Submit(ctx, models.OperationRequest{Kind: models.KindCopy, Source: src, Dest: dst})
	require.NoError(t, err)
	_, err = e.UndoLast(ctx)
	require.NoError(t, err)
	_, err = e.RedoLast(ctx)
	require.NoError(t, err)

	assert.Equal(t, []events.Type{events.Committed, events.Undone, events.Redone}, rec.types())
	assert.Equal(t, []string{dst}, rec.events[0].PathsAdded)
	assert.Equal(t, []string{dst}, rec.events[1].PathsRemoved)
	assert.Empty(t, rec.events[1].PathsAdded)

	unsubscribe()
	_, err = e.UndoLast(ctx)
	require.NoError(t, err)
	assert.Len(t, rec.types(), 3)
}

func TestEvents_FailedSubmitPublishesNothing(t *testing.T) {
	e, work := newTestEngine(t, nil)
	rec := &recorder{}
	e.Subscribe(rec)

	_, err := e.Submit(context.Background(), models.OperationRequest{Kind: models.KindDelete, Source: filepath.Join(work, "missing")})
	assert.ErrorIs(t, err, models.ErrPathNotFound)
	assert.Empty(t, rec.types())
}

func TestHistory_PersistsAcrossEngines(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	opts := Options{
		HistoryPath: filepath.Join(root, "history.json"),
		TrashDir:    filepath.Join(root, ".trash"),
	}

	first, err := New(ctx, opts)
	require.NoError(t, err)

	file := filepath.Join(root, "f.txt")
	writeFile(t, file, "data")
	_, err = first.Submit(ctx, models.OperationRequest{Kind: models.KindDelete, Source: file})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := New(ctx, opts)
	require.NoError(t, err)
	defer second.Close()

	_, err = second.UndoLast(ctx)
	require.NoError(t, err)
	assert.Equal(t, "data", readFile(t, file))
}

func TestHistory_CorruptedFileRecovered(t *testing.T) {
	root := t.TempDir()
	historyPath := filepath.Join(root, "history.json")
	require.NoError(t, os.WriteFile(historyPath, []byte("{not json"), 0644))

	e, err := New(context.Background(), Options{HistoryPath: historyPath, TrashDir: filepath.Join(root, ".trash")})
	require.NoError(t, err)
	defer e.Close()

	records, cursor := e.History()
	assert.Empty(t, records)
	assert.Zero(t, cursor)

	matches, err := filepath.Glob(historyPath + ".corrupt-*")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestHistory_LimitPurgesEvictedTrash(t *testing.T) {
	ctx := context.Background()
	e, work := newTestEngine(t, func(o *Options) { o.HistoryLimit = 1 })

	writeFile(t, filepath.Join(work, "a"), "a")
	writeFile(t, filepath.Join(work, "b"), "b")

	_, err := e.Submit(ctx, models.OperationRequest{Kind: models.KindDelete, Source: filepath.Join(work, "a")})
	require.NoError(t, err)
	_, err = e.Submit(ctx, models.OperationRequest{Kind: models.KindDelete, Source: filepath.Join(work, "b")})
	require.NoError(t, err)

	records, _ := e.History()
	require.Len(t, records, 1)
	assert.Equal(t, filepath.Join(work, "b"), records[0].Source)

	items, err := e.Trash()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].Name)
	assert.Equal(t, filepath.Join(work, "b"), items[0].Original)
	assert.Equal(t, records[0].ID, items[0].RecordID)
}

func TestTrash_ListsDeletedEntries(t *testing.T) {
	ctx := context.Background()
	e, work := newTestEngine(t, nil)

	file := filepath.Join(work, "notes.txt")
	writeFile(t, file, "content")

	rec, err := e.Submit(ctx, models.OperationRequest{Kind: models.KindDelete, Source: file})
	require.NoError(t, err)

	items, err := e.Trash()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "notes.txt", items[0].Name)
	assert.Equal(t, rec.Undo.TrashPath, items[0].Path)
	assert.Equal(t, file, items[0].Original)

	_, err = e.UndoLast(ctx)
	require.NoError(t, err)
	items, err = e.Trash()
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestSubmit_ConcurrentRequestsAreSerialized(t *testing.T) {
	ctx := context.Background()
	e, work := newTestEngine(t, nil)

	const n = 20
	for i := 0; i < n; i++ {
		writeFile(t, filepath.Join(work, "f", string(rune('a'+i))), "x")
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.Submit(ctx, models.OperationRequest{Kind: models.KindDelete, Source: filepath.Join(work, "f", string(rune('a'+i)))})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	records, cursor := e.History()
	assert.Len(t, records, n)
	assert.Equal(t, n, cursor)

	for i := 0; i < n; i++ {
		_, err := e.UndoLast(ctx)
		require.NoError(t, err)
	}
	entries, err := os.ReadDir(filepath.Join(work, "f"))
	require.NoError(t, err)
	assert.Len(t, entries, n)
}
