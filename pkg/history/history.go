// Package history keeps the persisted undo/redo stack of operation records.
package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sdejongh/tfm/pkg/logging"
	"github.com/sdejongh/tfm/pkg/models"
)

// Inverter undoes and redoes records. The executor implements it.
type Inverter interface {
	Undo(ctx context.Context, rec models.OperationRecord) error
	Redo(ctx context.Context, rec models.OperationRecord) error
}

// Options configures a History
type Options struct {
	// Path is the history document; the lock lives at Path + ".lock"
	Path string

	// Limit caps the number of records kept (0 = unbounded)
	Limit int

	// OnEvict receives records dropped by the limit, oldest first
	OnEvict func(models.OperationRecord)

	// LockTimeout bounds the wait for the cross-process lock
	LockTimeout time.Duration

	Logger logging.Logger
}

// History is an ordered list of records with a cursor. Records before the
// cursor are executed; records after it were undone and can be redone.
// Every mutating call reloads the document under the file lock, applies
// the change and saves it before returning.
type History struct {
	mu       sync.Mutex
	store    *fileStore
	lock     *fileLock
	inverter Inverter
	limit    int
	onEvict  func(models.OperationRecord)
	logger   logging.Logger
	now      func() time.Time

	records   []models.OperationRecord
	cursor    int
	recovered string
}

// Open loads the history at opts.Path. A corrupted document is moved
// aside and replaced by an empty history; see Recovered.
func Open(ctx context.Context, opts Options, inverter Inverter) (*History, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("history path is required")
	}
	if opts.Limit < 0 {
		return nil, &models.ValidationError{Field: "Limit", Message: "must be >= 0"}
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	h := &History{
		store:    &fileStore{path: opts.Path},
		lock:     newFileLock(opts.Path+".lock", opts.LockTimeout),
		inverter: inverter,
		limit:    opts.Limit,
		onEvict:  opts.OnEvict,
		logger:   logging.OrNull(opts.Logger),
		now:      time.Now,
	}

	var evicted []models.OperationRecord
	err := h.update(ctx, func(doc *document) (bool, error) {
		// a limit lowered since the last run applies on open
		evicted = h.enforceLimit(doc)
		return evicted != nil, nil
	})
	if err != nil {
		return nil, err
	}
	h.evict(evicted)
	return h, nil
}

// Record appends rec after the cursor, discarding any redoable records,
// and returns the record's index
func (h *History) Record(ctx context.Context, rec models.OperationRecord) (int, error) {
	_, index, err := h.Commit(ctx, func(context.Context) (models.OperationRecord, error) {
		return rec, nil
	})
	return index, err
}

// Commit runs exec and appends the record it returns while holding the
// file lock, so another process cannot touch the history or the trash
// between the mutation and its record. Nothing is recorded when exec
// fails. A record returned together with an error was executed but not
// saved.
func (h *History) Commit(ctx context.Context, exec func(ctx context.Context) (models.OperationRecord, error)) (models.OperationRecord, int, error) {
	var (
		rec     models.OperationRecord
		index   int
		evicted []models.OperationRecord
	)
	err := h.update(ctx, func(doc *document) (bool, error) {
		executed, err := exec(ctx)
		if err != nil {
			return false, err
		}
		rec = executed
		if discarded := len(doc.Records) - doc.Cursor; discarded > 0 {
			h.logger.Debug(ctx, "redo tail discarded", logging.Fields{"records": discarded})
		}
		doc.Records = append(doc.Records[:doc.Cursor], rec)
		doc.Cursor = len(doc.Records)
		evicted = h.enforceLimit(doc)
		index = doc.Cursor - 1
		return true, nil
	})
	if err != nil {
		return rec, -1, err
	}
	h.evict(evicted)
	return rec, index, nil
}

// Undo inverts the record before the cursor. The cursor only moves when
// the inversion succeeds.
func (h *History) Undo(ctx context.Context) (models.OperationRecord, error) {
	var rec models.OperationRecord
	err := h.update(ctx, func(doc *document) (bool, error) {
		if doc.Cursor == 0 {
			return false, models.ErrNothingToUndo
		}
		rec = doc.Records[doc.Cursor-1]
		if err := h.inverter.Undo(ctx, rec); err != nil {
			return false, &models.HistoryError{Op: "undo", Record: rec, Err: err}
		}
		doc.Cursor--
		return true, nil
	})
	if err != nil {
		return models.OperationRecord{}, err
	}
	return rec, nil
}

// Redo re-applies the record after the cursor
func (h *History) Redo(ctx context.Context) (models.OperationRecord, error) {
	var rec models.OperationRecord
	err := h.update(ctx, func(doc *document) (bool, error) {
		if doc.Cursor == len(doc.Records) {
			return false, models.ErrNothingToRedo
		}
		rec = doc.Records[doc.Cursor]
		if err := h.inverter.Redo(ctx, rec); err != nil {
			return false, &models.HistoryError{Op: "redo", Record: rec, Err: err}
		}
		doc.Cursor++
		return true, nil
	})
	if err != nil {
		return models.OperationRecord{}, err
	}
	return rec, nil
}

// Records returns a copy of all records, oldest first
func (h *History) Records() []models.OperationRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.refresh()
	out := make([]models.OperationRecord, len(h.records))
	copy(out, h.records)
	return out
}

// Cursor returns the number of executed records
func (h *History) Cursor() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.refresh()
	return h.cursor
}

// Recovered returns where a corrupted history file was preserved, or ""
func (h *History) Recovered() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.recovered
}

// Path returns the history document path
func (h *History) Path() string {
	return h.store.path
}

// refresh picks up changes made by other processes. Must be called with
// mu held. Errors keep the cached state.
func (h *History) refresh() {
	doc, err := h.store.load()
	if err != nil {
		return
	}
	h.records = doc.Records
	h.cursor = doc.Cursor
}

// update runs fn on a freshly loaded document while holding both locks.
// The document is saved when fn reports a change.
func (h *History) update(ctx context.Context, fn func(doc *document) (bool, error)) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.lock.Lock(ctx); err != nil {
		return err
	}
	defer h.lock.Unlock()

	doc, err := h.loadOrRecover(ctx)
	if err != nil {
		return err
	}

	changed, err := fn(doc)
	if err != nil {
		return err
	}
	if changed {
		if err := h.store.save(doc); err != nil {
			h.logger.Error(ctx, "failed to save history", err, logging.Fields{"path": h.store.path})
			return err
		}
	}

	h.records = doc.Records
	h.cursor = doc.Cursor
	return nil
}

// evict hands dropped records to the callback, outside the locks
func (h *History) evict(records []models.OperationRecord) {
	if h.onEvict == nil {
		return
	}
	for _, rec := range records {
		h.onEvict(rec)
	}
}

// loadOrRecover loads the document; a corrupted file is preserved aside
// and replaced by an empty history
func (h *History) loadOrRecover(ctx context.Context) (*document, error) {
	doc, err := h.store.load()
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, models.ErrHistoryCorrupted) {
		return nil, err
	}

	backup, perr := h.store.preserveCorrupt(h.now())
	if perr != nil {
		return nil, perr
	}
	h.recovered = backup
	h.logger.Warn(ctx, "history file corrupted, starting with an empty history", logging.Fields{
		"path":   h.store.path,
		"backup": backup,
		"reason": err.Error(),
	})

	doc = newDocument()
	if err := h.store.save(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// enforceLimit drops the oldest records beyond the limit and returns them
func (h *History) enforceLimit(doc *document) []models.OperationRecord {
	if h.limit == 0 || len(doc.Records) <= h.limit {
		return nil
	}
	n := len(doc.Records) - h.limit
	evicted := append([]models.OperationRecord(nil), doc.Records[:n]...)
	doc.Records = append([]models.OperationRecord(nil), doc.Records[n:]...)
	doc.Cursor -= n
	if doc.Cursor < 0 {
		doc.Cursor = 0
	}
	return evicted
}
