// Package engine ties the executor, the history, the duplicate scanner and
// the task runner together behind one API.
package engine

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sdejongh/tfm/pkg/config"
	"github.com/sdejongh/tfm/pkg/dedupe"
	"github.com/sdejongh/tfm/pkg/digest"
	"github.com/sdejongh/tfm/pkg/events"
	"github.com/sdejongh/tfm/pkg/history"
	"github.com/sdejongh/tfm/pkg/logging"
	"github.com/sdejongh/tfm/pkg/models"
	"github.com/sdejongh/tfm/pkg/ops"
	"github.com/sdejongh/tfm/pkg/ratelimit"
	"github.com/sdejongh/tfm/pkg/tasks"
	"github.com/sdejongh/tfm/pkg/trash"
)

// Options configures an Engine
type Options struct {
	// HistoryPath is the persisted history document (required)
	HistoryPath string

	// TrashDir is the quarantine directory (required). It must be on the
	// same volume as the files being deleted for deletes to be reversible.
	TrashDir string

	// HistoryLimit caps the number of records kept (0 = unbounded)
	HistoryLimit int

	LockTimeout time.Duration

	StrictMkdir    bool
	AllowPermanent bool

	// BandwidthLimit caps copy and hashing throughput in bytes per second
	BandwidthLimit int64
	BufferSize     int

	Algorithm   digest.Algorithm
	PartialSize int64
	ScanWorkers int
	Exclude     []string
	MinSize     int64

	// Verify compares duplicates byte-by-byte with the kept file before
	// removing them
	Verify bool

	// MaxTasks bounds concurrently running background tasks
	MaxTasks int

	// Categories maps organize-by-type folders to extensions
	Categories map[string][]string

	Logger logging.Logger

	// Rename replaces os.Rename in the executor
	Rename trash.RenameFunc
}

// OptionsFromConfig maps a loaded configuration onto engine options
func OptionsFromConfig(cfg *config.Config, logger logging.Logger) (Options, error) {
	bandwidth, err := cfg.BandwidthBytes()
	if err != nil {
		return Options{}, err
	}
	return Options{
		HistoryPath:    cfg.Engine.HistoryFile,
		TrashDir:       cfg.Engine.TrashDir,
		HistoryLimit:   cfg.Engine.HistoryLimit,
		LockTimeout:    cfg.Engine.LockTimeout,
		StrictMkdir:    cfg.Engine.StrictMkdir,
		AllowPermanent: cfg.Engine.AllowPermanentDelete,
		BandwidthLimit: bandwidth,
		BufferSize:     cfg.Performance.BufferSize,
		Algorithm:      digest.Algorithm(cfg.Scan.Algorithm),
		PartialSize:    cfg.Scan.PartialSize,
		ScanWorkers:    cfg.Scan.Workers,
		Exclude:        cfg.Scan.Exclude,
		MinSize:        cfg.Scan.MinSize,
		Verify:         cfg.Scan.Verify,
		MaxTasks:       cfg.Performance.MaxWorkers,
		Categories:     cfg.Categories,
		Logger:         logger,
	}, nil
}

// Engine is the entry point for every mutation. A single lock serializes
// each execute and record pair, so history order equals completion order
// and two requests never race on the same path.
type Engine struct {
	mu         sync.Mutex
	executor   *ops.Executor
	resolver   *ops.ConflictResolver
	history    *history.History
	scanner    *dedupe.Scanner
	verifier   *dedupe.Verifier
	runner     *tasks.Runner
	bus        *events.Bus
	categories map[string][]string
	exclude    []string
	logger     logging.Logger
}

// New opens the history and the quarantine and returns a ready engine
func New(ctx context.Context, opts Options) (*Engine, error) {
	if opts.HistoryPath == "" {
		return nil, &models.ValidationError{Field: "HistoryPath", Message: "history path is required"}
	}
	if opts.TrashDir == "" {
		return nil, &models.ValidationError{Field: "TrashDir", Message: "trash directory is required"}
	}

	logger := logging.OrNull(opts.Logger)

	quarantine, err := trash.New(opts.TrashDir, opts.Rename)
	if err != nil {
		return nil, fmt.Errorf("failed to open trash: %w", err)
	}

	var limiter *ratelimit.Limiter
	if opts.BandwidthLimit > 0 {
		limiter = ratelimit.NewLimiter(opts.BandwidthLimit)
	}

	hasherOpts := digest.Options{
		Algorithm:   opts.Algorithm,
		BufferSize:  opts.BufferSize,
		PartialSize: opts.PartialSize,
	}
	if limiter != nil {
		hasherOpts.Wrap = func(ctx context.Context, rc io.ReadCloser) io.ReadCloser {
			return ratelimit.NewReadCloser(ctx, rc, limiter)
		}
	}
	hasher, err := digest.New(hasherOpts)
	if err != nil {
		return nil, err
	}

	executor, err := ops.NewExecutor(ops.Options{
		Quarantine:     quarantine,
		Hasher:         hasher,
		Limiter:        limiter,
		BufferSize:     opts.BufferSize,
		StrictMkdir:    opts.StrictMkdir,
		AllowPermanent: opts.AllowPermanent,
		Logger:         logger,
		Rename:         opts.Rename,
	})
	if err != nil {
		return nil, err
	}

	scanner, err := dedupe.NewScanner(dedupe.Options{
		Hasher:  hasher,
		Workers: opts.ScanWorkers,
		Exclude: opts.Exclude,
		MinSize: opts.MinSize,
		Skip:    quarantine.Contains,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	categories := opts.Categories
	if categories == nil {
		categories = config.DefaultCategories()
	}

	e := &Engine{
		executor:   executor,
		resolver:   ops.NewConflictResolver(),
		scanner:    scanner,
		runner:     tasks.NewRunner(opts.MaxTasks, logger),
		bus:        events.NewBus(logger),
		categories: categories,
		exclude:    opts.Exclude,
		logger:     logger,
	}
	if opts.Verify {
		e.verifier = dedupe.NewVerifier(opts.BufferSize, hasherOpts.Wrap)
	}

	e.history, err = history.Open(ctx, history.Options{
		Path:        opts.HistoryPath,
		Limit:       opts.HistoryLimit,
		OnEvict:     e.purge,
		LockTimeout: opts.LockTimeout,
		Logger:      logger,
	}, executor)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	if recovered := e.history.Recovered(); recovered != "" {
		logger.Warn(ctx, "history was corrupted and has been reset", logging.Fields{"preserved": recovered})
	}

	return e, nil
}

// Close waits for background tasks to finish
func (e *Engine) Close() error {
	e.runner.Wait()
	return nil
}

// Subscribe registers s for committed, undone and redone records. s runs
// while the engine lock is held and must not call back into the engine
// synchronously. The returned function unsubscribes.
func (e *Engine) Subscribe(s events.Subscriber) func() {
	return e.bus.Subscribe(s)
}

// Submit checks req for a destination conflict, executes it and records
// it. Conflicts are returned as a *models.ConflictError unless the
// request approves an overwrite or asks for keep-both naming. An approved
// overwrite commits two records: the reversible delete of the existing
// destination, then req itself.
func (e *Engine) Submit(ctx context.Context, req models.OperationRequest) (models.OperationRecord, error) {
	if err := req.Validate(); err != nil {
		return models.OperationRecord{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.submitLocked(ctx, req)
}

func (e *Engine) submitLocked(ctx context.Context, req models.OperationRequest) (models.OperationRecord, error) {
	if conflict := e.resolver.Check(req); conflict != nil {
		policy := req.OnConflict
		if req.Overwrite {
			policy = models.ConflictOverwrite
		}

		switch policy {
		case models.ConflictOverwrite:
			if _, err := e.commit(ctx, e.resolver.Replacement(conflict)); err != nil {
				return models.OperationRecord{}, fmt.Errorf("failed to clear destination: %w", err)
			}
			req.Overwrite = false
			req.OnConflict = models.ConflictFail
		case models.ConflictKeepBoth:
			req = e.resolver.KeepBoth(req, conflict)
		default:
			e.logger.Debug(ctx, "conflict returned to caller", logging.Fields{
				"op":     string(req.Kind),
				"source": conflict.Source,
				"dest":   conflict.Dest,
				"policy": string(policy),
			})
			return models.OperationRecord{}, &models.ConflictError{Conflict: conflict}
		}
	}

	return e.commit(ctx, req)
}

// commit executes req and appends its record under the history lock
func (e *Engine) commit(ctx context.Context, req models.OperationRequest) (models.OperationRecord, error) {
	rec, _, err := e.history.Commit(ctx, func(ctx context.Context) (models.OperationRecord, error) {
		return e.executor.Execute(ctx, req)
	})
	if err != nil {
		if rec.ID == "" {
			return models.OperationRecord{}, err
		}
		// The mutation happened but cannot be undone through the history.
		e.logger.Error(ctx, "failed to record operation", err, logging.Fields{
			"op":        string(rec.Kind),
			"source":    rec.Source,
			"record_id": rec.ID,
		})
		return rec, fmt.Errorf("operation executed but not recorded: %w", err)
	}

	e.bus.Publish(ctx, events.NewEvent(events.Committed, rec))
	return rec, nil
}

// UndoLast inverts the most recent executed record
func (e *Engine) UndoLast(ctx context.Context) (models.OperationRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.history.Undo(ctx)
	if err != nil {
		return models.OperationRecord{}, err
	}
	e.bus.Publish(ctx, events.NewEvent(events.Undone, rec))
	return rec, nil
}

// RedoLast re-applies the most recently undone record
func (e *Engine) RedoLast(ctx context.Context) (models.OperationRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.history.Redo(ctx)
	if err != nil {
		return models.OperationRecord{}, err
	}
	e.bus.Publish(ctx, events.NewEvent(events.Redone, rec))
	return rec, nil
}

// History returns the persisted records and the cursor. Records before
// the cursor are executed, the rest can be redone.
func (e *Engine) History() ([]models.OperationRecord, int) {
	return e.history.Records(), e.history.Cursor()
}

// HistoryPath returns the location of the history document
func (e *Engine) HistoryPath() string {
	return e.history.Path()
}

// TrashEntry is a quarantined item joined with the record that put it there
type TrashEntry struct {
	trash.Item

	// Original is the path the entry was deleted from, if still known
	Original string `json:"original,omitempty"`

	// RecordID identifies the delete record
	RecordID string `json:"record_id,omitempty"`
}

// Trash lists the quarantine, newest first
func (e *Engine) Trash() ([]TrashEntry, error) {
	items, err := e.executor.Quarantine().List()
	if err != nil {
		return nil, err
	}

	byTrashPath := make(map[string]models.OperationRecord)
	for _, rec := range e.history.Records() {
		if rec.Kind == models.KindDelete && rec.Undo.TrashPath != "" {
			byTrashPath[rec.Undo.TrashPath] = rec
		}
	}

	entries := make([]TrashEntry, len(items))
	for i, item := range items {
		entries[i] = TrashEntry{Item: item}
		if rec, ok := byTrashPath[item.Path]; ok {
			entries[i].Original = rec.Source
			entries[i].RecordID = rec.ID
		}
	}
	return entries, nil
}

// purge drops the quarantine data of records evicted from the history
func (e *Engine) purge(rec models.OperationRecord) {
	if err := e.executor.Purge(rec); err != nil {
		e.logger.Warn(context.Background(), "failed to purge evicted record", logging.Fields{
			"record_id": rec.ID,
			"trash":     rec.Undo.TrashPath,
			"error":     err.Error(),
		})
	}
}
