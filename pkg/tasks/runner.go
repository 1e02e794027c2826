package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sdejongh/tfm/pkg/logging"
)

// Result is what a finished task produced. Incomplete is set when the
// task was cancelled; Value then holds the work done before the stop.
type Result[T any] struct {
	Value      T
	Incomplete bool
	Err        error
}

// Runner executes tasks in the background, at most maxTasks at a time
type Runner struct {
	semaphore chan struct{}
	logger    logging.Logger
	wg        sync.WaitGroup
}

// NewRunner creates a runner
func NewRunner(maxTasks int, logger logging.Logger) *Runner {
	if maxTasks < 1 {
		maxTasks = 1
	}
	return &Runner{
		semaphore: make(chan struct{}, maxTasks),
		logger:    logging.OrNull(logger),
	}
}

// Wait blocks until every started task has finished
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Handle controls one background task
type Handle[T any] struct {
	name     string
	cancel   context.CancelFunc
	done     chan struct{}
	reporter *Reporter
	result   Result[T]
}

// Option customizes a task
type Option func(*Reporter)

// WithProgress registers a callback receiving every progress update
func WithProgress(fn func(Progress)) Option {
	return func(r *Reporter) { r.onUpdate = fn }
}

// Run starts fn in the background and returns immediately. fn must stop
// promptly once ctx is done and return what it has so far.
func Run[T any](r *Runner, parent context.Context, name string, fn func(ctx context.Context, rep *Reporter) (T, error), opts ...Option) *Handle[T] {
	ctx, cancel := context.WithCancel(parent)
	h := &Handle[T]{
		name:     name,
		cancel:   cancel,
		done:     make(chan struct{}),
		reporter: &Reporter{progress: Progress{Status: StatusPending}},
	}
	for _, opt := range opts {
		opt(h.reporter)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(h.done)
		defer cancel()

		select {
		case r.semaphore <- struct{}{}:
			defer func() { <-r.semaphore }()
		case <-ctx.Done():
			h.result = Result[T]{Incomplete: true}
			h.reporter.setStatus(StatusCancelled)
			return
		}

		h.reporter.setStatus(StatusRunning)
		r.logger.Debug(ctx, "task started", logging.Fields{"task": name})

		value, err := h.invoke(ctx, fn)
		h.result = Result[T]{Value: value, Err: err}

		switch {
		case ctx.Err() != nil && (err == nil || errors.Is(err, ctx.Err())):
			h.result.Incomplete = true
			h.result.Err = nil
			h.reporter.setStatus(StatusCancelled)
			r.logger.Info(ctx, "task cancelled", logging.Fields{"task": name})
		case err != nil:
			h.reporter.setStatus(StatusFailed)
			r.logger.Error(ctx, "task failed", err, logging.Fields{"task": name})
		default:
			h.reporter.setStatus(StatusCompleted)
			r.logger.Debug(ctx, "task completed", logging.Fields{"task": name})
		}
	}()

	return h
}

// invoke runs fn and turns a panic into an error
func (h *Handle[T]) invoke(ctx context.Context, fn func(ctx context.Context, rep *Reporter) (T, error)) (value T, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task %s panicked: %v", h.name, p)
		}
	}()
	return fn(ctx, h.reporter)
}

// Name returns the task name
func (h *Handle[T]) Name() string {
	return h.name
}

// Cancel asks the task to stop. It does not wait.
func (h *Handle[T]) Cancel() {
	h.cancel()
}

// Done is closed when the task has finished
func (h *Handle[T]) Done() <-chan struct{} {
	return h.done
}

// Progress returns the latest progress snapshot
func (h *Handle[T]) Progress() Progress {
	return h.reporter.snapshot()
}

// Await waits for the task to finish. If ctx ends first, the result only
// carries ctx's error; the task keeps running.
func (h *Handle[T]) Await(ctx context.Context) Result[T] {
	select {
	case <-h.done:
		return h.result
	case <-ctx.Done():
		return Result[T]{Incomplete: true, Err: ctx.Err()}
	}
}
