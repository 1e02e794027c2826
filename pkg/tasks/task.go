// Package tasks runs long operations in the background with progress
// reporting and cooperative cancellation.
package tasks

import (
	"sync"
	"time"
)

// Status represents the state of a background task
type Status string

const (
	// StatusPending indicates the task is waiting for a runner slot
	StatusPending Status = "pending"
	// StatusRunning indicates the task is executing
	StatusRunning Status = "running"
	// StatusCompleted indicates the task finished successfully
	StatusCompleted Status = "completed"
	// StatusFailed indicates the task returned an error
	StatusFailed Status = "failed"
	// StatusCancelled indicates the task stopped early; its value is partial
	StatusCancelled Status = "cancelled"
)

// Progress is a snapshot of a task's advancement
type Progress struct {
	Status Status `json:"status"`

	// Done and Total count work items; Total is 0 while unknown
	Done  int64 `json:"done"`
	Total int64 `json:"total"`

	// Current is the item being processed
	Current string `json:"current,omitempty"`

	StartTime time.Time     `json:"start_time"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Reporter is handed to the task function to publish progress. Methods
// are safe for concurrent use.
type Reporter struct {
	mu       sync.Mutex
	progress Progress
	onUpdate func(Progress)
}

// SetTotal sets the number of work items, when known
func (r *Reporter) SetTotal(total int64) {
	r.update(func(p *Progress) { p.Total = total })
}

// AddTotal grows the number of work items
func (r *Reporter) AddTotal(n int64) {
	r.update(func(p *Progress) { p.Total += n })
}

// Start names the item being processed
func (r *Reporter) Start(item string) {
	r.update(func(p *Progress) { p.Current = item })
}

// Advance marks n items as done
func (r *Reporter) Advance(n int64) {
	r.update(func(p *Progress) { p.Done += n })
}

func (r *Reporter) setStatus(status Status) {
	r.update(func(p *Progress) {
		switch {
		case status == StatusRunning:
			p.StartTime = time.Now()
		case !p.StartTime.IsZero():
			p.Elapsed = time.Since(p.StartTime)
		}
		p.Status = status
	})
}

func (r *Reporter) update(fn func(p *Progress)) {
	r.mu.Lock()
	fn(&r.progress)
	snapshot := r.snapshotLocked()
	onUpdate := r.onUpdate
	r.mu.Unlock()

	if onUpdate != nil {
		onUpdate(snapshot)
	}
}

func (r *Reporter) snapshot() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Reporter) snapshotLocked() Progress {
	p := r.progress
	if p.Status == StatusRunning {
		p.Elapsed = time.Since(p.StartTime)
	}
	return p
}
