// Package events notifies subscribers about committed, undone and redone
// operation records.
package events

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/sdejongh/tfm/pkg/logging"
	"github.com/sdejongh/tfm/pkg/models"
)

// Type identifies what happened to a record
type Type string

const (
	Committed Type = "committed"
	Undone    Type = "undone"
	Redone    Type = "redone"
)

// Event describes one history change and the paths it affected
type Event struct {
	Type         Type                   `json:"type"`
	Record       models.OperationRecord `json:"record"`
	PathsAdded   []string               `json:"paths_added,omitempty"`
	PathsRemoved []string               `json:"paths_removed,omitempty"`
	Time         time.Time              `json:"time"`
}

// NewEvent builds an event. Undoing a record swaps its added and removed
// paths.
func NewEvent(t Type, rec models.OperationRecord) Event {
	added, removed := rec.PathsAdded(), rec.PathsRemoved()
	if t == Undone {
		added, removed = removed, added
	}
	return Event{Type: t, Record: rec, PathsAdded: added, PathsRemoved: removed, Time: time.Now()}
}

// Subscriber receives events synchronously, in history order
type Subscriber interface {
	Notify(ctx context.Context, ev Event)
}

// SubscriberFunc adapts a function to Subscriber
type SubscriberFunc func(ctx context.Context, ev Event)

func (f SubscriberFunc) Notify(ctx context.Context, ev Event) {
	f(ctx, ev)
}

// Bus fans events out to subscribers. A panicking subscriber is logged
// and does not affect the others.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]Subscriber
	nextID      int
	logger      logging.Logger
}

// NewBus creates an empty bus
func NewBus(logger logging.Logger) *Bus {
	return &Bus{subscribers: make(map[int]Subscriber), logger: logging.OrNull(logger)}
}

// Subscribe registers s and returns a function that removes it
func (b *Bus) Subscribe(s Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subscribers[id] = s

	return func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}
}

// Publish delivers ev to every subscriber in subscription order
func (b *Bus) Publish(ctx context.Context, ev Event) {
	b.mu.RLock()
	ids := make([]int, 0, len(b.subscribers))
	for id := range b.subscribers {
		ids = append(ids, id)
	}
	subs := make([]Subscriber, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		subs = append(subs, b.subscribers[id])
	}
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(ctx, s, ev)
	}
}

func (b *Bus) deliver(ctx context.Context, s Subscriber, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			b.logger.Error(ctx, "event subscriber panicked", fmt.Errorf("%v", p), logging.Fields{
				"event":     string(ev.Type),
				"record_id": ev.Record.ID,
			})
		}
	}()
	s.Notify(ctx, ev)
}
