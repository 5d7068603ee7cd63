// Package events provides the in-process progress event log and pub-sub bus.
// Every workflow, step, model call and tool call reports here; subscribers
// (CLI renderers, the metrics collector) observe the same ordered stream.
package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/stackoverflowed/nifimcp/pkg/models"
)

// Subscriber receives every event emitted after Subscribe returns.
type Subscriber interface {
	HandleEvent(event models.Event)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(event models.Event)

func (f SubscriberFunc) HandleEvent(event models.Event) { f(event) }

// Bus is an append-only event log with synchronous fan-out. Emission assigns
// each event a unique id and a monotonically increasing sequence number, so
// consumers can order and deduplicate across restarts of their own state.
type Bus struct {
	logger *slog.Logger

	seq atomic.Uint64

	mu          sync.RWMutex
	log         []models.Event
	subscribers map[string]Subscriber
}

// NewBus returns an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger:      logger.With("component", "events"),
		subscribers: map[string]Subscriber{},
	}
}

// Emit records the event and delivers it to every subscriber. The filled-in
// event (id, sequence, timestamp) is returned.
func (b *Bus) Emit(event models.Event) models.Event {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.Sequence = b.seq.Add(1)

	b.mu.Lock()
	b.log = append(b.log, event)
	subs := make([]Subscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.HandleEvent(event)
	}
	return event
}

// Subscribe registers a subscriber and returns its id for Unsubscribe.
func (b *Bus) Subscribe(s Subscriber) string {
	id := uuid.NewString()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[id] = s
	return id
}

// Unsubscribe removes a subscriber.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, id)
}

// Events returns a copy of the full log.
func (b *Bus) Events() []models.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]models.Event, len(b.log))
	copy(out, b.log)
	return out
}

// EventsSince returns the events emitted strictly after the timestamp.
func (b *Bus) EventsSince(ts time.Time) []models.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []models.Event
	for _, e := range b.log {
		if e.Timestamp.After(ts) {
			out = append(out, e)
		}
	}
	return out
}

// EventsFor returns the events belonging to one workflow run.
func (b *Bus) EventsFor(workflowID string) []models.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []models.Event
	for _, e := range b.log {
		if e.WorkflowID == workflowID {
			out = append(out, e)
		}
	}
	return out
}

// Prune drops log entries older than maxAge and reports how many were
// removed. Subscribers are unaffected.
func (b *Bus) Prune(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)
	b.mu.Lock()
	defer b.mu.Unlock()

	keep := b.log[:0]
	dropped := 0
	for _, e := range b.log {
		if e.Timestamp.Before(cutoff) {
			dropped++
			continue
		}
		keep = append(keep, e)
	}
	b.log = keep
	if dropped > 0 {
		b.logger.Debug("pruned event log", "dropped", dropped, "kept", len(keep))
	}
	return dropped
}
