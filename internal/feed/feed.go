// Package feed fans job-state snapshots out to subscribers.
//
// The hub is a best-effort notification layer: the job store remains the
// source of truth. Intermediate snapshots are delivered at least once per
// publish to every subscriber that keeps up; slow subscribers lose the oldest
// buffered intermediate events first, never a terminal snapshot.
package feed

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"casework/internal/jobs"
	"casework/internal/logging"
)

// Snapshot is one observed job state, suitable for live progress displays.
type Snapshot struct {
	JobID         string
	Type          string
	CaseID        string
	EvidenceID    string
	Status        jobs.Status
	Progress      float64
	StatusMessage string
	ErrorMessage  string
	Terminal      bool
	At            time.Time
}

// SnapshotOf projects a stored record into a feed snapshot.
func SnapshotOf(record *jobs.Record) Snapshot {
	if record == nil {
		return Snapshot{}
	}
	return Snapshot{
		JobID:         record.ID,
		Type:          record.Type,
		CaseID:        record.Scope.CaseID,
		EvidenceID:    record.Scope.EvidenceID,
		Status:        record.Status,
		Progress:      record.Progress,
		StatusMessage: record.StatusMessage,
		ErrorMessage:  record.ErrorMessage,
		Terminal:      record.Status.IsTerminal(),
		At:            time.Now().UTC(),
	}
}

// Hub broadcasts snapshots to all current subscribers.
type Hub struct {
	logger *slog.Logger
	buffer int

	mu     sync.Mutex
	subs   map[uint64]*Subscriber
	nextID uint64
	closed bool

	published atomic.Int64
	dropped   atomic.Int64
}

// NewHub creates a hub with the given per-subscriber buffer size.
func NewHub(logger *slog.Logger, buffer int) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	return &Hub{
		logger: logging.NewComponentLogger(logger, "status-feed"),
		buffer: buffer,
		subs:   make(map[uint64]*Subscriber),
	}
}

// Subscribe registers a new subscriber. The returned subscriber must be
// closed when no longer needed or the hub will retain it until shutdown.
func (h *Hub) Subscribe() *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &Subscriber{
		hub:    h,
		events: make(chan Snapshot, h.buffer),
	}
	if h.closed {
		close(sub.events)
		sub.closed = true
		return sub
	}
	h.nextID++
	sub.id = h.nextID
	h.subs[sub.id] = sub
	return sub
}

// Publish broadcasts one snapshot. Terminal snapshots displace the oldest
// buffered event of a lagging subscriber rather than being dropped.
func (h *Hub) Publish(snapshot Snapshot) {
	h.mu.Lock()
	subs := make([]*Subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return
	}

	h.published.Add(1)
	for _, sub := range subs {
		sub.deliver(snapshot)
	}
}

// Stats reports hub counters for diagnostics.
func (h *Hub) Stats() (subscribers int, published, dropped int64) {
	h.mu.Lock()
	subscribers = len(h.subs)
	h.mu.Unlock()
	return subscribers, h.published.Load(), h.dropped.Load()
}

// Close detaches and closes every subscriber. Further publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := make([]*Subscriber, 0, len(h.subs))
	for id, sub := range h.subs {
		subs = append(subs, sub)
		delete(h.subs, id)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.shut()
	}
	h.logger.Debug("status feed closed")
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// Subscriber receives snapshots from the hub it was created on.
type Subscriber struct {
	id     uint64
	hub    *Hub
	events chan Snapshot

	mu      sync.Mutex
	closed  bool
	dropped int64
}

// Events returns the snapshot channel. It is closed when the subscriber or
// the hub shuts down.
func (s *Subscriber) Events() <-chan Snapshot {
	return s.events
}

// Dropped reports how many intermediate events this subscriber lost to
// backpressure.
func (s *Subscriber) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close detaches the subscriber from the hub and closes its channel.
func (s *Subscriber) Close() {
	s.hub.remove(s.id)
	s.shut()
}

func (s *Subscriber) shut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

func (s *Subscriber) deliver(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.events <- snapshot:
			return
		default:
		}
		// Buffer full. Intermediate events are droppable; a terminal
		// snapshot evicts the oldest buffered event instead.
		if !snapshot.Terminal {
			s.dropped++
			s.hub.dropped.Add(1)
			return
		}
		select {
		case <-s.events:
			s.dropped++
			s.hub.dropped.Add(1)
		default:
		}
	}
}
