package main

import (
	"sync"

	"github.com/nbd-wtf/go-nostr"
)

// defaultFilterLimit and hardFilterLimit implement the min(limit, 2000)
// cap from spec.md §4.2.
const (
	defaultFilterLimit = 200
	hardFilterLimit    = 2000
)

// EventStore is a bounded, append-only, FIFO-eviction event index. It backs
// both C2's subscription backfill and the live event mirror C8 broadcasts
// against, guarded by a single coarse mutex per §5's "single coarse mutex
// per shared resource is acceptable" guidance and the teacher's own
// Graph/WSHub locking idiom.
type EventStore struct {
	mu       sync.RWMutex
	events   []*nostr.Event
	byID     map[string]*nostr.Event
	capacity int
}

// NewEventStore creates a store bounded at capacity events.
func NewEventStore(capacity int) *EventStore {
	if capacity <= 0 {
		capacity = 10000
	}
	return &EventStore{
		events:   make([]*nostr.Event, 0, capacity),
		byID:     make(map[string]*nostr.Event),
		capacity: capacity,
	}
}

// Add appends an accepted event, evicting from the head until the store is
// back within capacity, per spec.md §4.2.
func (s *EventStore) Add(ev *nostr.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, ev)
	s.byID[ev.ID] = ev

	for len(s.events) > s.capacity {
		evicted := s.events[0]
		s.events = s.events[1:]
		delete(s.byID, evicted.ID)
	}
}

// Len returns the number of stored events.
func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Get returns a stored event by id.
func (s *EventStore) Get(id string) (*nostr.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.byID[id]
	return ev, ok
}

// Query walks the store newest-to-oldest for each filter, collecting up to
// min(filter.Limit, hardFilterLimit) matches per filter (defaultFilterLimit
// if unset), concatenating results across filters. Duplicates are permitted
// across filters, matching spec.md §4.2.
func (s *EventStore) Query(filters nostr.Filters) []*nostr.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*nostr.Event
	for _, f := range filters {
		limit := defaultFilterLimit
		if f.Limit > 0 {
			limit = f.Limit
		}
		if limit > hardFilterLimit {
			limit = hardFilterLimit
		}

		count := 0
		for i := len(s.events) - 1; i >= 0 && count < limit; i-- {
			ev := s.events[i]
			if f.Matches(ev) {
				out = append(out, ev)
				count++
			}
		}
	}
	return out
}

// Count runs the same walk as Query but only tallies matches, without
// materializing the matched events — backing the supplemental COUNT frame.
func (s *EventStore) Count(filters nostr.Filters) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, f := range filters {
		limit := defaultFilterLimit
		if f.Limit > 0 {
			limit = f.Limit
		}
		if limit > hardFilterLimit {
			limit = hardFilterLimit
		}

		count := 0
		for i := len(s.events) - 1; i >= 0 && count < limit; i-- {
			if f.Matches(s.events[i]) {
				count++
				total++
			}
		}
	}
	return total
}
