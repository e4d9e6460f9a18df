// Package store keeps the bounded, newest-first history of firewall events.
//
// Events are immutable values. The geo indicator is kept in a separate cell
// keyed by event ID so late enrichment never touches the event itself.
package store

import (
	"sync"

	"github.com/google/uuid"

	"github.com/mensfeld/fwmon/internal/event"
)

// DefaultMaxEvents matches the default max-events setting
const DefaultMaxEvents = 50

// Record is the read model handed to consumers
type Record struct {
	Event     event.FirewallEvent `json:"event"`
	Indicator string              `json:"indicator"`
}

// Store is a bounded history ordered newest-first. It is safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	maxEvents   int
	placeholder string
	events      []event.FirewallEvent // oldest first; Recent reverses
	indicators  map[uuid.UUID]string
}

// New creates an empty store holding at most maxEvents events.
// New events carry placeholder as their indicator until SetIndicator is called.
func New(maxEvents int, placeholder string) *Store {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	return &Store{
		maxEvents:   maxEvents,
		placeholder: placeholder,
		events:      make([]event.FirewallEvent, 0, maxEvents),
		indicators:  make(map[uuid.UUID]string),
	}
}

// Append inserts ev as the newest event and evicts the oldest beyond capacity.
// It returns the stored record.
func (s *Store) Append(ev event.FirewallEvent) Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, ev)
	s.indicators[ev.ID] = s.placeholder
	s.truncate()

	return Record{Event: ev, Indicator: s.placeholder}
}

// truncate evicts from the oldest end until the store fits maxEvents.
// Callers must hold the write lock.
func (s *Store) truncate() {
	over := len(s.events) - s.maxEvents
	if over <= 0 {
		return
	}
	for _, ev := range s.events[:over] {
		delete(s.indicators, ev.ID)
	}
	n := copy(s.events, s.events[over:])
	clear(s.events[n:])
	s.events = s.events[:n]
}

// Recent returns up to n newest records, newest first. n <= 0 returns all.
func (s *Store) Recent(n int) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n > len(s.events) {
		n = len(s.events)
	}
	out := make([]Record, 0, n)
	for i := len(s.events) - 1; i >= len(s.events)-n; i-- {
		ev := s.events[i]
		out = append(out, Record{Event: ev, Indicator: s.indicators[ev.ID]})
	}
	return out
}

// Count returns the number of stored events
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Get returns the record for id if it is still stored
func (s *Store) Get(id uuid.UUID) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ind, ok := s.indicators[id]
	if !ok {
		return Record{}, false
	}
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].ID == id {
			return Record{Event: s.events[i], Indicator: ind}, true
		}
	}
	return Record{}, false
}

// SetIndicator resolves the indicator of a stored event. It applies only while
// the event is still stored and its indicator is still the placeholder, so a
// late lookup result for an evicted or cleared event is a no-op.
func (s *Store) SetIndicator(id uuid.UUID, indicator string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.indicators[id]
	if !ok || current != s.placeholder || indicator == s.placeholder {
		return false
	}
	s.indicators[id] = indicator
	return true
}

// Clear removes all events
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = s.events[:0]
	s.indicators = make(map[uuid.UUID]string)
}

// Resize changes the capacity, evicting the oldest events if it shrinks
func (s *Store) Resize(maxEvents int) {
	if maxEvents <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxEvents = maxEvents
	s.truncate()
}

// Capacity returns the configured maximum number of events
func (s *Store) Capacity() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxEvents
}
