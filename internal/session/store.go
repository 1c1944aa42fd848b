package session

import (
	"sync"

	"github.com/ajoshi-dev/huddle/internal/chat"
)

// MergeOutcome reports what a Merge call did to the store.
type MergeOutcome int

const (
	// Appended: the event was added to the end of the sequence.
	Appended MergeOutcome = iota
	// Deduplicated: an entry with the same id already exists; no change.
	Deduplicated
	// Removed: a DELETE event removed its target; the delete itself was
	// discarded after applying its effect.
	Removed
	// Ignored: a DELETE referenced an id not present (or carried none).
	Ignored
)

// Store is the ordered, deduplicated collection of chat events for one
// group. Events keep arrival order, not timestamp order: the channel
// delivers in order per publisher, and re-sorting by timestamp could move a
// delete notice ahead of its target under clock skew.
//
// The store is a pure data structure with no I/O. All mutation happens on
// the session's single event-processing flow; the lock only exists so
// external consumers can take read snapshots.
type Store struct {
	mu     sync.RWMutex
	events []chat.Event
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Seed replaces the event sequence wholesale. Used once, with history,
// before the channel subscribes.
func (s *Store) Seed(events []chat.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make([]chat.Event, len(events))
	copy(s.events, events)
}

// Merge applies one inbound event under the dedup/ordering policy:
// a DELETE removes the entry whose id matches the delete's own id field and
// is then discarded; a redelivered id is a no-op; anything else appends.
func (s *Store) Merge(ev chat.Event) MergeOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Kind == chat.KindDelete {
		if ev.ID == nil {
			return Ignored
		}
		if s.removeLocked(*ev.ID) {
			return Removed
		}
		return Ignored
	}

	if ev.ID != nil {
		for _, existing := range s.events {
			if existing.ID != nil && *existing.ID == *ev.ID {
				return Deduplicated
			}
		}
	}

	s.events = append(s.events, ev)
	return Appended
}

// RemoveLocally removes the entry with the given id. It is the optimistic
// fallback used when a delete request fails at the transport level after
// having been attempted; the acting user's view stays consistent even if the
// authoritative DELETE broadcast never arrives. Reports whether an entry was
// removed.
func (s *Store) RemoveLocally(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(id)
}

func (s *Store) removeLocked(id int64) bool {
	for i, ev := range s.events {
		if ev.ID != nil && *ev.ID == id {
			s.events = append(s.events[:i], s.events[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the current event sequence.
func (s *Store) Snapshot() []chat.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chat.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Len returns the number of stored events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
