package vm

import (
	"sort"
	"sync"
)

// ---------------------------------------------------------------------------
// Store: shared memory keyed by storage id
// ---------------------------------------------------------------------------

// Entry is one occupied memory slot.
type Entry struct {
	Mutable bool
	Value   Value
}

// Store maps storage ids to entries. Every operation is atomic under a
// single lock; the interpreter itself is single-threaded, but native code
// may touch the store from other goroutines.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]Entry),
	}
}

// Declare inserts or overwrites the entry for id unconditionally.
func (s *Store) Declare(id string, mutable bool, v Value) {
	s.mu.Lock()
	s.entries[id] = Entry{Mutable: mutable, Value: v}
	s.mu.Unlock()
}

// Assign replaces the value of an existing mutable entry.
func (s *Store) Assign(id string, v Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return undefinedSlot(id)
	}
	if !e.Mutable {
		return reassignImmutable(id)
	}
	e.Value = v
	s.entries[id] = e
	return nil
}

// Read returns a copy of the entry's value.
func (s *Store) Read(id string) (Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return Value{}, undefinedSlot(id)
	}
	return e.Value, nil
}

// Lookup returns the entry for id and whether it exists.
func (s *Store) Lookup(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

// Has reports whether id is occupied.
func (s *Store) Has(id string) bool {
	_, ok := s.Lookup(id)
	return ok
}

// Release removes the entry for id. Releasing an absent id is a no-op.
func (s *Store) Release(id string) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

// restore puts back an entry saved by an activation, or removes the slot
// if it did not exist before.
func (s *Store) restore(id string, e Entry, existed bool) {
	s.mu.Lock()
	if existed {
		s.entries[id] = e
	} else {
		delete(s.entries, id)
	}
	s.mu.Unlock()
}

// Len returns the number of occupied slots.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// IDs returns all occupied ids in sorted order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Snapshot returns a copy of every entry.
func (s *Store) Snapshot() map[string]Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Entry, len(s.entries))
	for id, e := range s.entries {
		out[id] = e
	}
	return out
}
