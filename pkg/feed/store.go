package feed

import (
	"sort"
	"sync"
	"time"
)

type entry[T Item] struct {
	id   string
	at   time.Time
	item T
}

// Store keeps the items of one channel ordered by (createdAt, id). The sort
// key of an item is fixed when it is first inserted, so an update replaces the
// value in place.
type Store[T Item] struct {
	mu      sync.RWMutex
	entries []entry[T]
	keys    map[string]time.Time
}

func NewStore[T Item]() *Store[T] {
	return &Store[T]{
		keys: make(map[string]time.Time),
	}
}

func before(aAt time.Time, aID string, bAt time.Time, bID string) bool {
	if !aAt.Equal(bAt) {
		return aAt.Before(bAt)
	}
	return aID < bID
}

// search returns the first position whose key is not before (at, id).
func (s *Store[T]) search(at time.Time, id string) int {
	return sort.Search(len(s.entries), func(i int) bool {
		return !before(s.entries[i].at, s.entries[i].id, at, id)
	})
}

// Upsert inserts item if its id is new and reports true, otherwise it
// replaces the stored value at its existing position and reports false.
func (s *Store[T]) Upsert(item T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsert(item)
}

func (s *Store[T]) upsert(item T) bool {
	id := item.ItemID()
	if at, ok := s.keys[id]; ok {
		s.entries[s.search(at, id)].item = item
		return false
	}

	at := item.ItemCreatedAt()
	i := s.search(at, id)
	s.entries = append(s.entries, entry[T]{})
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = entry[T]{id: id, at: at, item: item}
	s.keys[id] = at
	return true
}

func (s *Store[T]) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	at, ok := s.keys[id]
	if !ok {
		return false
	}
	i := s.search(at, id)
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	delete(s.keys, id)
	return true
}

func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	at, ok := s.keys[id]
	if !ok {
		var zero T
		return zero, false
	}
	return s.entries[s.search(at, id)].item, true
}

func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// ListOrdered returns a snapshot of the items sorted by (createdAt, id).
func (s *Store[T]) ListOrdered() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]T, len(s.entries))
	for i, e := range s.entries {
		items[i] = e.item
	}
	return items
}

// Reset drops every item and loads items in their place.
func (s *Store[T]) Reset(items []T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = s.entries[:0]
	s.keys = make(map[string]time.Time, len(items))
	for _, item := range items {
		s.upsert(item)
	}
}
