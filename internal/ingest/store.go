package ingest

import (
	"sync"
	"time"

	"finetunedb/internal/models"
)

// resolution is the server's verdict on one item
type resolution struct {
	status Status
	record *models.EventRecord
	err    string
}

// Store holds the items that have not been resolved yet, in sequence order.
// Every item in the store is pending; resolved items leave it immediately.
type Store struct {
	mu    sync.Mutex
	items []*Item
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{}
}

// add inserts item keeping sequence order. Items normally arrive in order,
// so the scan from the tail stops immediately.
func (s *Store) add(item *Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := len(s.items)
	for i > 0 && s.items[i-1].Sequence.After(item.Sequence) {
		i--
	}
	s.items = append(s.items, nil)
	copy(s.items[i+1:], s.items[i:])
	s.items[i] = item
}

// snapshot returns the pending items in sequence order
func (s *Store) snapshot() []*Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Item, len(s.items))
	copy(out, s.items)
	return out
}

// settle applies resolutions and removes every item that is no longer pending.
// It returns copies of the removed items.
func (s *Store) settle(resolutions map[*Item]resolution) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []Item
	kept := s.items[:0]
	for _, item := range s.items {
		if res, ok := resolutions[item]; ok && res.status != StatusPending {
			item.Status = res.status
			item.Record = res.record
			item.Err = res.err
			removed = append(removed, *item)
			continue
		}
		kept = append(kept, item)
	}
	for i := len(kept); i < len(s.items); i++ {
		s.items[i] = nil
	}
	s.items = kept
	return removed
}

// pendingAfter reports whether any item was sequenced after t
func (s *Store) pendingAfter(t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i].Sequence.After(t) {
			return true
		}
	}
	return false
}

// Len returns the number of pending items
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Items returns copies of the pending items in sequence order
func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Item, len(s.items))
	for i, item := range s.items {
		out[i] = *item
	}
	return out
}
