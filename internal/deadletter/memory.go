package deadletter

import (
	"context"
	"sync"
)

// MemoryQueue implements Store in process memory.
// Once capacity is reached the oldest items are discarded.
type MemoryQueue struct {
	items    []Item
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewMemoryQueue creates a new in-memory dead-letter queue
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryQueue{
		items:    make([]Item, 0),
		capacity: capacity,
	}
}

// Add appends items to the queue
func (q *MemoryQueue) Add(ctx context.Context, items ...Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.items = append(q.items, items...)
	if over := len(q.items) - q.capacity; over > 0 {
		q.items = append([]Item(nil), q.items[over:]...)
	}
	return nil
}

// List retrieves items from the queue, oldest first
func (q *MemoryQueue) List(ctx context.Context, maxItems int) ([]Item, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	if maxItems <= 0 || maxItems > len(q.items) {
		maxItems = len(q.items)
	}

	result := make([]Item, maxItems)
	copy(result, q.items[:maxItems])
	return result, nil
}

// Remove removes an item from the queue
func (q *MemoryQueue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	for i, item := range q.items {
		if item.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return nil
		}
	}

	return ErrItemNotFound
}

// Len returns the number of stored items
func (q *MemoryQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

// Close shuts down the queue
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.items = nil
	return nil
}
