package ingest

import (
	"sync"
	"time"
)

// EventTimes are the server timestamps of an acknowledged log entry
type EventTimes struct {
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RefCache maps log ids to the timestamps the server returned for them.
// It lives as long as the Client and is never evicted.
type RefCache struct {
	mu      sync.RWMutex
	entries map[string]EventTimes
}

// NewRefCache creates an empty cache
func NewRefCache() *RefCache {
	return &RefCache{entries: make(map[string]EventTimes)}
}

// Record stores the timestamps for id, replacing any previous entry
func (c *RefCache) Record(id string, createdAt, updatedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = EventTimes{CreatedAt: createdAt, UpdatedAt: updatedAt}
}

// Lookup returns the timestamps recorded for id
func (c *RefCache) Lookup(id string) (EventTimes, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.entries[id]
	return t, ok
}

// Len returns the number of cached ids
func (c *RefCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
