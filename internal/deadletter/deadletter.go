// Package deadletter keeps ingestion events the server rejected item by item.
//
// Rejected events are never retried by the ingestion client. They are handed
// to a Sink so that an operator can see what was dropped and why:
//
//   - MemoryQueue keeps the most recent items in process (default)
//   - RedisQueue keeps them in a Redis hash shared by every process
//   - S3Archive appends them to JSON Lines objects in a bucket
package deadletter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Item is one rejected event
type Item struct {
	ID            string          `json:"id"`
	Kind          string          `json:"kind"`
	CorrelationID string          `json:"correlationId"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Error         string          `json:"error"`
	Timestamp     time.Time       `json:"timestamp"`
}

// NewItem builds an Item for a rejected event. The payload is stored in its JSON form.
func NewItem(kind, correlationID string, payload any, reason string) Item {
	var raw json.RawMessage
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			raw = data
		}
	}
	return Item{
		ID:            uuid.NewString(),
		Kind:          kind,
		CorrelationID: correlationID,
		Payload:       raw,
		Error:         reason,
		Timestamp:     time.Now().UTC(),
	}
}

// Sink receives rejected events
type Sink interface {
	// Add stores one or more rejected events
	Add(ctx context.Context, items ...Item) error

	// Close releases the sink's resources
	Close() error
}

// Store is a Sink whose contents can be inspected and pruned
type Store interface {
	Sink

	// List returns up to maxItems items, oldest first. maxItems <= 0 means all.
	List(ctx context.Context, maxItems int) ([]Item, error)

	// Remove deletes an item by its dead-letter id
	Remove(ctx context.Context, id string) error
}
