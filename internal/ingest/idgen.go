package ingest

import "github.com/google/uuid"

// IDGenerator produces correlation ids for new log entries
type IDGenerator func() string

// NewID returns a random UUIDv4 string
func NewID() string {
	return uuid.NewString()
}
