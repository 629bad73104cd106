package deadletter

import "errors"

var (
	// ErrQueueClosed is returned when operating on a closed queue
	ErrQueueClosed = errors.New("dead-letter queue is closed")

	// ErrItemNotFound is returned when an item is not found
	ErrItemNotFound = errors.New("dead-letter item not found")
)
