package storage

import "errors"

var (
	// ErrLogNotFound is returned when a log entry does not exist
	ErrLogNotFound = errors.New("log not found")

	// ErrLogExists is returned when a log entry with the same id was already created
	ErrLogExists = errors.New("log already exists")
)
