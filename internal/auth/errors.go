package auth

import "errors"

var (
	// ErrKeyNotFound is returned when an API key does not match any known key
	ErrKeyNotFound = errors.New("API key not found")

	// ErrNoKeyConfigured is returned when a key store is built without a key
	ErrNoKeyConfigured = errors.New("no API key configured")
)
