package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the ingestion API rejects the API key
	ErrUnauthorized = errors.New("ingestion API rejected the API key")

	// ErrMissingAPIKey is returned when a request is attempted without a key
	ErrMissingAPIKey = errors.New("API key is required")
)

// APIError is a non-successful response from a single item endpoint
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ingestion API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("ingestion API returned status %d: %s", e.StatusCode, e.Message)
}
