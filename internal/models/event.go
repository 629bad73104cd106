package models

import "time"

// EventKind is the operation a bulk item performs
type EventKind string

const (
	EventCreate EventKind = "create"
	EventUpdate EventKind = "update"
)

// EventRecord is what the ingestion endpoint returns for an accepted event
type EventRecord struct {
	ID        string    `json:"id"`
	Type      LogType   `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Complete reports whether the record carries everything needed to compute latency
func (r *EventRecord) Complete() bool {
	return r != nil && r.ID != "" && !r.CreatedAt.IsZero() && !r.UpdatedAt.IsZero()
}

// BulkItem is one element of the POST /ingestBulk request body
type BulkItem struct {
	Type    EventKind `json:"type"`
	Payload any       `json:"payload"`
}

// BulkItemResult is the per-item outcome inside a bulk response
type BulkItemResult struct {
	ID      string       `json:"id"`
	Success bool         `json:"success"`
	Error   string       `json:"error,omitempty"`
	Data    *EventRecord `json:"data,omitempty"`
}

// BulkResponse is the raw POST /ingestBulk response body
type BulkResponse struct {
	Success  bool             `json:"success"`
	Finished bool             `json:"finished"`
	Message  string           `json:"message,omitempty"`
	Data     []BulkItemResult `json:"data"`
}

// LogResponse is the response of the single item endpoints (POST /logs, POST /log/{id})
type LogResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Data    *EventRecord `json:"data"`
	Status  int          `json:"status"`
}
