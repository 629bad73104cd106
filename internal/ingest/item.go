package ingest

import (
	"time"

	"finetunedb/internal/models"
)

// Kind is the operation an item performs on the server
type Kind = models.EventKind

const (
	KindCreate = models.EventCreate
	KindUpdate = models.EventUpdate
)

// Status is where an item is in its lifecycle
type Status int

const (
	StatusPending Status = iota
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// Item is one queued create or update event.
// CorrelationID, Kind, Payload and Sequence never change after the item is queued.
type Item struct {
	CorrelationID string
	Kind          Kind
	Payload       any // *models.LogCreatePayload or *models.LogUpdatePayload
	Sequence      time.Time

	Status Status
	Record *models.EventRecord
	Err    string
}

func (it *Item) bulkItem() models.BulkItem {
	return models.BulkItem{Type: it.Kind, Payload: it.Payload}
}
