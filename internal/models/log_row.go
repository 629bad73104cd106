package models

import "time"

// LogRow is a stored log entry as persisted by the reference ingestion server
type LogRow struct {
	ID        string `db:"id"`
	ProjectID string `db:"project_id"`
	ParentID  string `db:"parent_id"`
	Type      string `db:"type"`
	Name      string `db:"name"`
	Payload   JSONB  `db:"payload"`
	CreatedAt int64  `db:"created_at"` // unix milliseconds
	UpdatedAt int64  `db:"updated_at"` // unix milliseconds
}

// Record converts the row into the wire representation returned to clients
func (r *LogRow) Record() *EventRecord {
	return &EventRecord{
		ID:        r.ID,
		Type:      LogType(r.Type),
		CreatedAt: time.UnixMilli(r.CreatedAt).UTC(),
		UpdatedAt: time.UnixMilli(r.UpdatedAt).UTC(),
	}
}
