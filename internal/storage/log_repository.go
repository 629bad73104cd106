package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"finetunedb/internal/models"
)

// LogRepository handles log entry database operations
type LogRepository struct {
	db *DB
}

// NewLogRepository creates a new log repository
func NewLogRepository(db *DB) *LogRepository {
	return &LogRepository{db: db}
}

const logColumns = `id, project_id, parent_id, type, name, payload, created_at, updated_at`

// Create stores a new log entry. createdAt is taken from the payload when
// set, updatedAt is now but never before createdAt.
func (r *LogRepository) Create(ctx context.Context, p *models.LogCreatePayload, now time.Time) (*models.LogRow, error) {
	doc, err := models.ToJSONB(p)
	if err != nil {
		return nil, err
	}

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	row := &models.LogRow{
		ID:        p.ID,
		ProjectID: p.ProjectID,
		ParentID:  p.ParentID,
		Type:      string(p.Type),
		Name:      p.Name,
		Payload:   doc,
		CreatedAt: createdAt.UnixMilli(),
		UpdatedAt: max(now.UnixMilli(), createdAt.UnixMilli()),
	}
	stampTimes(row)

	err = r.inTx(ctx, func(tx *sqlx.Tx) error {
		var count int
		if err := tx.GetContext(ctx, &count, tx.Rebind(`SELECT COUNT(*) FROM logs WHERE id = ?`), row.ID); err != nil {
			return fmt.Errorf("failed to check log: %w", err)
		}
		if count > 0 {
			return ErrLogExists
		}

		query := tx.Rebind(`
			INSERT INTO logs (` + logColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		_, err := tx.ExecContext(ctx, query,
			row.ID, row.ProjectID, row.ParentID, row.Type, row.Name,
			row.Payload, row.CreatedAt, row.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create log: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// Update merges the non-empty fields of p into the stored entry
func (r *LogRepository) Update(ctx context.Context, p *models.LogUpdatePayload, now time.Time) (*models.LogRow, error) {
	patch, err := models.ToJSONB(p)
	if err != nil {
		return nil, err
	}
	delete(patch, "id")
	delete(patch, "updatedAt")

	var row models.LogRow
	err = r.inTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &row, tx.Rebind(`SELECT `+logColumns+` FROM logs WHERE id = ?`), p.ID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrLogNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get log: %w", err)
		}

		if row.Payload == nil {
			row.Payload = models.JSONB{}
		}
		row.Payload.Merge(patch)
		if p.ParentID != "" {
			row.ParentID = p.ParentID
		}
		if p.Type != "" {
			row.Type = string(p.Type)
		}
		if p.Name != "" {
			row.Name = p.Name
		}
		row.UpdatedAt = max(now.UnixMilli(), row.CreatedAt)
		stampTimes(&row)

		query := tx.Rebind(`
			UPDATE logs
			SET parent_id = ?, type = ?, name = ?, payload = ?, updated_at = ?
			WHERE id = ?
		`)
		if _, err := tx.ExecContext(ctx, query, row.ParentID, row.Type, row.Name, row.Payload, row.UpdatedAt, row.ID); err != nil {
			return fmt.Errorf("failed to update log: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Get retrieves a log entry by id
func (r *LogRepository) Get(ctx context.Context, id string) (*models.LogRow, error) {
	var row models.LogRow
	err := r.db.conn.GetContext(ctx, &row, r.db.conn.Rebind(`SELECT `+logColumns+` FROM logs WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLogNotFound
		}
		return nil, fmt.Errorf("failed to get log: %w", err)
	}
	return &row, nil
}

// ListByParent returns the children of a log entry, oldest first
func (r *LogRepository) ListByParent(ctx context.Context, parentID string) ([]*models.LogRow, error) {
	query := r.db.conn.Rebind(`SELECT ` + logColumns + ` FROM logs WHERE parent_id = ? ORDER BY created_at, id`)

	var rows []*models.LogRow
	if err := r.db.conn.SelectContext(ctx, &rows, query, parentID); err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}
	return rows, nil
}

// Count returns the number of stored entries
func (r *LogRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.conn.GetContext(ctx, &count, `SELECT COUNT(*) FROM logs`); err != nil {
		return 0, fmt.Errorf("failed to count logs: %w", err)
	}
	return count, nil
}

func (r *LogRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// stampTimes keeps the document timestamps in line with the columns
func stampTimes(row *models.LogRow) {
	rec := row.Record()
	row.Payload["id"] = row.ID
	row.Payload["createdAt"] = rec.CreatedAt.Format(time.RFC3339Nano)
	row.Payload["updatedAt"] = rec.UpdatedAt.Format(time.RFC3339Nano)
}
