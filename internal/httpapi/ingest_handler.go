package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"finetunedb/internal/middleware"
	"finetunedb/internal/models"
	"finetunedb/internal/storage"
	"finetunedb/internal/utils"
)

// bulkRequestItem is one decoded element of the /ingestBulk body. The
// payload is decoded per item so that one malformed entry fails alone.
type bulkRequestItem struct {
	Type    models.EventKind `json:"type"`
	Payload json.RawMessage  `json:"payload"`
}

// errValidation marks item errors caused by the request rather than the server
var errValidation = errors.New("validation failed")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errValidation, fmt.Sprintf(format, args...))
}

// handleIngestBulk applies every item independently and reports one result
// per item, in request order.
func (d *Dependencies) handleIngestBulk(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var items []bulkRequestItem
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid JSON body: expected an array of items")
		return
	}

	projectID := keyProject(r.Context())
	results := make([]models.BulkItemResult, 0, len(items))
	for _, item := range items {
		results = append(results, d.applyItem(r.Context(), projectID, item))
	}

	d.Logger.Debug("Bulk ingest applied", "items", len(items))
	utils.RespondWithJSON(w, http.StatusOK, models.BulkResponse{
		Success:  true,
		Finished: true,
		Data:     results,
	})
}

func (d *Dependencies) applyItem(ctx context.Context, projectID string, item bulkRequestItem) models.BulkItemResult {
	var (
		id  = payloadID(item.Payload)
		row *models.LogRow
		err error
	)

	switch item.Type {
	case models.EventCreate:
		var p models.LogCreatePayload
		if err = json.Unmarshal(item.Payload, &p); err != nil {
			err = invalid("malformed create payload")
			break
		}
		id = p.ID
		row, err = d.createLog(ctx, projectID, &p)
	case models.EventUpdate:
		var p models.LogUpdatePayload
		if err = json.Unmarshal(item.Payload, &p); err != nil {
			err = invalid("malformed update payload")
			break
		}
		id = p.ID
		row, err = d.updateLog(ctx, projectID, &p)
	default:
		err = invalid("unknown item type %q", item.Type)
	}

	if err != nil {
		return models.BulkItemResult{ID: id, Success: false, Error: d.itemError(err)}
	}
	return models.BulkItemResult{ID: id, Success: true, Data: row.Record()}
}

func (d *Dependencies) createLog(ctx context.Context, projectID string, p *models.LogCreatePayload) (*models.LogRow, error) {
	if p.ID == "" {
		return nil, invalid("id is required")
	}
	if p.ProjectID == "" {
		return nil, invalid("projectId is required")
	}
	if projectID != "" && p.ProjectID != projectID {
		return nil, invalid("project %s is not accessible with this key", p.ProjectID)
	}
	typ, err := models.ParseLogType(string(p.Type))
	if err != nil {
		return nil, invalid("%v", err)
	}
	p.Type = typ
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return d.Logs.Create(ctx, p, d.Now().UTC())
}

func (d *Dependencies) updateLog(ctx context.Context, projectID string, p *models.LogUpdatePayload) (*models.LogRow, error) {
	if p.ID == "" {
		return nil, invalid("id is required")
	}
	if p.Type != "" && !p.Type.Valid() {
		return nil, invalid("unknown log type %q", p.Type)
	}
	if projectID != "" {
		existing, err := d.Logs.Get(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if existing.ProjectID != projectID {
			return nil, storage.ErrLogNotFound
		}
	}
	return d.Logs.Update(ctx, p, d.Now().UTC())
}

// itemError renders an item failure. Storage failures are logged and hidden.
func (d *Dependencies) itemError(err error) string {
	switch {
	case errors.Is(err, errValidation), errors.Is(err, storage.ErrLogExists), errors.Is(err, storage.ErrLogNotFound):
		return err.Error()
	default:
		d.Logger.Error("Failed to apply log item", "error", err)
		return "internal error"
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errValidation):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrLogExists):
		return http.StatusConflict
	case errors.Is(err, storage.ErrLogNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (d *Dependencies) handleCreateLog(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var p models.LogCreatePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	row, err := d.createLog(r.Context(), keyProject(r.Context()), &p)
	if err != nil {
		utils.RespondWithError(w, statusFor(err), d.itemError(err))
		return
	}
	respondWithRecord(w, row)
}

func (d *Dependencies) handleUpdateLog(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var p models.LogUpdatePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	// the path wins over the body
	p.ID = r.PathValue("id")

	row, err := d.updateLog(r.Context(), keyProject(r.Context()), &p)
	if err != nil {
		utils.RespondWithError(w, statusFor(err), d.itemError(err))
		return
	}
	respondWithRecord(w, row)
}

func (d *Dependencies) handleGetLog(w http.ResponseWriter, r *http.Request) {
	row, err := d.Logs.Get(r.Context(), r.PathValue("id"))
	if err == nil {
		if projectID := keyProject(r.Context()); projectID != "" && row.ProjectID != projectID {
			err = storage.ErrLogNotFound
		}
	}
	if err != nil {
		utils.RespondWithError(w, statusFor(err), d.itemError(err))
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  http.StatusOK,
		"data":    row.Payload,
	})
}

func respondWithRecord(w http.ResponseWriter, row *models.LogRow) {
	utils.RespondWithJSON(w, http.StatusOK, models.LogResponse{
		Success: true,
		Data:    row.Record(),
		Status:  http.StatusOK,
	})
}

// keyProject returns the project the authenticated key is scoped to, if any
func keyProject(ctx context.Context) string {
	if rec, ok := middleware.GetAPIKeyRecord(ctx); ok {
		return rec.ProjectID
	}
	return ""
}

// payloadID reads the id of a payload that could not be decoded by type
func payloadID(raw json.RawMessage) string {
	var probe struct {
		ID string `json:"id"`
	}
	json.Unmarshal(raw, &probe)
	return probe.ID
}
