package ingest

import (
	"context"
	"time"

	"finetunedb/internal/deadletter"
	"finetunedb/internal/metrics"
	"finetunedb/internal/models"
	"finetunedb/internal/transport"
	"finetunedb/internal/utils"
)

// Submitter sends a batch to the ingestion endpoint
type Submitter interface {
	IngestBulk(ctx context.Context, items []models.BulkItem) (transport.BulkResult, error)
}

// reconciler performs submission rounds against the store
type reconciler struct {
	store          *Store
	cache          *RefCache
	submitter      Submitter
	deadLetters    deadletter.Sink
	metrics        metrics.Recorder
	logger         *utils.Logger
	requestTimeout time.Duration
}

// round submits every pending item once and applies the answer.
// It returns the sequence of the last submitted item and whether the round
// succeeded. An empty store is not a success: there is nothing to drain.
func (r *reconciler) round(ctx context.Context) (time.Time, bool) {
	snapshot := r.store.snapshot()
	if len(snapshot) == 0 {
		return time.Time{}, false
	}
	last := snapshot[len(snapshot)-1].Sequence

	batch := make([]models.BulkItem, len(snapshot))
	for i, item := range snapshot {
		batch[i] = item.bulkItem()
	}

	roundCtx, cancel := context.WithTimeout(ctx, r.requestTimeout)
	defer cancel()

	start := time.Now()
	result, err := r.submitter.IngestBulk(roundCtx, batch)
	elapsed := time.Since(start)
	if err != nil {
		r.logger.Warn("Bulk ingest failed, items stay queued", "items", len(batch), "error", err)
		r.metrics.RecordRound(ctx, metrics.OutcomeTransportError, len(batch), elapsed)
		return last, false
	}

	var results []models.BulkItemResult
	switch res := result.(type) {
	case transport.BulkOverallFailure:
		r.logger.Warn("Bulk ingest rejected, items stay queued", "items", len(batch), "status", res.StatusCode, "reason", res.Reason)
		r.metrics.RecordRound(ctx, metrics.OutcomeRejected, len(batch), elapsed)
		return last, false
	case transport.BulkPartialFailure:
		r.metrics.RecordRound(ctx, metrics.OutcomePartialFailure, len(batch), elapsed)
		results = res.Results
	case transport.BulkSuccess:
		r.metrics.RecordRound(ctx, metrics.OutcomeSuccess, len(batch), elapsed)
		results = res.Results
	default:
		r.logger.Error("Unexpected bulk result", "type", result)
		return last, false
	}

	removed := r.store.settle(r.match(snapshot, results))

	var dead []deadletter.Item
	var succeeded, failed int
	for _, item := range removed {
		switch item.Status {
		case StatusSuccess:
			succeeded++
			if item.Record.Complete() {
				r.cache.Record(item.CorrelationID, item.Record.CreatedAt, item.Record.UpdatedAt)
			}
		case StatusError:
			// The server's item-level verdict is final: rejected items are not
			// retried, even when the cause may have been transient.
			failed++
			r.logger.Warn("Log event rejected by server", "id", item.CorrelationID, "kind", item.Kind, "error", item.Err)
			dead = append(dead, deadletter.NewItem(string(item.Kind), item.CorrelationID, item.Payload, item.Err))
		}
	}

	r.metrics.RecordResolved(ctx, StatusSuccess.String(), succeeded)
	r.metrics.RecordResolved(ctx, StatusError.String(), failed)
	r.metrics.RecordPending(ctx, r.store.Len())

	if len(dead) > 0 && r.deadLetters != nil {
		if err := r.deadLetters.Add(ctx, dead...); err != nil {
			r.logger.Error("Failed to store rejected events", "count", len(dead), "error", err)
		}
	}

	if unresolved := len(snapshot) - len(removed); unresolved > 0 {
		r.logger.Debug("Items missing from bulk response stay queued", "count", unresolved)
	}
	return last, true
}

// match pairs response entries with snapshot items by correlation id.
// A create and its updates share an id, so entries for the same id are
// assigned to that id's items in sequence order.
func (r *reconciler) match(snapshot []*Item, results []models.BulkItemResult) map[*Item]resolution {
	byID := make(map[string][]*Item, len(snapshot))
	for _, item := range snapshot {
		byID[item.CorrelationID] = append(byID[item.CorrelationID], item)
	}

	resolutions := make(map[*Item]resolution, len(results))
	for _, res := range results {
		queue := byID[res.ID]
		if len(queue) == 0 {
			r.logger.Debug("Ignoring bulk result for unknown id", "id", res.ID)
			continue
		}
		item := queue[0]
		byID[res.ID] = queue[1:]

		if res.Success {
			resolutions[item] = resolution{status: StatusSuccess, record: res.Data}
			continue
		}
		reason := res.Error
		if reason == "" {
			reason = "rejected without reason"
		}
		resolutions[item] = resolution{status: StatusError, err: reason}
	}
	return resolutions
}
