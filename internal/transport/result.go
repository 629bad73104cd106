package transport

import "finetunedb/internal/models"

// BulkResult is the decoded outcome of POST /ingestBulk. It is one of
// BulkSuccess, BulkPartialFailure or BulkOverallFailure.
type BulkResult interface {
	isBulkResult()
}

// BulkSuccess means the server accepted the batch and every item succeeded
type BulkSuccess struct {
	Results []models.BulkItemResult
}

// BulkPartialFailure means the server processed the batch and at least one item failed
type BulkPartialFailure struct {
	Results []models.BulkItemResult
}

// BulkOverallFailure means the batch as a whole was not processed.
// StatusCode is the HTTP status, which may be 2xx when the body reported the failure.
type BulkOverallFailure struct {
	Reason     string
	StatusCode int
}

func (BulkSuccess) isBulkResult()        {}
func (BulkPartialFailure) isBulkResult() {}
func (BulkOverallFailure) isBulkResult() {}

// classify turns a decoded 2xx body into a BulkResult
func classify(statusCode int, body *models.BulkResponse) BulkResult {
	if !body.Success {
		reason := body.Message
		if reason == "" {
			reason = "server reported success=false"
		}
		return BulkOverallFailure{Reason: reason, StatusCode: statusCode}
	}
	if !body.Finished {
		reason := body.Message
		if reason == "" {
			reason = "server did not finish the batch"
		}
		return BulkOverallFailure{Reason: reason, StatusCode: statusCode}
	}

	for _, r := range body.Data {
		if !r.Success {
			return BulkPartialFailure{Results: body.Data}
		}
	}
	return BulkSuccess{Results: body.Data}
}
