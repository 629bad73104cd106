package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"finetunedb/internal/config"
	"finetunedb/internal/models"
	"finetunedb/internal/transport"
	"finetunedb/internal/utils"
)

type submission struct {
	items []models.BulkItem
	at    time.Time
}

// fakeSubmitter records every batch. respond decides the answer; the default
// acknowledges every item.
type fakeSubmitter struct {
	mu      sync.Mutex
	calls   []submission
	respond func(call int, items []models.BulkItem) (transport.BulkResult, error)
	calledC chan int
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{calledC: make(chan int, 100)}
}

func (f *fakeSubmitter) IngestBulk(ctx context.Context, items []models.BulkItem) (transport.BulkResult, error) {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, submission{items: items, at: time.Now()})
	respond := f.respond
	f.mu.Unlock()

	f.calledC <- call

	if respond == nil {
		return acceptAll(items), nil
	}
	return respond(call, items)
}

func (f *fakeSubmitter) submissions() []submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]submission, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeSubmitter) waitCall(t *testing.T, timeout time.Duration) int {
	t.Helper()
	select {
	case n := <-f.calledC:
		return n
	case <-time.After(timeout):
		t.Fatalf("no submission within %s", timeout)
		return -1
	}
}

func itemID(bi models.BulkItem) string {
	switch p := bi.Payload.(type) {
	case *models.LogCreatePayload:
		return p.ID
	case *models.LogUpdatePayload:
		return p.ID
	}
	return ""
}

func itemTime(bi models.BulkItem) time.Time {
	switch p := bi.Payload.(type) {
	case *models.LogCreatePayload:
		return p.CreatedAt
	case *models.LogUpdatePayload:
		if p.UpdatedAt != nil {
			return *p.UpdatedAt
		}
	}
	return time.Time{}
}

func okResult(bi models.BulkItem) models.BulkItemResult {
	id := itemID(bi)
	ts := itemTime(bi)
	return models.BulkItemResult{
		ID:      id,
		Success: true,
		Data:    &models.EventRecord{ID: id, Type: models.LogTypeOther, CreatedAt: ts, UpdatedAt: ts},
	}
}

func acceptAll(items []models.BulkItem) transport.BulkResult {
	results := make([]models.BulkItemResult, len(items))
	for i, bi := range items {
		results[i] = okResult(bi)
	}
	return transport.BulkSuccess{Results: results}
}

func testConfig() config.ClientConfig {
	return config.ClientConfig{
		APIKey:         "sk-test",
		ProjectID:      "proj-1",
		BaseURL:        "http://127.0.0.1:1",
		ChunkSize:      20,
		Debounce:       500 * time.Millisecond,
		RequestTimeout: 5 * time.Second,
	}
}

func quietLogger() *utils.Logger {
	return utils.NewLogger("ingest-test", utils.Critical)
}

func newTestClient(t *testing.T, cfg config.ClientConfig, sub Submitter, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithSubmitter(sub), WithLogger(quietLogger())}, opts...)
	c := NewClient(cfg, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.Close(ctx)
	})
	return c
}

func create(name string) *models.LogCreatePayload {
	return &models.LogCreatePayload{Name: name}
}
