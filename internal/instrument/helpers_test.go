package instrument

import (
	"fmt"
	"sync"

	"finetunedb/internal/models"
)

// recordingLogs captures payloads instead of queueing them
type recordingLogs struct {
	mu      sync.Mutex
	creates []*models.LogCreatePayload
	updates map[string][]*models.LogUpdatePayload
}

func newRecordingLogs() *recordingLogs {
	return &recordingLogs{updates: make(map[string][]*models.LogUpdatePayload)}
}

func (r *recordingLogs) EnqueueCreate(p *models.LogCreatePayload) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates = append(r.creates, p)
	return fmt.Sprintf("log-%d", len(r.creates))
}

func (r *recordingLogs) EnqueueUpdate(id string, p *models.LogUpdatePayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates[id] = append(r.updates[id], p)
}

func (r *recordingLogs) created() []*models.LogCreatePayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.LogCreatePayload, len(r.creates))
	copy(out, r.creates)
	return out
}
