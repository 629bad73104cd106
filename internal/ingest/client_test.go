package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finetunedb/internal/deadletter"
	"finetunedb/internal/models"
	"finetunedb/internal/transport"
)

func TestEnqueueCreate_FrozenClockStillOrdersEvents(t *testing.T) {
	frozen := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sub := newFakeSubmitter()
	c := newTestClient(t, testConfig(), sub, WithClock(func() time.Time { return frozen }))

	for i := 0; i < 10; i++ {
		require.NotEmpty(t, c.EnqueueCreate(create(fmt.Sprintf("log-%d", i))))
	}

	items := c.PendingItems()
	require.Len(t, items, 10)
	for i := 1; i < len(items); i++ {
		assert.True(t, items[i].Sequence.After(items[i-1].Sequence))
		assert.Equal(t, fmt.Sprintf("log-%d", i), items[i].Payload.(*models.LogCreatePayload).Name)
	}
}

func TestEnqueueCreate_FillsPayload(t *testing.T) {
	sub := newFakeSubmitter()
	c := newTestClient(t, testConfig(), sub, WithIDGenerator(func() string { return "fixed-id" }))

	in := &models.LogCreatePayload{Name: "chat", Type: models.LogTypeChatCompletion}
	id := c.EnqueueCreate(in)
	assert.Equal(t, "fixed-id", id)
	assert.Empty(t, in.ID, "caller's payload is not modified")

	items := c.PendingItems()
	require.Len(t, items, 1)
	p := items[0].Payload.(*models.LogCreatePayload)
	assert.Equal(t, "fixed-id", p.ID)
	assert.Equal(t, "proj-1", p.ProjectID)
	assert.Equal(t, models.LogTypeChatCompletion, p.Type)
	assert.NotNil(t, p.Tags)
	assert.Equal(t, items[0].Sequence, p.CreatedAt)
	assert.Equal(t, p.CreatedAt, p.UpdatedAt)
	assert.Equal(t, KindCreate, items[0].Kind)

	id2 := c.EnqueueCreate(&models.LogCreatePayload{ProjectID: "other"})
	assert.Equal(t, "fixed-id", id2)
	assert.Equal(t, models.LogTypeOther, c.PendingItems()[1].Payload.(*models.LogCreatePayload).Type)
	assert.Equal(t, "other", c.PendingItems()[1].Payload.(*models.LogCreatePayload).ProjectID)
}

func TestSizeTriggerSubmitsImmediately(t *testing.T) {
	sub := newFakeSubmitter()
	c := newTestClient(t, testConfig(), sub)

	start := time.Now()
	for i := 0; i < 21; i++ {
		c.EnqueueCreate(create("burst"))
	}

	sub.waitCall(t, 2*time.Second)
	elapsed := time.Since(start)
	assert.Less(t, elapsed, 250*time.Millisecond, "size trigger should not wait for the debounce")

	calls := sub.submissions()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0].items, 21)
}

func TestDebounceSubmitsOnceAfterQuiet(t *testing.T) {
	cfg := testConfig()
	cfg.Debounce = 100 * time.Millisecond
	sub := newFakeSubmitter()
	c := newTestClient(t, cfg, sub)

	start := time.Now()
	for i := 0; i < 5; i++ {
		c.EnqueueCreate(create("quiet"))
	}

	sub.waitCall(t, 2*time.Second)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	time.Sleep(300 * time.Millisecond)
	calls := sub.submissions()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0].items, 5)
	assert.Equal(t, 0, c.Pending())
}

func TestDebounceIsTrailingEdge(t *testing.T) {
	sub := newFakeSubmitter()
	c := newTestClient(t, testConfig(), sub)

	for i := 0; i < 5; i++ {
		c.EnqueueCreate(create("first"))
	}
	time.Sleep(400 * time.Millisecond)
	require.Empty(t, sub.submissions(), "nothing may be sent inside the quiet window")

	sixth := time.Now()
	c.EnqueueCreate(create("sixth"))

	sub.waitCall(t, 2*time.Second)
	calls := sub.submissions()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0].items, 6)

	delay := calls[0].at.Sub(sixth)
	assert.GreaterOrEqual(t, delay, 450*time.Millisecond)
	assert.Less(t, delay, 900*time.Millisecond)
}

func TestMixedResponse(t *testing.T) {
	sub := newFakeSubmitter()
	sink := deadletter.NewMemoryQueue(10)
	ids := []string{"A", "B"}
	var idx int
	var idMu sync.Mutex
	gen := func() string {
		idMu.Lock()
		defer idMu.Unlock()
		id := ids[idx]
		idx++
		return id
	}
	sub.respond = func(call int, items []models.BulkItem) (transport.BulkResult, error) {
		// answers arrive in reverse order to prove matching is by id
		return transport.BulkPartialFailure{Results: []models.BulkItemResult{
			{ID: "B", Success: false, Error: "invalid payload"},
			okResult(items[0]),
		}}, nil
	}
	c := newTestClient(t, testConfig(), sub, WithIDGenerator(gen), WithDeadLetters(sink))

	require.Equal(t, "A", c.EnqueueCreate(create("a")))
	require.Equal(t, "B", c.EnqueueCreate(create("b")))
	require.NoError(t, c.Flush(context.Background()))

	times, ok := c.Lookup("A")
	require.True(t, ok)
	assert.False(t, times.CreatedAt.IsZero())

	_, ok = c.Lookup("B")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Pending())

	// neither is resubmitted
	require.NoError(t, c.Flush(context.Background()))
	assert.Len(t, sub.submissions(), 1)

	dead, err := sink.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "B", dead[0].CorrelationID)
	assert.Equal(t, "invalid payload", dead[0].Error)
	assert.Equal(t, "create", dead[0].Kind)
}

func TestTransportFailureKeepsItemsForNextRound(t *testing.T) {
	sub := newFakeSubmitter()
	sub.respond = func(call int, items []models.BulkItem) (transport.BulkResult, error) {
		if call == 0 {
			return nil, errors.New("connection reset")
		}
		return acceptAll(items), nil
	}
	c := newTestClient(t, testConfig(), sub)

	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, c.EnqueueCreate(create("retry")))
	}

	require.NoError(t, c.Flush(context.Background()), "failed rounds are not reported")
	assert.Equal(t, 3, c.Pending())
	for _, item := range c.PendingItems() {
		assert.Equal(t, StatusPending, item.Status)
	}

	require.NoError(t, c.Flush(context.Background()))
	assert.Equal(t, 0, c.Pending())

	calls := sub.submissions()
	require.Len(t, calls, 2)
	assert.Equal(t, calls[0].items, calls[1].items, "resubmitted unchanged")
	for i, id := range ids {
		assert.Equal(t, id, itemID(calls[1].items[i]))
	}
}

func TestOverallFailureKeepsItems(t *testing.T) {
	for _, result := range []transport.BulkResult{
		transport.BulkOverallFailure{Reason: "unauthorized", StatusCode: 401},
		transport.BulkOverallFailure{Reason: "server did not finish the batch", StatusCode: 200},
	} {
		sub := newFakeSubmitter()
		sub.respond = func(int, []models.BulkItem) (transport.BulkResult, error) { return result, nil }
		c := newTestClient(t, testConfig(), sub)

		c.EnqueueCreate(create("x"))
		require.NoError(t, c.Flush(context.Background()))
		assert.Equal(t, 1, c.Pending())
		assert.Len(t, sub.submissions(), 1, "a failed round does not loop")
	}
}

func TestFlushWithNothingPendingMakesNoCall(t *testing.T) {
	sub := newFakeSubmitter()
	c := newTestClient(t, testConfig(), sub)

	require.NoError(t, c.Flush(context.Background()))
	assert.Empty(t, sub.submissions())
}

func TestNoCredentialIsNoop(t *testing.T) {
	cfg := testConfig()
	cfg.APIKey = ""
	sub := newFakeSubmitter()
	c := newTestClient(t, cfg, sub)

	assert.False(t, c.Enabled())
	assert.Equal(t, "", c.EnqueueCreate(create("x")))
	c.EnqueueUpdate("some-id", &models.LogUpdatePayload{Name: "y"})
	assert.Equal(t, 0, c.Pending())

	require.NoError(t, c.Flush(context.Background()))
	assert.Empty(t, sub.submissions())
}

func TestMissingProjectIsNoop(t *testing.T) {
	cfg := testConfig()
	cfg.ProjectID = ""
	sub := newFakeSubmitter()
	c := newTestClient(t, cfg, sub)

	assert.Equal(t, "", c.EnqueueCreate(create("x")))
	assert.Equal(t, 0, c.Pending())

	assert.NotEmpty(t, c.EnqueueCreate(&models.LogCreatePayload{ProjectID: "explicit"}))
	assert.Equal(t, 1, c.Pending())
}

func TestEnqueueUpdate(t *testing.T) {
	sub := newFakeSubmitter()
	c := newTestClient(t, testConfig(), sub)

	c.EnqueueUpdate("", &models.LogUpdatePayload{Name: "ignored"})
	assert.Equal(t, 0, c.Pending())

	id := c.EnqueueCreate(create("parent"))
	c.EnqueueUpdate(id, &models.LogUpdatePayload{Output: "done", LatencyMs: models.Ptr(int64(12))})
	c.EnqueueUpdate(id, nil)

	items := c.PendingItems()
	require.Len(t, items, 3)
	for _, item := range items[1:] {
		assert.Equal(t, KindUpdate, item.Kind)
		p := item.Payload.(*models.LogUpdatePayload)
		assert.Equal(t, id, p.ID)
		require.NotNil(t, p.UpdatedAt)
		assert.Equal(t, item.Sequence, *p.UpdatedAt)
	}

	require.NoError(t, c.Flush(context.Background()))
	calls := sub.submissions()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].items, 3)
	assert.Equal(t, models.EventCreate, calls[0].items[0].Type)
	assert.Equal(t, models.EventUpdate, calls[0].items[1].Type)
	assert.Equal(t, models.EventUpdate, calls[0].items[2].Type)
	assert.Equal(t, 0, c.Pending())
}

func TestSameIDResultsMatchInSequenceOrder(t *testing.T) {
	sub := newFakeSubmitter()
	sub.respond = func(call int, items []models.BulkItem) (transport.BulkResult, error) {
		// create accepted, update rejected
		return transport.BulkPartialFailure{Results: []models.BulkItemResult{
			okResult(items[0]),
			{ID: itemID(items[1]), Success: false, Error: "stale update"},
		}}, nil
	}
	sink := deadletter.NewMemoryQueue(10)
	c := newTestClient(t, testConfig(), sub, WithDeadLetters(sink))

	id := c.EnqueueCreate(create("x"))
	c.EnqueueUpdate(id, &models.LogUpdatePayload{Name: "y"})
	require.NoError(t, c.Flush(context.Background()))

	_, ok := c.Lookup(id)
	assert.True(t, ok)
	dead, err := sink.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "update", dead[0].Kind)
}

func TestUnmatchedItemsStayPending(t *testing.T) {
	sub := newFakeSubmitter()
	sub.respond = func(call int, items []models.BulkItem) (transport.BulkResult, error) {
		if call == 0 {
			return transport.BulkSuccess{Results: []models.BulkItemResult{
				okResult(items[0]),
				{ID: "stranger", Success: true},
			}}, nil
		}
		return acceptAll(items), nil
	}
	c := newTestClient(t, testConfig(), sub)

	first := c.EnqueueCreate(create("a"))
	second := c.EnqueueCreate(create("b"))
	require.NoError(t, c.Flush(context.Background()))

	items := c.PendingItems()
	require.Len(t, items, 1)
	assert.Equal(t, second, items[0].CorrelationID)
	_, ok := c.Lookup(first)
	assert.True(t, ok)

	require.NoError(t, c.Flush(context.Background()))
	assert.Equal(t, 0, c.Pending())
	calls := sub.submissions()
	require.Len(t, calls, 2)
	require.Len(t, calls[1].items, 1)
	assert.Equal(t, second, itemID(calls[1].items[0]))
}

func TestSuccessWithoutRecordIsNotCached(t *testing.T) {
	sub := newFakeSubmitter()
	sub.respond = func(call int, items []models.BulkItem) (transport.BulkResult, error) {
		return transport.BulkSuccess{Results: []models.BulkItemResult{{ID: itemID(items[0]), Success: true}}}, nil
	}
	c := newTestClient(t, testConfig(), sub)

	id := c.EnqueueCreate(create("a"))
	require.NoError(t, c.Flush(context.Background()))
	assert.Equal(t, 0, c.Pending())
	_, ok := c.Lookup(id)
	assert.False(t, ok)
}

func TestEventsArrivingMidRoundAreDrainedWithoutDebounce(t *testing.T) {
	cfg := testConfig()
	cfg.Debounce = 5 * time.Second
	release := make(chan struct{})
	sub := newFakeSubmitter()
	sub.respond = func(call int, items []models.BulkItem) (transport.BulkResult, error) {
		if call == 0 {
			<-release
		}
		return acceptAll(items), nil
	}
	c := newTestClient(t, cfg, sub)

	for i := 0; i < 21; i++ {
		c.EnqueueCreate(create("first-burst"))
	}
	sub.waitCall(t, 2*time.Second)
	assert.True(t, c.InFlight())

	late := c.EnqueueCreate(create("late"))
	close(release)

	sub.waitCall(t, time.Second)
	calls := sub.submissions()
	require.Len(t, calls, 2)
	assert.Len(t, calls[0].items, 21)
	require.Len(t, calls[1].items, 1)
	assert.Equal(t, late, itemID(calls[1].items[0]))
}

func TestCloseFlushesAndStops(t *testing.T) {
	sub := newFakeSubmitter()
	c := NewClient(testConfig(), WithSubmitter(sub), WithLogger(quietLogger()))

	c.EnqueueCreate(create("before-close"))
	require.NoError(t, c.Close(context.Background()))
	require.Len(t, sub.submissions(), 1)

	assert.Equal(t, "", c.EnqueueCreate(create("after-close")))
	assert.ErrorIs(t, c.Flush(context.Background()), ErrClientClosed)
	assert.ErrorIs(t, c.Close(context.Background()), ErrClientClosed)
}

func TestFlushHonoursContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	sub := newFakeSubmitter()
	sub.respond = func(call int, items []models.BulkItem) (transport.BulkResult, error) {
		<-block
		return acceptAll(items), nil
	}
	c := NewClient(testConfig(), WithSubmitter(sub), WithLogger(quietLogger()))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		c.Close(ctx)
	}()

	c.EnqueueCreate(create("slow"))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Flush(ctx), context.DeadlineExceeded)
}

func TestConcurrentEnqueue(t *testing.T) {
	sub := newFakeSubmitter()
	c := newTestClient(t, testConfig(), sub)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				c.EnqueueCreate(create("concurrent"))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, c.Flush(context.Background()))

	total := 0
	seen := make(map[string]bool)
	for _, call := range sub.submissions() {
		var prev time.Time
		for _, bi := range call.items {
			ts := itemTime(bi)
			assert.True(t, ts.After(prev), "array order is sequence order")
			prev = ts
			seen[itemID(bi)] = true
			total++
		}
	}
	assert.Equal(t, 200, total)
	assert.Len(t, seen, 200)
	assert.Equal(t, 0, c.Pending())
}
