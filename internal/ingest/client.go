package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"finetunedb/internal/config"
	"finetunedb/internal/deadletter"
	"finetunedb/internal/metrics"
	"finetunedb/internal/models"
	"finetunedb/internal/transport"
	"finetunedb/internal/utils"
)

// Client queues log events and ships them to the ingestion API in batches.
//
// Enqueue methods never block on the network and never fail: when the client
// has no API key, or a create has no project id, they do nothing and a single
// warning is logged.
type Client struct {
	apiKey    string
	projectID string
	chunkSize int
	debounce  time.Duration

	sequencer  *Sequencer
	store      *Store
	cache      *RefCache
	reconciler *reconciler
	newID      IDGenerator
	metrics    metrics.Recorder
	logger     *utils.Logger

	notify      chan struct{}
	flushReq    chan chan struct{}
	stopChan    chan struct{}
	stoppedChan chan struct{}
	cancel      context.CancelFunc

	// enqueueMu makes stamping and queueing one step, so store order is sequence order
	enqueueMu sync.Mutex

	inFlight  atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once

	warnKeyOnce     sync.Once
	warnProjectOnce sync.Once
	warnClosedOnce  sync.Once
}

type options struct {
	clock       Clock
	newID       IDGenerator
	submitter   Submitter
	deadLetters deadletter.Sink
	metrics     metrics.Recorder
	logger      *utils.Logger
}

// Option configures a Client
type Option func(*options)

// WithClock replaces the wall clock used for sequencing
func WithClock(clock Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithIDGenerator replaces the UUID generator used for creates
func WithIDGenerator(gen IDGenerator) Option {
	return func(o *options) { o.newID = gen }
}

// WithSubmitter replaces the HTTP transport
func WithSubmitter(s Submitter) Option {
	return func(o *options) { o.submitter = s }
}

// WithDeadLetters sends events rejected by the server to sink
func WithDeadLetters(sink deadletter.Sink) Option {
	return func(o *options) { o.deadLetters = sink }
}

// WithMetrics reports queue activity to rec
func WithMetrics(rec metrics.Recorder) Option {
	return func(o *options) { o.metrics = rec }
}

// WithLogger replaces the default logger
func WithLogger(l *utils.Logger) Option {
	return func(o *options) { o.logger = l }
}

// NewClient creates a client and starts its worker. Call Close to flush and stop it.
func NewClient(cfg config.ClientConfig, opts ...Option) *Client {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.newID == nil {
		o.newID = NewID
	}
	if o.metrics == nil {
		o.metrics = metrics.Noop{}
	}
	if o.logger == nil {
		o.logger = utils.NewLogger("ingest")
	}
	if o.submitter == nil {
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = config.DefaultBaseURL
		}
		o.submitter = transport.NewClient(baseURL, cfg.APIKey)
	}

	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 20
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	store := NewStore()
	cache := NewRefCache()

	c := &Client{
		apiKey:    cfg.APIKey,
		projectID: cfg.ProjectID,
		chunkSize: chunkSize,
		debounce:  debounce,
		sequencer: NewSequencer(o.clock),
		store:     store,
		cache:     cache,
		reconciler: &reconciler{
			store:          store,
			cache:          cache,
			submitter:      o.submitter,
			deadLetters:    o.deadLetters,
			metrics:        o.metrics,
			logger:         o.logger,
			requestTimeout: requestTimeout,
		},
		newID:       o.newID,
		metrics:     o.metrics,
		logger:      o.logger,
		notify:      make(chan struct{}, 1),
		flushReq:    make(chan chan struct{}),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(ctx)

	return c
}

// Enabled reports whether the client has an API key
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// ProjectID returns the default project id for creates
func (c *Client) ProjectID() string {
	return c.projectID
}

// EnqueueCreate queues a new log entry and returns its id, or "" when the
// entry was not queued. The payload is copied; id, createdAt and updatedAt
// are assigned here. A payload without a project id uses the client's default.
func (c *Client) EnqueueCreate(payload *models.LogCreatePayload) string {
	if !c.accepting() {
		return ""
	}

	p := models.LogCreatePayload{}
	if payload != nil {
		p = *payload
	}
	if p.ProjectID == "" {
		p.ProjectID = c.projectID
	}
	if p.ProjectID == "" {
		c.warnProjectOnce.Do(func() {
			c.logger.Warn("No project id configured, logs will not be sent")
		})
		return ""
	}
	if p.ID == "" {
		p.ID = c.newID()
	}
	if p.Type == "" {
		p.Type = models.LogTypeOther
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}

	c.enqueueMu.Lock()
	seq := c.sequencer.Next()
	p.CreatedAt = seq
	p.UpdatedAt = seq
	c.store.add(&Item{
		CorrelationID: p.ID,
		Kind:          KindCreate,
		Payload:       &p,
		Sequence:      seq,
	})
	c.enqueueMu.Unlock()

	c.notifyWorker(KindCreate)
	return p.ID
}

// EnqueueUpdate queues a partial update of log id. An empty id is ignored
// silently: it belongs to a create that was never queued.
func (c *Client) EnqueueUpdate(id string, payload *models.LogUpdatePayload) {
	if id == "" || !c.accepting() {
		return
	}

	p := models.LogUpdatePayload{}
	if payload != nil {
		p = *payload
	}
	p.ID = id

	c.enqueueMu.Lock()
	seq := c.sequencer.Next()
	p.UpdatedAt = &seq
	c.store.add(&Item{
		CorrelationID: id,
		Kind:          KindUpdate,
		Payload:       &p,
		Sequence:      seq,
	})
	c.enqueueMu.Unlock()

	c.notifyWorker(KindUpdate)
}

func (c *Client) accepting() bool {
	if c.closed.Load() {
		c.warnClosedOnce.Do(func() {
			c.logger.Warn("Ingest client is closed, dropping log events")
		})
		return false
	}
	if c.apiKey == "" {
		c.warnKeyOnce.Do(func() {
			c.logger.Warn("No API key configured, logs will not be sent")
		})
		return false
	}
	return true
}

func (c *Client) notifyWorker(kind Kind) {
	c.metrics.RecordEnqueued(context.Background(), string(kind))

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Lookup returns the server timestamps of an acknowledged log entry
func (c *Client) Lookup(id string) (EventTimes, bool) {
	return c.cache.Lookup(id)
}

// Pending returns the number of events waiting to be acknowledged
func (c *Client) Pending() int {
	return c.store.Len()
}

// PendingItems returns copies of the queued events in sequence order
func (c *Client) PendingItems() []Item {
	return c.store.Items()
}

// InFlight reports whether a submission round is running
func (c *Client) InFlight() bool {
	return c.inFlight.Load()
}

// Flush submits everything queued so far and waits for the round to finish.
// Failed rounds are not reported: the events stay queued for the next trigger.
func (c *Client) Flush(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	return c.flush(ctx)
}

func (c *Client) flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case c.flushReq <- done:
	case <-c.stoppedChan:
		return ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-c.stoppedChan:
		return ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes once and stops the worker. Events still queued afterwards are lost.
func (c *Client) Close(ctx context.Context) error {
	err := ErrClientClosed
	c.closeOnce.Do(func() {
		err = c.flush(ctx)
		c.closed.Store(true)
		close(c.stopChan)

		select {
		case <-c.stoppedChan:
		case <-ctx.Done():
			if err == nil {
				err = ctx.Err()
			}
		}
		c.cancel()

		if left := c.store.Len(); left > 0 {
			c.logger.Warn("Ingest client closed with unsent events", "pending", left)
		}
	})
	return err
}
