package ingest

import (
	"context"
	"time"
)

// run is the worker loop. It is the only goroutine that talks to the network,
// so at most one round is ever in flight.
func (c *Client) run(ctx context.Context) {
	defer close(c.stoppedChan)

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	disarm := func() {
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
	}
	defer disarm()

	for {
		select {
		case <-c.stopChan:
			c.logger.Debug("Ingest worker stopping")
			return
		case <-ctx.Done():
			c.logger.Debug("Ingest worker context cancelled")
			return
		case <-c.notify:
			if c.store.Len() > c.chunkSize {
				disarm()
				c.drain(ctx)
				continue
			}
			// trailing edge: every enqueue pushes the deadline back
			disarm()
			timer = time.NewTimer(c.debounce)
			timerC = timer.C
		case <-timerC:
			timer, timerC = nil, nil
			c.drain(ctx)
		case done := <-c.flushReq:
			disarm()
			c.drain(ctx)
			close(done)
		}
	}
}

// drain runs rounds until one fails or nothing new arrived during the last one
func (c *Client) drain(ctx context.Context) {
	for {
		c.inFlight.Store(true)
		last, ok := c.reconciler.round(ctx)
		c.inFlight.Store(false)
		if !ok || !c.store.pendingAfter(last) {
			return
		}
		c.logger.Debug("Events arrived during submission, starting another round")
	}
}
