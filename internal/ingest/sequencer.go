package ingest

import (
	"sync"
	"time"
)

// Clock returns the current time
type Clock func() time.Time

// Sequencer hands out strictly increasing millisecond timestamps.
// When the clock has not advanced past the last value (coarse clock, burst of
// events, or the clock stepping backwards) it returns last+1ms instead.
type Sequencer struct {
	mu    sync.Mutex
	clock Clock
	last  time.Time
}

// NewSequencer creates a sequencer reading from clock; nil means time.Now
func NewSequencer(clock Clock) *Sequencer {
	if clock == nil {
		clock = time.Now
	}
	return &Sequencer{clock: clock}
}

// Next returns the next sequence value
func (s *Sequencer) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.clock().UTC().Truncate(time.Millisecond)
	if !next.After(s.last) {
		next = s.last.Add(time.Millisecond)
	}
	s.last = next
	return next
}

// Last returns the most recent value handed out, zero if none
func (s *Sequencer) Last() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
