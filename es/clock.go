package es

import (
	"sync"
	"time"
)

// Clock hands out strictly increasing Timestamps. A single process-wide
// Clock backs the event record factory (see NewRecord) so that two
// events authored back-to-back in the same process never collide on
// Created, even when the wall clock has not advanced between them.
//
// Clock is safe for concurrent use.
type Clock struct {
	mu   sync.Mutex
	last Timestamp
	now  func() time.Time
}

// NewClock returns a Clock driven by the real wall clock.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Now returns a Timestamp strictly greater than every Timestamp
// previously returned by this Clock.
func (c *Clock) Now() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := NewTimestamp(c.now())
	if !next.After(c.last) {
		next = c.last.Bump()
	}
	c.last = next
	return next
}

// defaultClock is shared by NewRecord callers that don't supply one of
// their own.
var defaultClock = NewClock()
