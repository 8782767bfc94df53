package service

import (
	"sync"
	"time"
)

// clockStep is the smallest createdAt increment. Postgres and MySQL keep
// microseconds.
const clockStep = time.Microsecond

// monotonicClock hands out strictly increasing UTC times.
type monotonicClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func newMonotonicClock(now func() time.Time) *monotonicClock {
	if now == nil {
		now = time.Now
	}
	return &monotonicClock{now: now}
}

func (c *monotonicClock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(clockStep)
	if !t.After(c.last) {
		t = c.last.Add(clockStep)
	}
	c.last = t
	return t
}
