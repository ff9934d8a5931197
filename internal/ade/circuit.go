package ade

import (
	"sync"
	"time"
)

// circuit tracks rate-limit backoff for a client.
type circuit struct {
	mu      sync.RWMutex
	resetAt time.Time // zero value = closed (healthy)
}

func (c *circuit) isOpenWithReset(now time.Time) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resetAt, !c.resetAt.IsZero() && now.Before(c.resetAt)
}

func (c *circuit) open(resetAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if resetAt.After(c.resetAt) {
		c.resetAt = resetAt
	}
}

func (c *circuit) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetAt = time.Time{}
}
