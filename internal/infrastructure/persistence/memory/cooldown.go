package memory

import (
	"context"
	"sync"
	"time"
)

// Cooldown tracks the last send per email in process memory.
type Cooldown struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

func NewCooldown(now func() time.Time) *Cooldown {
	if now == nil {
		now = time.Now
	}
	return &Cooldown{until: make(map[string]time.Time), now: now}
}

func (c *Cooldown) Acquire(ctx context.Context, email string, window time.Duration) (bool, error) {
	if window <= 0 {
		return true, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if until, ok := c.until[email]; ok && now.Before(until) {
		return false, nil
	}
	c.until[email] = now.Add(window)

	// Drop stale entries so the map does not grow with every address seen.
	for k, until := range c.until {
		if !now.Before(until) {
			delete(c.until, k)
		}
	}
	return true, nil
}

func (c *Cooldown) Release(ctx context.Context, email string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.until, email)
	return nil
}
