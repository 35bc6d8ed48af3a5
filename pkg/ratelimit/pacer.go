// Package ratelimit paces calls to the evaluation oracle. A single-process
// deployment uses the in-memory Pacer; multi-instance deployments share the
// oracle budget through the Redis-backed limiter.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Pacer enforces a minimum interval between successive calls to a shared
// external resource. Concurrent callers are queued onto evenly spaced slots.
type Pacer struct {
	interval time.Duration

	mu   sync.Mutex
	next time.Time
}

// NewPacer creates a Pacer with the given minimum interval between calls
func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{interval: interval}
}

// Wait blocks until the interval since the previously permitted call has
// elapsed, or the context is done
func (p *Pacer) Wait(ctx context.Context) error {
	if p.interval <= 0 {
		return ctx.Err()
	}

	p.mu.Lock()
	now := time.Now()
	wait := p.next.Sub(now)
	if wait < 0 {
		wait = 0
	}
	p.next = now.Add(wait + p.interval)
	p.mu.Unlock()

	if wait == 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}
