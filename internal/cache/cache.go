// Package cache implements the process-wide operation cache: a FIFO of
// eventually-consistent, cacheable batches with a soft byte cap. Push
// flushes automatically when the cap is exceeded and Shutdown flushes what
// is left; every other flush happens only when a caller invokes Flush.
package cache

import (
	"context"
	"sync"

	"github.com/dreamware/julea/internal/batch"
)

// Sizer is implemented by callers that can report how many bulk-data bytes
// a cached batch carries, used against the soft cap.
type Sizer interface {
	CacheSize() int
}

type entry struct {
	b     *batch.Batch
	bytes int
}

// Cache is a single process-wide FIFO guarded by one mutex; flush always
// runs on the caller's goroutine rather than a background one.
type Cache struct {
	mu      sync.Mutex
	cap     int
	entries []entry
	size    int
	closed  bool
}

// New returns an empty cache with the given soft byte cap.
func New(capBytes int) *Cache {
	return &Cache{cap: capBytes}
}

// Push enqueues a batch. If it carries a known size (via Sizer), that size
// counts against the cap; unsized batches count as zero bytes but still
// occupy a FIFO slot. Push triggers an automatic flush if the cap is now
// exceeded.
func (c *Cache) Push(ctx context.Context, b *batch.Batch) error {
	bytes := 0
	if s, ok := any(b).(Sizer); ok {
		bytes = s.CacheSize()
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return b.ExecuteInternal(ctx)
	}
	c.entries = append(c.entries, entry{b: b, bytes: bytes})
	c.size += bytes
	exceeded := c.size > c.cap && c.cap > 0
	c.mu.Unlock()

	if exceeded {
		return c.Flush(ctx)
	}
	return nil
}

// Flush drains the queue, calling ExecuteInternal on each entry in
// enqueue order, and returns the first error encountered (continuing to
// drain the rest regardless, so a later entry isn't silently skipped).
func (c *Cache) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked(ctx)
}

func (c *Cache) flushLocked(ctx context.Context) error {
	pending := c.entries
	c.entries = nil
	c.size = 0

	var firstErr error
	for _, e := range pending {
		if err := e.b.ExecuteInternal(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Len reports the number of batches currently queued.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Shutdown flushes any remaining batches and refuses further caching;
// subsequent Push calls flush their argument immediately instead of
// queuing it.
func (c *Cache) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.Flush(ctx)
}
