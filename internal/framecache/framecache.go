// Package framecache is the tracker's private single-slot hand-off between
// the task copying frames off the bus and the task analyzing them.
//
// The copier overwrites the slot with every new frame. The analyzer holds
// the slot's lock for a whole analysis pass, so the copier blocks instead of
// tearing the frame under analysis; once the pass ends the copier stores the
// newest frame and any frames published meanwhile are skipped.
package framecache

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned once the cache is closed.
var ErrClosed = errors.New("framecache: closed")

// LocalFrame is the cached copy of the latest frame. Data is owned by the
// cache and valid only for the duration of the Analyze callback.
type LocalFrame struct {
	FrameID int64
	Width   int
	Height  int
	Data    []byte
}

// Cache is the single-slot frame store. The zero value is not usable; use
// New.
type Cache struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frame  LocalFrame
	has    bool
	closed bool

	analyzedID int64
	stored     uint64
	skipped    uint64
}

// New returns an empty cache.
func New() *Cache {
	c := &Cache{analyzedID: -1}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Store copies data into the slot, replacing the previous frame. It blocks
// while an analysis pass is running.
func (c *Cache) Store(frameID int64, width, height int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.has && c.frame.FrameID != c.analyzedID {
		c.skipped++
	}
	c.frame.FrameID = frameID
	c.frame.Width = width
	c.frame.Height = height
	c.frame.Data = append(c.frame.Data[:0], data...)
	c.has = true
	c.stored++
	c.cond.Broadcast()
	return nil
}

// Analyze waits for a frame whose id differs from after, then runs fn with
// the slot locked and returns the id it analyzed. Store blocks until fn
// returns.
func (c *Cache) Analyze(ctx context.Context, after int64, fn func(LocalFrame) error) (int64, error) {
	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		if c.closed {
			return after, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return after, err
		}
		if c.has && c.frame.FrameID != after {
			break
		}
		c.cond.Wait()
	}
	c.analyzedID = c.frame.FrameID
	return c.frame.FrameID, fn(c.frame)
}

// Latest returns a copy of the cached frame, if any.
func (c *Cache) Latest() (LocalFrame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.has {
		return LocalFrame{}, false
	}
	out := c.frame
	out.Data = append([]byte(nil), c.frame.Data...)
	return out, true
}

// Stats reports how many frames were stored and how many were replaced
// before any analysis pass saw them.
func (c *Cache) Stats() (stored, skipped uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stored, c.skipped
}

// Close wakes every waiter; later calls to Store and Analyze fail.
func (c *Cache) Close() {
	c.mu.Lock()
	c.closed = true
	c.cond.Broadcast()
	c.mu.Unlock()
}
