package control

import (
	"context"
	"sync"
)

// Gate is the tracking-enabled flag. Waiters block until it opens.
type Gate struct {
	mu      sync.Mutex
	enabled bool
	changed chan struct{}
}

// NewGate returns a gate in the given state.
func NewGate(enabled bool) *Gate {
	return &Gate{enabled: enabled, changed: make(chan struct{})}
}

// Set changes the state and reports whether it changed.
func (g *Gate) Set(enabled bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.enabled == enabled {
		return false
	}
	g.enabled = enabled
	close(g.changed)
	g.changed = make(chan struct{})
	return true
}

// Enabled reports the current state.
func (g *Gate) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled
}

// Wait blocks until the gate is open or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		if g.enabled {
			g.mu.Unlock()
			return nil
		}
		changed := g.changed
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}
