package hub

import (
	"context"
	"sync"
)

// RecoveryGate makes invokes wait out a foreground-recovery episode.
//
// While the gate is closed (app resumed, forced token refresh in
// flight) new invocations block in Wait so they never go out with a
// token known to be stale; invocations already past the gate are
// unaffected. Opening the gate releases all waiters at once.
type RecoveryGate struct {
	mu     sync.Mutex
	open   chan struct{} // closed channel == gate open
	closed bool
}

// NewRecoveryGate creates an open gate.
func NewRecoveryGate() *RecoveryGate {
	g := &RecoveryGate{open: make(chan struct{})}
	close(g.open)
	return g
}

// Close closes the gate, beginning a recovery episode. Closing an
// already-closed gate is a no-op.
func (g *RecoveryGate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true
	g.open = make(chan struct{})
}

// Open reopens the gate, ending the episode and releasing every waiter
// simultaneously. Opening an open gate is a no-op.
func (g *RecoveryGate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		return
	}
	g.closed = false
	close(g.open)
}

// IsClosed reports whether a recovery episode is active.
func (g *RecoveryGate) IsClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// Wait blocks until the gate is open or ctx is done.
func (g *RecoveryGate) Wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.open
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
