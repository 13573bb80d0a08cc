package hub

import "sync"

// ConnState is the connection lifecycle state.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

// String returns the string representation of the connection state.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateReconnecting:
		return "Reconnecting"
	default:
		return "Unknown"
	}
}

// StateListener observes connection state transitions.
type StateListener func(old, new ConnState)

// stateListeners is a subscribe/unsubscribe observer list for state
// transitions. Explicit subscriptions replace the mutable callback
// slots the transport events would otherwise live in, so no listener
// can be silently overwritten by another.
type stateListeners struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]StateListener
}

func newStateListeners() *stateListeners {
	return &stateListeners{subs: make(map[int]StateListener)}
}

// subscribe registers fn and returns an unsubscribe function.
func (l *stateListeners) subscribe(fn StateListener) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.subs[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
	}
}

// notify invokes every listener with the transition.
// Listeners run outside the lock so they may subscribe or unsubscribe.
func (l *stateListeners) notify(old, new ConnState) {
	l.mu.Lock()
	fns := make([]StateListener, 0, len(l.subs))
	for _, fn := range l.subs {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(old, new)
	}
}
