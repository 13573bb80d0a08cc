package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hubwire-dev/hubwire/pkg/protocol"
)

// TokenSource supplies a credential for one connect attempt. It is
// invoked fresh on every (re)connect so a refreshed token is always the
// one that goes out. An empty string is a valid return: the server is
// expected to reject it, which is what drives auth recovery.
type TokenSource func(ctx context.Context) string

// connectAttempt is the shared completion signal for an in-flight
// connect. The first caller creates and runs it; concurrent callers
// await the same handle instead of starting a second transport.
type connectAttempt struct {
	done chan struct{}
	err  error
}

// Connection owns the transport connection's lifecycle: the
// Disconnected → Connecting → Connected state machine, the automatic
// reconnect schedule, and the pending-invocation table. It is an
// explicitly constructed, injectable instance: dependents hold a
// reference, there is no ambient global.
type Connection struct {
	cfg       *ClientConfig
	dialer    Dialer
	tokens    TokenSource
	logger    *slog.Logger
	metrics   *Metrics
	listeners *stateListeners

	mu                sync.Mutex
	state             ConnState
	conn              Conn
	gen               uint64 // bumped per connection; invalidates stale loops
	attempt           *connectAttempt
	pending           map[string]chan *protocol.Completion
	suppressReconnect bool
}

// NewConnection creates a disconnected Connection. tokens is consulted
// on every connect attempt.
func NewConnection(cfg *ClientConfig, tokens TokenSource) *Connection {
	cfg = cfg.Clone()
	cfg.normalize()
	return &Connection{
		cfg:       cfg,
		dialer:    cfg.Dialer,
		tokens:    tokens,
		logger:    cfg.logger().With("component", "connection"),
		metrics:   cfg.Metrics,
		listeners: newStateListeners(),
		pending:   make(map[string]chan *protocol.Completion),
	}
}

// State returns the current connection state.
func (c *Connection) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange subscribes fn to state transitions and returns an
// unsubscribe function.
func (c *Connection) OnStateChange(fn StateListener) func() {
	return c.listeners.subscribe(fn)
}

// EnsureConnected makes the connection Connected, or returns why it
// could not. Already connected is a no-op. If a connect attempt is in
// flight the caller awaits its shared completion signal rather than
// dialing a second transport. While an automatic reconnect is running
// EnsureConnected returns nil immediately and leaves the backoff
// schedule to it; callers observe the outcome through State.
func (c *Connection) EnsureConnected(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	if a := c.attempt; a != nil {
		c.mu.Unlock()
		select {
		case <-a.done:
			return a.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if c.state == StateReconnecting {
		// The reconnect loop owns the transport. Dialing here would
		// flip the state under it and abandon the rest of the schedule.
		c.mu.Unlock()
		return nil
	}

	a := &connectAttempt{done: make(chan struct{})}
	c.attempt = a
	startGen := c.gen
	stale := c.conn
	c.conn = nil
	c.closePendingLocked()
	old := c.state
	c.state = StateConnecting
	c.mu.Unlock()

	if stale != nil {
		stale.Close()
	}
	c.notify(old, StateConnecting)

	conn, err := c.dial(ctx)

	c.mu.Lock()
	if err == nil && c.gen != startGen {
		// Stop raced the dial; discard the fresh transport.
		err = ErrConnectionClosed
		defer conn.Close()
		conn = nil
	}

	var myGen uint64
	from := c.state
	if err == nil {
		c.gen++
		myGen = c.gen
		c.conn = conn
		c.state = StateConnected
	} else {
		c.state = StateDisconnected
	}
	a.err = err
	c.attempt = nil
	to := c.state
	c.mu.Unlock()

	c.notify(from, to)
	close(a.done)

	if err != nil {
		return err
	}
	go c.readLoop(conn, myGen)
	return nil
}

// Stop idempotently closes the transport and resets internal flags.
// Pending completions are discarded; a later EnsureConnected starts
// from scratch.
func (c *Connection) Stop() {
	c.mu.Lock()
	c.gen++
	conn := c.conn
	c.conn = nil
	c.closePendingLocked()
	c.suppressReconnect = false
	old := c.state
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.notify(old, StateDisconnected)
}

// Restart tears the connection down and dials again. Used by invoke
// when connect-wait polling times out, and by auth recovery.
func (c *Connection) Restart(ctx context.Context) error {
	c.Stop()
	return c.EnsureConnected(ctx)
}

// Invoke writes inv and, unless it is fire-and-forget, awaits the
// Completion correlated by invocation id.
func (c *Connection) Invoke(ctx context.Context, inv *protocol.Invocation) (*protocol.Completion, error) {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	conn := c.conn
	var ch chan *protocol.Completion
	if inv.InvocationID != "" {
		ch = make(chan *protocol.Completion, 1)
		c.pending[inv.InvocationID] = ch
	}
	c.mu.Unlock()

	if err := conn.Write(protocol.EncodeMessage(inv)); err != nil {
		c.removePending(inv.InvocationID)
		return nil, &TransportError{Op: "send", Err: err}
	}

	if ch == nil {
		return nil, nil // fire-and-forget
	}

	timer := time.NewTimer(c.cfg.InvokeTimeout)
	defer timer.Stop()

	select {
	case comp := <-ch:
		if comp == nil {
			return nil, ErrConnectionClosed
		}
		return comp, nil
	case <-timer.C:
		c.removePending(inv.InvocationID)
		return nil, ErrInvokeTimeout
	case <-ctx.Done():
		c.removePending(inv.InvocationID)
		return nil, ctx.Err()
	}
}

func (c *Connection) dial(ctx context.Context) (Conn, error) {
	token := c.tokens(ctx)

	dctx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()

	return c.dialer.Dial(dctx, c.cfg.Endpoint, token)
}

func (c *Connection) readLoop(conn Conn, gen uint64) {
	parser := protocol.NewParser()
	parser.DropHandler = func(err error) {
		c.logger.Warn("dropped wire frame", "error", err)
		c.metrics.frameDropped()
	}

	for {
		data, err := conn.Read()
		if err != nil {
			c.handleReadError(conn, gen, err)
			return
		}

		msgs, perr := parser.Push(data)
		for _, m := range msgs {
			c.handleMessage(conn, m)
		}
		if perr != nil {
			c.logger.Error("wire stream corrupted", "error", perr)
			c.handleReadError(conn, gen, perr)
			return
		}
	}
}

func (c *Connection) handleMessage(conn Conn, m protocol.HubMessage) {
	switch msg := m.(type) {
	case *protocol.Completion:
		c.mu.Lock()
		ch, ok := c.pending[msg.InvocationID]
		if ok {
			delete(c.pending, msg.InvocationID)
		}
		c.mu.Unlock()
		if ok {
			ch <- msg
		} else {
			c.logger.Debug("completion for unknown invocation", "invocation_id", msg.InvocationID)
		}

	case *protocol.Ping:
		// Answer server keepalives transparently.
		if err := conn.Write(protocol.EncodeMessage(&protocol.Ping{})); err != nil {
			c.logger.Debug("ping reply failed", "error", err)
		}

	case *protocol.Close:
		if msg.Error != "" {
			c.logger.Warn("server closing connection", "error", msg.Error, "allow_reconnect", msg.AllowReconnect)
		} else {
			c.logger.Info("server closing connection", "allow_reconnect", msg.AllowReconnect)
		}
		c.mu.Lock()
		if !msg.AllowReconnect {
			c.suppressReconnect = true
		}
		c.mu.Unlock()
		conn.Close()

	default:
		c.logger.Debug("unhandled hub message", "type", m.MessageType().String())
	}
}

// handleReadError runs when a connection's read loop dies. It decides
// between the automatic reconnect schedule and going Disconnected.
func (c *Connection) handleReadError(conn Conn, gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen || c.conn != conn {
		// A Stop or restart already superseded this connection.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.closePendingLocked()

	noReconnect := c.suppressReconnect
	c.suppressReconnect = false

	old := c.state
	if noReconnect {
		c.state = StateDisconnected
		c.mu.Unlock()
		conn.Close()
		c.notify(old, StateDisconnected)
		return
	}
	c.state = StateReconnecting
	c.mu.Unlock()

	conn.Close()
	c.logger.Warn("connection lost, reconnecting", "error", err)
	c.notify(old, StateReconnecting)

	go c.reconnectLoop(gen)
}

// reconnectLoop runs the fixed backoff schedule after an unexpected
// close. Exhaustion transitions to Disconnected.
func (c *Connection) reconnectLoop(gen uint64) {
	for i, delay := range c.cfg.ReconnectSchedule {
		if delay > 0 {
			time.Sleep(delay)
		}

		c.mu.Lock()
		if gen != c.gen || c.state != StateReconnecting {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		conn, err := c.dial(context.Background())
		if err != nil {
			c.logger.Warn("reconnect attempt failed",
				"attempt", i+1,
				"of", len(c.cfg.ReconnectSchedule),
				"error", err)
			continue
		}

		c.mu.Lock()
		if gen != c.gen || c.state != StateReconnecting {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.gen++
		myGen := c.gen
		c.conn = conn
		old := c.state
		c.state = StateConnected
		c.mu.Unlock()

		c.metrics.reconnected()
		c.logger.Info("reconnected", "attempt", i+1)
		c.notify(old, StateConnected)
		go c.readLoop(conn, myGen)
		return
	}

	c.mu.Lock()
	if gen != c.gen || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	old := c.state
	c.state = StateDisconnected
	c.mu.Unlock()

	c.logger.Error("reconnect schedule exhausted")
	c.notify(old, StateDisconnected)
}

// closePendingLocked discards all pending completions. Waiters observe
// a nil receive and surface ErrConnectionClosed. Caller holds c.mu.
func (c *Connection) closePendingLocked() {
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Connection) removePending(id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Connection) notify(old, new ConnState) {
	if old != new {
		c.listeners.notify(old, new)
	}
}
