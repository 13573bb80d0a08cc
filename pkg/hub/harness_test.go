package hub

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/hubwire-dev/hubwire/pkg/protocol"
)

// fakeConn is an in-memory Conn. Tests deliver server frames through
// deliver and observe client frames on writes.
type fakeConn struct {
	mu     sync.Mutex
	closed bool
	done   chan struct{}

	inbox  chan []byte
	writes chan []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		done:   make(chan struct{}),
		inbox:  make(chan []byte, 64),
		writes: make(chan []byte, 64),
	}
}

func (c *fakeConn) Read() ([]byte, error) {
	select {
	case b := <-c.inbox:
		return b, nil
	case <-c.done:
		return nil, io.ErrClosedPipe
	}
}

func (c *fakeConn) Write(p []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return io.ErrClosedPipe
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	select {
	case c.writes <- buf:
	default:
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

func (c *fakeConn) deliver(m protocol.HubMessage) {
	c.inbox <- protocol.EncodeMessage(m)
}

// dropConnection simulates the server going away.
func (c *fakeConn) dropConnection() {
	c.Close()
}

// next decodes the next frame the client wrote.
func (c *fakeConn) next(t *testing.T) protocol.HubMessage {
	t.Helper()
	select {
	case b := <-c.writes:
		msgs, err := protocol.NewParser().Push(b)
		if err != nil {
			t.Fatalf("decoding client frame: %v", err)
		}
		if len(msgs) != 1 {
			t.Fatalf("client frame decoded to %d messages", len(msgs))
		}
		return msgs[0]
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a client frame")
		return nil
	}
}

// fakeDialer hands out fakeConns and records the token used per dial.
// Entries in errs script per-dial failures; past the slice every dial
// succeeds.
type fakeDialer struct {
	mu     sync.Mutex
	conns  []*fakeConn
	errs   []error
	tokens []string

	// hold, when non-nil, blocks Dial until released or ctx is done.
	hold chan struct{}

	// onConn, when non-nil, runs on its own goroutine for every
	// successfully dialed connection. Used to script a hub server.
	onConn func(*fakeConn)
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint, token string) (Conn, error) {
	d.mu.Lock()
	hold := d.hold
	d.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.tokens)
	d.tokens = append(d.tokens, token)
	if n < len(d.errs) && d.errs[n] != nil {
		return nil, d.errs[n]
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	if d.onConn != nil {
		go d.onConn(c)
	}
	return c, nil
}

// serveHub returns an onConn handler that answers invocations with
// handler's completion, correlating invocation ids. Fire-and-forget
// frames and pings are ignored; the connection's own ping replies are
// handled by the client side.
func serveHub(handler func(*protocol.Invocation) *protocol.Completion) func(*fakeConn) {
	return func(fc *fakeConn) {
		parser := protocol.NewParser()
		for {
			select {
			case b := <-fc.writes:
				msgs, err := parser.Push(b)
				if err != nil {
					return
				}
				for _, m := range msgs {
					inv, ok := m.(*protocol.Invocation)
					if !ok || inv.InvocationID == "" {
						continue
					}
					if comp := handler(inv); comp != nil {
						comp.InvocationID = inv.InvocationID
						fc.deliver(comp)
					}
				}
			case <-fc.done:
				return
			}
		}
	}
}

func (d *fakeDialer) setHold(ch chan struct{}) {
	d.mu.Lock()
	d.hold = ch
	d.mu.Unlock()
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tokens)
}

func (d *fakeDialer) conn(t *testing.T, i int) *fakeConn {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		d.mu.Lock()
		if i < len(d.conns) {
			c := d.conns[i]
			d.mu.Unlock()
			return c
		}
		d.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("connection %d never dialed", i)
	return nil
}

func (d *fakeDialer) tokenAt(i int) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.tokens) {
		return ""
	}
	return d.tokens[i]
}

// testConfig returns a config tuned for fast tests.
func testConfig(d Dialer) *ClientConfig {
	cfg := DefaultClientConfig()
	cfg.Endpoint = "ws://hub.test/live"
	cfg.Dialer = d
	cfg.InvokeTimeout = 2 * time.Second
	cfg.ConnectWaitCeiling = time.Second
	cfg.ConnectPollInterval = 10 * time.Millisecond
	cfg.ReconnectSchedule = []time.Duration{0, 10 * time.Millisecond}
	return cfg
}

func waitForState(t *testing.T, get func() ConnState, want ConnState) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if get() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state never became %v (now %v)", want, get())
}
