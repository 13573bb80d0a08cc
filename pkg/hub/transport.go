package hub

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hubwire-dev/hubwire/pkg/protocol"
)

// Conn is one established transport connection carrying binary frames.
type Conn interface {
	// Read blocks until the next binary message arrives.
	Read() ([]byte, error)

	// Write sends one binary message.
	Write(p []byte) error

	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// Dialer opens transport connections to the hub. The token is supplied
// per dial, not captured once, so every (re)connect attempt carries a
// fresh credential.
type Dialer interface {
	Dial(ctx context.Context, endpoint, token string) (Conn, error)
}

// WebsocketDialer dials hubs over websocket. The protocol name and
// version are advertised as query parameters during negotiation and the
// token travels as a bearer Authorization header.
type WebsocketDialer struct {
	handshakeTimeout time.Duration
	serverTimeout    time.Duration
	writeTimeout     time.Duration
}

// NewWebsocketDialer creates a dialer with the given handshake timeout
// and server silence tolerance.
func NewWebsocketDialer(handshakeTimeout, serverTimeout time.Duration) *WebsocketDialer {
	return &WebsocketDialer{
		handshakeTimeout: handshakeTimeout,
		serverTimeout:    serverTimeout,
		writeTimeout:     10 * time.Second,
	}
}

// Dial opens a websocket connection to endpoint.
func (d *WebsocketDialer) Dial(ctx context.Context, endpoint, token string) (Conn, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}
	q := u.Query()
	q.Set("protocol", protocol.ProtocolName)
	q.Set("version", strconv.Itoa(protocol.ProtocolVersion))
	u.RawQuery = q.Encode()

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	dialer := websocket.Dialer{HandshakeTimeout: d.handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, &TransportError{
				Op:  "dial",
				Err: fmt.Errorf("%w (status %d)", err, resp.StatusCode),
			}
		}
		return nil, &TransportError{Op: "dial", Err: err}
	}

	return &wsConn{
		conn:          conn,
		serverTimeout: d.serverTimeout,
		writeTimeout:  d.writeTimeout,
	}, nil
}

// wsConn adapts a gorilla websocket connection to Conn.
type wsConn struct {
	conn          *websocket.Conn
	serverTimeout time.Duration
	writeTimeout  time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (c *wsConn) Read() ([]byte, error) {
	for {
		c.conn.SetReadDeadline(time.Now().Add(c.serverTimeout))
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType != websocket.BinaryMessage {
			// The hub speaks binary only; anything else is noise.
			continue
		}
		return data, nil
	}
}

func (c *wsConn) Write(p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.BinaryMessage, p)
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
