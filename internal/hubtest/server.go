// Package hubtest provides an in-process hub server for integration
// tests. It speaks the real wire protocol over real websockets so
// client tests exercise negotiation, framing, and auth the way
// production connections do.
package hubtest

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hubwire-dev/hubwire/pkg/protocol"
)

// Handler serves one hub method. The returned value is marshaled into
// the response envelope; a non-nil error becomes a success=false
// envelope carrying the error's message.
type Handler func(args []json.RawMessage) (any, error)

// Server is a scriptable hub listening on a real websocket endpoint.
type Server struct {
	srv    *httptest.Server
	router chi.Router

	mu       sync.Mutex
	handlers map[string]Handler
	tokens   map[string]bool
	anyToken bool
	compress bool
	conns    []*websocket.Conn

	invocations []Call
}

// Call records one invocation the server received.
type Call struct {
	Method string
	Token  string
	Args   []json.RawMessage
}

// New starts a hub server. Close it when done.
func New() *Server {
	s := &Server{
		handlers: make(map[string]Handler),
		tokens:   make(map[string]bool),
		anyToken: true,
	}
	r := chi.NewRouter()
	r.Get("/live", s.serveWS)
	s.router = r
	s.srv = httptest.NewServer(r)
	return s
}

// URL returns the websocket endpoint URL.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/live"
}

// Handle registers a method handler.
func (s *Server) Handle(method string, h Handler) {
	s.mu.Lock()
	s.handlers[method] = h
	s.mu.Unlock()
}

// AllowToken restricts connections to the given bearer tokens. Until
// the first call every token (including none) is accepted.
func (s *Server) AllowToken(tokens ...string) {
	s.mu.Lock()
	s.anyToken = false
	for _, t := range tokens {
		s.tokens[t] = true
	}
	s.mu.Unlock()
}

// SetCompress makes the server gzip every response envelope into a
// binary completion result.
func (s *Server) SetCompress(on bool) {
	s.mu.Lock()
	s.compress = on
	s.mu.Unlock()
}

// Invocations returns a copy of the calls received so far.
func (s *Server) Invocations() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.invocations))
	copy(out, s.invocations)
	return out
}

// DropConnections closes every live websocket without a close frame,
// simulating a network drop.
func (s *Server) DropConnections() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

// Close shuts the server down.
func (s *Server) Close() {
	s.DropConnections()
	s.srv.Close()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("protocol") != protocol.ProtocolName {
		http.Error(w, "unknown protocol", http.StatusBadRequest)
		return
	}
	if v, err := strconv.Atoi(q.Get("version")); err != nil || v != protocol.ProtocolVersion {
		http.Error(w, "unsupported protocol version", http.StatusBadRequest)
		return
	}

	token := bearerToken(r)
	s.mu.Lock()
	allowed := s.anyToken || s.tokens[token]
	s.mu.Unlock()
	if !allowed {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.mu.Unlock()

	go s.serveConn(conn, token)
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, prefix) {
		return h[len(prefix):]
	}
	return ""
}

func (s *Server) serveConn(conn *websocket.Conn, token string) {
	defer conn.Close()
	parser := protocol.NewParser()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		msgs, err := parser.Push(data)
		for _, m := range msgs {
			s.handleMessage(conn, token, m)
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) handleMessage(conn *websocket.Conn, token string, m protocol.HubMessage) {
	inv, ok := m.(*protocol.Invocation)
	if !ok {
		return
	}

	s.mu.Lock()
	s.invocations = append(s.invocations, Call{Method: inv.Target, Token: token, Args: inv.Arguments})
	h := s.handlers[inv.Target]
	compress := s.compress
	s.mu.Unlock()

	if inv.InvocationID == "" {
		return // fire-and-forget
	}

	comp := &protocol.Completion{InvocationID: inv.InvocationID}
	if h == nil {
		comp.Error = "unknown method " + inv.Target
		s.write(conn, comp)
		return
	}

	env, err := s.runHandler(h, inv.Arguments)
	if err != nil {
		comp.Error = err.Error()
		s.write(conn, comp)
		return
	}
	if compress {
		comp.Result = protocol.BinaryValue(gzipBytes(env))
	} else {
		comp.Result = protocol.JSONValue(env)
	}
	s.write(conn, comp)
}

// runHandler runs h and builds the response envelope JSON.
func (s *Server) runHandler(h Handler, args []json.RawMessage) (json.RawMessage, error) {
	type envelope struct {
		Success  bool            `json:"success"`
		Message  string          `json:"message,omitempty"`
		Response json.RawMessage `json:"response,omitempty"`
	}

	resp, err := h(args)
	env := envelope{Success: true}
	if err != nil {
		env = envelope{Success: false, Message: err.Error()}
	} else if resp != nil {
		raw, merr := json.Marshal(resp)
		if merr != nil {
			return nil, merr
		}
		env.Response = raw
	}
	return json.Marshal(env)
}

func (s *Server) write(conn *websocket.Conn, m protocol.HubMessage) {
	conn.WriteMessage(websocket.BinaryMessage, protocol.EncodeMessage(m))
}

func gzipBytes(b []byte) []byte {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write(b)
	zw.Close()
	return buf.Bytes()
}
