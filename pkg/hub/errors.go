package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common client and connection conditions.
var (
	// ErrClientClosed is returned when an operation is attempted on a
	// closed client.
	ErrClientClosed = errors.New("hub: client closed")

	// ErrNotConnected is returned when the connection never reached the
	// Connected state within the allowed wait.
	ErrNotConnected = errors.New("hub: not connected")

	// ErrConnectionClosed is returned to invocations pending when the
	// connection was torn down.
	ErrConnectionClosed = errors.New("hub: connection closed")

	// ErrInvokeTimeout is returned when no Completion arrived for an
	// invocation within the configured timeout.
	ErrInvokeTimeout = errors.New("hub: invocation timed out")

	// ErrQueueClosed is returned by Enqueue after the queue shut down.
	ErrQueueClosed = errors.New("hub: dispatch queue closed")
)

// TransportError wraps a low-level connect or send failure with the
// operation that produced it.
type TransportError struct {
	Op  string
	Err error
}

// Error returns the error message with operation context.
func (e *TransportError) Error() string {
	return fmt.Sprintf("hub: transport %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServerError is an application-level failure reported by the hub:
// either an envelope with success=false or an explicit error Completion.
// It is never retried automatically (auth errors excepted) and carries
// the server's message and status verbatim.
type ServerError struct {
	Method  string
	Message string
	Status  json.RawMessage
}

// Error returns the server's message with method context.
func (e *ServerError) Error() string {
	if e.Method == "" {
		return "hub: server error: " + e.Message
	}
	return fmt.Sprintf("hub: %s: %s", e.Method, e.Message)
}

// isAuthError reports whether err looks like the server rejecting the
// client's credential. The match is on message substrings because the
// server does not expose a structured code for this; keeping the
// heuristic in one place limits the blast radius when its wording
// changes.
func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{
		"unauthorized",
		"unauthenticated",
		"forbidden",
		"401",
		"403",
		"token",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
