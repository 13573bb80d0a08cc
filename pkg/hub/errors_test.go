package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestIsAuthError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unauthorized", errors.New("Unauthorized"), true},
		{"unauthenticated", &ServerError{Method: "Ping", Message: "request unauthenticated"}, true},
		{"forbidden", errors.New("access Forbidden for user"), true},
		{"status 401", errors.New("websocket: bad handshake: 401"), true},
		{"status 403", errors.New("HTTP 403 returned"), true},
		{"token", &ServerError{Message: "token expired"}, true},
		{"wrapped", fmt.Errorf("invoke: %w", errors.New("unauthorized")), true},
		{"plain failure", errors.New("database unavailable"), false},
		{"timeout", ErrInvokeTimeout, false},
		{"not connected", ErrNotConnected, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isAuthError(tt.err); got != tt.want {
				t.Errorf("isAuthError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestServerErrorMessage(t *testing.T) {
	err := &ServerError{Method: "GetStats", Message: "internal failure", Status: json.RawMessage(`500`)}
	if got := err.Error(); got != "hub: GetStats: internal failure" {
		t.Errorf("Error() = %q", got)
	}
	bare := &ServerError{Message: "not found"}
	if got := bare.Error(); got != "hub: server error: not found" {
		t.Errorf("Error() = %q", got)
	}
}

func TestTransportErrorUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := &TransportError{Op: "dial", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("errors.Is did not reach the wrapped error")
	}
	var te *TransportError
	if !errors.As(fmt.Errorf("connect: %w", err), &te) || te.Op != "dial" {
		t.Error("errors.As did not recover the TransportError")
	}
}
