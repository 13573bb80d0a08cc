package hubtest

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hubwire-dev/hubwire/pkg/protocol"
)

func dialRaw(t *testing.T, url string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	return d.Dial(url, header)
}

func TestServerRejectsUnknownProtocol(t *testing.T) {
	srv := New()
	defer srv.Close()

	_, resp, err := dialRaw(t, srv.URL()+"?protocol=other&version=1", nil)
	if err == nil {
		t.Fatal("handshake succeeded with an unknown protocol")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("resp = %+v, want 400", resp)
	}

	_, resp, err = dialRaw(t, srv.URL()+"?protocol="+protocol.ProtocolName+"&version=99", nil)
	if err == nil {
		t.Fatal("handshake succeeded with an unsupported version")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("resp = %+v, want 400", resp)
	}
}

func TestServerRejectsBadToken(t *testing.T) {
	srv := New()
	defer srv.Close()
	srv.AllowToken("good")

	h := http.Header{}
	h.Set("Authorization", "Bearer bad")
	_, resp, err := dialRaw(t, srv.URL()+"?protocol="+protocol.ProtocolName+"&version=1", h)
	if err == nil {
		t.Fatal("handshake succeeded with a rejected token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("resp = %+v, want 401", resp)
	}
}

func TestServerAnswersUnknownMethodWithError(t *testing.T) {
	srv := New()
	defer srv.Close()

	conn, _, err := dialRaw(t, srv.URL()+"?protocol="+protocol.ProtocolName+"&version=1", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	inv := &protocol.Invocation{InvocationID: "i1", Target: "Nope"}
	if err := conn.WriteMessage(websocket.BinaryMessage, protocol.EncodeMessage(inv)); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	msgs, err := protocol.NewParser().Push(data)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("decoded %d messages, err %v", len(msgs), err)
	}
	comp, ok := msgs[0].(*protocol.Completion)
	if !ok {
		t.Fatalf("got %T", msgs[0])
	}
	if comp.InvocationID != "i1" || !strings.Contains(comp.Error, "unknown method") {
		t.Errorf("completion = %+v", comp)
	}
}

func TestServerRecordsCallArguments(t *testing.T) {
	srv := New()
	defer srv.Close()
	srv.Handle("Echo", func(args []json.RawMessage) (any, error) {
		return json.RawMessage(args[0]), nil
	})

	conn, _, err := dialRaw(t, srv.URL()+"?protocol="+protocol.ProtocolName+"&version=1", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	inv := &protocol.Invocation{
		InvocationID: "i2",
		Target:       "Echo",
		Arguments:    []json.RawMessage{json.RawMessage(`{"x":1}`)},
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, protocol.EncodeMessage(inv)); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatal(err)
	}

	calls := srv.Invocations()
	if len(calls) != 1 || calls[0].Method != "Echo" {
		t.Fatalf("calls = %+v", calls)
	}
	if string(calls[0].Args[0]) != `{"x":1}` {
		t.Errorf("args = %v", calls[0].Args)
	}
}
