package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hubwire-dev/hubwire/internal/hubtest"
)

// sequenceBroker serves tokens from a fixed sequence, advancing on
// every forced refresh.
type sequenceBroker struct {
	mu     sync.Mutex
	tokens []string
	i      int
}

func (b *sequenceBroker) Token(ctx context.Context, forceRefresh bool) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if forceRefresh && b.i < len(b.tokens)-1 {
		b.i++
	}
	return b.tokens[b.i]
}

func wsTestConfig(endpoint string) *ClientConfig {
	cfg := DefaultClientConfig().WithEndpoint(endpoint)
	cfg.InvokeTimeout = 5 * time.Second
	cfg.ConnectWaitCeiling = 2 * time.Second
	cfg.ConnectPollInterval = 10 * time.Millisecond
	cfg.ReconnectSchedule = []time.Duration{0, 50 * time.Millisecond}
	return cfg
}

func TestClientOverWebsocket(t *testing.T) {
	srv := hubtest.New()
	defer srv.Close()

	srv.Handle("GetStats", func(args []json.RawMessage) (any, error) {
		return map[string]int{"count": 7}, nil
	})

	c := NewClient(wsTestConfig(srv.URL()), &fakeTokenBroker{token: "tok-e2e"})
	defer c.Close()

	raw, err := c.Invoke(context.Background(), "GetStats", ShapeObject, "day")
	if err != nil {
		t.Fatal(err)
	}
	stats, err := Result[map[string]int](raw)
	if err != nil {
		t.Fatal(err)
	}
	if stats["count"] != 7 {
		t.Errorf("stats = %v", stats)
	}

	calls := srv.Invocations()
	if len(calls) != 1 {
		t.Fatalf("server saw %d calls", len(calls))
	}
	if calls[0].Method != "GetStats" || calls[0].Token != "tok-e2e" {
		t.Errorf("call = %+v", calls[0])
	}
	if len(calls[0].Args) != 1 || string(calls[0].Args[0]) != `"day"` {
		t.Errorf("args = %v", calls[0].Args)
	}
}

func TestClientOverWebsocketCompressed(t *testing.T) {
	srv := hubtest.New()
	defer srv.Close()
	srv.SetCompress(true)

	big := make([]string, 50)
	for i := range big {
		big[i] = "item"
	}
	srv.Handle("ListItems", func(args []json.RawMessage) (any, error) {
		return big, nil
	})

	c := NewClient(wsTestConfig(srv.URL()), &fakeTokenBroker{token: "tok"})
	defer c.Close()

	raw, err := c.Invoke(context.Background(), "ListItems", ShapeArray)
	if err != nil {
		t.Fatal(err)
	}
	items, err := Result[[]string](raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 50 {
		t.Errorf("items = %d", len(items))
	}
}

func TestClientOverWebsocketHandlerError(t *testing.T) {
	srv := hubtest.New()
	defer srv.Close()
	srv.Handle("GetRecord", func(args []json.RawMessage) (any, error) {
		return nil, errors.New("record missing")
	})

	c := NewClient(wsTestConfig(srv.URL()), &fakeTokenBroker{token: "tok"})
	defer c.Close()

	_, err := c.Invoke(context.Background(), "GetRecord", ShapeObject)
	var se *ServerError
	if !errors.As(err, &se) || se.Message != "record missing" {
		t.Fatalf("err = %v, want ServerError(record missing)", err)
	}
}

func TestClientOverWebsocketAuthRecovery(t *testing.T) {
	srv := hubtest.New()
	defer srv.Close()
	srv.AllowToken("fresh")
	srv.Handle("Ping", func(args []json.RawMessage) (any, error) {
		return true, nil
	})

	// First dial goes out with the stale token and takes a 401
	// handshake rejection; recovery refreshes to the accepted one.
	broker := &sequenceBroker{tokens: []string{"stale", "fresh"}}
	c := NewClient(wsTestConfig(srv.URL()), broker)
	defer c.Close()

	raw, err := c.Invoke(context.Background(), "Ping", ShapeScalar)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "true" {
		t.Errorf("response = %s", raw)
	}

	calls := srv.Invocations()
	if len(calls) != 1 || calls[0].Token != "fresh" {
		t.Errorf("calls = %+v, want one call with the refreshed token", calls)
	}
}

func TestClientOverWebsocketReconnect(t *testing.T) {
	srv := hubtest.New()
	defer srv.Close()
	srv.Handle("Ping", func(args []json.RawMessage) (any, error) {
		return true, nil
	})

	c := NewClient(wsTestConfig(srv.URL()), &fakeTokenBroker{token: "tok"})
	defer c.Close()

	if _, err := c.Invoke(context.Background(), "Ping", ShapeScalar); err != nil {
		t.Fatal(err)
	}

	srv.DropConnections()
	waitForState(t, c.State, StateConnected)

	if _, err := c.Invoke(context.Background(), "Ping", ShapeScalar); err != nil {
		t.Fatalf("invoke after reconnect: %v", err)
	}
}

func TestClientOverWebsocketFireAndForget(t *testing.T) {
	srv := hubtest.New()
	defer srv.Close()

	c := NewClient(wsTestConfig(srv.URL()), &fakeTokenBroker{token: "tok"})
	defer c.Close()

	if err := c.Send(context.Background(), "Notify", 42); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if calls := srv.Invocations(); len(calls) == 1 {
			if calls[0].Method != "Notify" {
				t.Errorf("call = %+v", calls[0])
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("server never received the fire-and-forget invocation")
}
