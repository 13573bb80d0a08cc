package token

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestBroker(cfg *BrokerConfig) *Broker {
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	return NewBroker(cfg)
}

func TestBrokerProviderPath(t *testing.T) {
	ctx := context.Background()

	var forced bool
	provider := ProviderFunc{
		TokenFunc: func(context.Context) (string, error) {
			return "fresh", nil
		},
		ForceRefreshFunc: func(context.Context) (string, error) {
			forced = true
			return "forced", nil
		},
	}

	store := NewMemoryStore()
	b := newTestBroker(&BrokerConfig{Provider: provider, Store: store})

	if got := b.Token(ctx, false); got != "fresh" {
		t.Fatalf("Token = %q, want fresh", got)
	}
	if got := b.Token(ctx, true); got != "forced" {
		t.Fatalf("Token(force) = %q, want forced", got)
	}
	if !forced {
		t.Fatal("ForceRefresh was not invoked")
	}

	// Successful tokens are persisted.
	if saved, _ := store.Load(ctx); saved != "forced" {
		t.Fatalf("persisted token = %q, want forced", saved)
	}
}

func TestBrokerProviderEmptyFallsBackToPersisted(t *testing.T) {
	ctx := context.Background()

	store := NewMemoryStore()
	if err := store.Save(ctx, "stale-but-present"); err != nil {
		t.Fatal(err)
	}

	provider := ProviderFunc{
		TokenFunc:        func(context.Context) (string, error) { return "", nil },
		ForceRefreshFunc: func(context.Context) (string, error) { return "", nil },
	}

	b := newTestBroker(&BrokerConfig{Provider: provider, Store: store})
	if got := b.Token(ctx, false); got != "stale-but-present" {
		t.Fatalf("Token = %q, want persisted fallback", got)
	}
}

func TestBrokerLegacyCacheValidity(t *testing.T) {
	ctx := context.Background()

	calls := 0
	b := newTestBroker(&BrokerConfig{
		Refresh: func(context.Context, string) (string, error) {
			calls++
			return "tok", nil
		},
		Validity: 5 * time.Second,
	})

	now := time.Unix(1000, 0)
	b.now = func() time.Time { return now }

	if got := b.Token(ctx, false); got != "tok" || calls != 1 {
		t.Fatalf("Token = %q (calls %d), want tok from one refresh", got, calls)
	}

	// Within validity: served from cache.
	now = now.Add(3 * time.Second)
	if got := b.Token(ctx, false); got != "tok" || calls != 1 {
		t.Fatalf("cached Token = %q (calls %d), want cache hit", got, calls)
	}

	// Past validity: the cached token counts as absent and a refresh runs.
	now = now.Add(10 * time.Second)
	if got := b.Token(ctx, false); got != "tok" || calls != 2 {
		t.Fatalf("expired Token = %q (calls %d), want second refresh", got, calls)
	}
}

func TestBrokerLegacyRetriesOnceThenFallsBack(t *testing.T) {
	ctx := context.Background()

	store := NewMemoryStore()
	if err := store.Save(ctx, "persisted"); err != nil {
		t.Fatal(err)
	}

	calls := 0
	b := newTestBroker(&BrokerConfig{
		Store: store,
		Refresh: func(context.Context, string) (string, error) {
			calls++
			return "", errors.New("network down")
		},
	})

	if got := b.Token(ctx, false); got != "persisted" {
		t.Fatalf("Token = %q, want persisted fallback", got)
	}
	if calls != 2 {
		t.Fatalf("refresh attempts = %d, want 2 (original + one retry)", calls)
	}
}

func TestBrokerNoSourcesReturnsEmpty(t *testing.T) {
	b := newTestBroker(&BrokerConfig{})
	if got := b.Token(context.Background(), false); got != "" {
		t.Fatalf("Token = %q, want empty", got)
	}
}

func TestBrokerRetrySucceeds(t *testing.T) {
	ctx := context.Background()

	calls := 0
	b := newTestBroker(&BrokerConfig{
		Refresh: func(context.Context, string) (string, error) {
			calls++
			if calls == 1 {
				return "", errors.New("transient")
			}
			return "second-try", nil
		},
	})

	if got := b.Token(ctx, false); got != "second-try" {
		t.Fatalf("Token = %q, want second-try", got)
	}
}

func TestBrokerForceRefreshSkipsCache(t *testing.T) {
	ctx := context.Background()

	calls := 0
	b := newTestBroker(&BrokerConfig{
		Refresh: func(context.Context, string) (string, error) {
			calls++
			return "tok", nil
		},
	})

	b.Token(ctx, false)
	b.Token(ctx, true)
	if calls != 2 {
		t.Fatalf("refresh calls = %d, want 2 (force bypasses cache)", calls)
	}
}
