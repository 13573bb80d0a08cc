// Package token resolves, caches, and persists the bearer credential
// hub connections authenticate with.
package token

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RefreshFunc exchanges a long-lived refresh credential for a fresh
// access token over the network.
type RefreshFunc func(ctx context.Context, refreshCredential string) (string, error)

// BrokerConfig configures a Broker.
type BrokerConfig struct {
	// Provider is the externally injected token capability. When set it
	// takes over resolution entirely and the built-in refresh path is
	// not used.
	Provider Provider

	// Store persists the last good token for fallback. Optional.
	Store Store

	// Refresh obtains a new token from the refresh credential when no
	// Provider is registered. Optional.
	Refresh RefreshFunc

	// RefreshCredential is the long-lived credential handed to Refresh.
	RefreshCredential string

	// Validity is how long a token from the built-in path is served
	// from cache before it is treated as absent.
	// Default: 5 seconds.
	Validity time.Duration

	// RetryDelay is the pause before the single refresh retry. The
	// retry compensates for transient connectivity right after app
	// resume.
	// Default: 2 seconds.
	RetryDelay time.Duration

	// Logger receives refresh failures and fallback decisions.
	// Default: slog.Default().
	Logger *slog.Logger
}

// DefaultBrokerConfig returns a BrokerConfig with sensible defaults.
func DefaultBrokerConfig() *BrokerConfig {
	return &BrokerConfig{
		Validity:   5 * time.Second,
		RetryDelay: 2 * time.Second,
	}
}

// Broker resolves a usable credential for the transport layer.
//
// Resolution order: the registered Provider if any, then the built-in
// short-lived cache backed by the Refresh call, then the persisted
// fallback token. Token never fails for "no token available"; it
// returns the empty string and lets the caller decide: a connection
// attempt with an empty token is expected to be rejected by the remote,
// which is what triggers auth-error recovery.
type Broker struct {
	provider   Provider
	store      Store
	refresh    RefreshFunc
	credential string
	validity   time.Duration
	retryDelay time.Duration
	logger     *slog.Logger

	mu          sync.Mutex
	cached      string
	refreshedAt time.Time

	now func() time.Time
}

// NewBroker creates a Broker from cfg. A nil cfg uses defaults.
func NewBroker(cfg *BrokerConfig) *Broker {
	if cfg == nil {
		cfg = DefaultBrokerConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	validity := cfg.Validity
	if validity <= 0 {
		validity = 5 * time.Second
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	return &Broker{
		provider:   cfg.Provider,
		store:      cfg.Store,
		refresh:    cfg.Refresh,
		credential: cfg.RefreshCredential,
		validity:   validity,
		retryDelay: retryDelay,
		logger:     logger.With("component", "token-broker"),
		now:        time.Now,
	}
}

// Token returns a usable access token, or "" when none can be resolved.
// With forceRefresh set, any cached value is discarded and the refresh
// entry point is used.
func (b *Broker) Token(ctx context.Context, forceRefresh bool) string {
	if b.provider != nil {
		return b.fromProvider(ctx, forceRefresh)
	}
	return b.fromLegacy(ctx, forceRefresh)
}

func (b *Broker) fromProvider(ctx context.Context, forceRefresh bool) string {
	var (
		tok string
		err error
	)
	if forceRefresh {
		tok, err = b.provider.ForceRefresh(ctx)
	} else {
		tok, err = b.provider.Token(ctx)
	}
	if err != nil {
		b.logger.Warn("token provider failed", "force", forceRefresh, "error", err)
	}
	if tok == "" {
		// A stale persisted token beats none: the server rejects it
		// distinctly from a missing token.
		return b.persisted(ctx)
	}
	b.persist(ctx, tok)
	return tok
}

func (b *Broker) fromLegacy(ctx context.Context, forceRefresh bool) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !forceRefresh && b.cached != "" && b.now().Sub(b.refreshedAt) <= b.validity {
		return b.cached
	}
	// Expired or forced: the cache is treated as absent.
	b.cached = ""

	if b.refresh == nil {
		return b.persisted(ctx)
	}

	tok, err := b.refresh(ctx, b.credential)
	if err != nil {
		b.logger.Warn("token refresh failed, retrying once", "error", err)
		select {
		case <-time.After(b.retryDelay):
		case <-ctx.Done():
			return b.persisted(ctx)
		}
		tok, err = b.refresh(ctx, b.credential)
	}
	if err != nil || tok == "" {
		if err != nil {
			b.logger.Warn("token refresh retry failed", "error", err)
		}
		return b.persisted(ctx)
	}

	b.cached = tok
	b.refreshedAt = b.now()
	b.persist(ctx, tok)
	return tok
}

func (b *Broker) persisted(ctx context.Context) string {
	if b.store == nil {
		return ""
	}
	tok, err := b.store.Load(ctx)
	if err != nil {
		b.logger.Warn("persisted token load failed", "error", err)
		return ""
	}
	return tok
}

func (b *Broker) persist(ctx context.Context, tok string) {
	if b.store == nil {
		return
	}
	if err := b.store.Save(ctx, tok); err != nil {
		b.logger.Warn("persisting token failed", "error", err)
	}
}
