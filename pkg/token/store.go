package token

import "context"

// Store persists the last successfully obtained token so the broker can
// fall back to it when refresh paths fail. A stale token is deliberately
// preferred over none: the server rejects it distinctly from a missing
// token, which drives the right recovery path.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Save persists the token, overwriting any previous value.
	Save(ctx context.Context, token string) error

	// Load returns the persisted token, or "" if none is stored.
	Load(ctx context.Context) (string, error)

	// Clear removes the persisted token. Clearing an empty store is not
	// an error.
	Clear(ctx context.Context) error
}
