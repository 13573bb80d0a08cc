package token

import "context"

// Provider is the externally injected token capability. An auth
// component (e.g. an OAuth device-flow implementation) registers one to
// take over credential resolution from the broker's built-in path.
//
// Implementations return an empty string when no usable token exists;
// they should not fabricate placeholder values.
type Provider interface {
	// Token returns the current access token, refreshing it if the
	// implementation deems it stale.
	Token(ctx context.Context) (string, error)

	// ForceRefresh discards any cached token and obtains a new one.
	// Used by auth-error recovery when the server rejected the token
	// the normal path produced.
	ForceRefresh(ctx context.Context) (string, error)
}

// ProviderFunc adapts a pair of functions to the Provider interface.
type ProviderFunc struct {
	TokenFunc        func(ctx context.Context) (string, error)
	ForceRefreshFunc func(ctx context.Context) (string, error)
}

// Token calls TokenFunc.
func (p ProviderFunc) Token(ctx context.Context) (string, error) {
	return p.TokenFunc(ctx)
}

// ForceRefresh calls ForceRefreshFunc.
func (p ProviderFunc) ForceRefresh(ctx context.Context) (string, error) {
	return p.ForceRefreshFunc(ctx)
}
