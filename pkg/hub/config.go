package hub

import (
	"log/slog"
	"time"
)

// ClientConfig holds configuration for a hub Client.
//
// The rate-limit and reconnect defaults mirror an observed server
// policy rather than a documented one, so every value is a field here
// instead of a hard constant.
type ClientConfig struct {
	// Endpoint is the hub URL (ws:// or wss://).
	Endpoint string

	// Rate limiting

	// RateLimit is the number of admissions allowed per RateWindow.
	// Default: 10.
	RateLimit int

	// RateWindow is the sliding admission window duration.
	// Default: 5.5 seconds.
	RateWindow time.Duration

	// Timeouts

	// HandshakeTimeout bounds a single transport connect attempt.
	// Default: 30 seconds.
	HandshakeTimeout time.Duration

	// InvokeTimeout bounds the wait for a Completion after an
	// Invocation has been written.
	// Default: 30 seconds.
	InvokeTimeout time.Duration

	// ServerTimeout is how long the connection tolerates silence from
	// the server before treating it as lost. Configured generously, at
	// twice the usual default, to ride out mobile network latency and
	// backgrounding.
	// Default: 60 seconds.
	ServerTimeout time.Duration

	// ConnectWaitCeiling bounds how long an invoke polls for a
	// mid-(re)connect connection before attempting one manual restart.
	// Default: 15 seconds.
	ConnectWaitCeiling time.Duration

	// ConnectPollInterval is the polling cadence during ConnectWaitCeiling.
	// Default: 500 milliseconds.
	ConnectPollInterval time.Duration

	// Reconnect

	// ReconnectSchedule is the fixed backoff schedule the transport
	// runs after an unexpected close before giving up.
	// Default: 0s, 5s, 10s, 20s, 30s.
	ReconnectSchedule []time.Duration

	// Logger receives connection lifecycle and frame diagnostics.
	// Default: slog.Default().
	Logger *slog.Logger

	// Dialer opens transport connections. Default: websocket dialer.
	Dialer Dialer

	// Metrics, when non-nil, receives client instrumentation.
	Metrics *Metrics
}

// DefaultClientConfig returns a ClientConfig with sensible defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		RateLimit:           10,
		RateWindow:          5500 * time.Millisecond,
		HandshakeTimeout:    30 * time.Second,
		InvokeTimeout:       30 * time.Second,
		ServerTimeout:       60 * time.Second,
		ConnectWaitCeiling:  15 * time.Second,
		ConnectPollInterval: 500 * time.Millisecond,
		ReconnectSchedule: []time.Duration{
			0,
			5 * time.Second,
			10 * time.Second,
			20 * time.Second,
			30 * time.Second,
		},
	}
}

// Clone returns a copy of the ClientConfig.
func (c *ClientConfig) Clone() *ClientConfig {
	if c == nil {
		return nil
	}
	clone := *c
	if c.ReconnectSchedule != nil {
		clone.ReconnectSchedule = make([]time.Duration, len(c.ReconnectSchedule))
		copy(clone.ReconnectSchedule, c.ReconnectSchedule)
	}
	return &clone
}

// WithEndpoint sets the hub URL and returns the config for chaining.
func (c *ClientConfig) WithEndpoint(url string) *ClientConfig {
	c.Endpoint = url
	return c
}

// WithRateLimit sets the admission cap and window and returns the
// config for chaining.
func (c *ClientConfig) WithRateLimit(n int, window time.Duration) *ClientConfig {
	c.RateLimit = n
	c.RateWindow = window
	return c
}

// WithReconnectSchedule sets the reconnect backoff schedule and returns
// the config for chaining.
func (c *ClientConfig) WithReconnectSchedule(schedule []time.Duration) *ClientConfig {
	c.ReconnectSchedule = schedule
	return c
}

// WithLogger sets the logger and returns the config for chaining.
func (c *ClientConfig) WithLogger(l *slog.Logger) *ClientConfig {
	c.Logger = l
	return c
}

// logger returns the configured logger or the process default.
func (c *ClientConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// normalize fills zero fields with defaults.
func (c *ClientConfig) normalize() {
	d := DefaultClientConfig()
	if c.RateLimit <= 0 {
		c.RateLimit = d.RateLimit
	}
	if c.RateWindow <= 0 {
		c.RateWindow = d.RateWindow
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.InvokeTimeout <= 0 {
		c.InvokeTimeout = d.InvokeTimeout
	}
	if c.ServerTimeout <= 0 {
		c.ServerTimeout = d.ServerTimeout
	}
	if c.ConnectWaitCeiling <= 0 {
		c.ConnectWaitCeiling = d.ConnectWaitCeiling
	}
	if c.ConnectPollInterval <= 0 {
		c.ConnectPollInterval = d.ConnectPollInterval
	}
	if c.ReconnectSchedule == nil {
		c.ReconnectSchedule = d.ReconnectSchedule
	}
	if c.Dialer == nil {
		c.Dialer = NewWebsocketDialer(c.HandshakeTimeout, c.ServerTimeout)
	}
}
