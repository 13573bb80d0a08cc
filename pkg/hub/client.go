package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hubwire-dev/hubwire/pkg/protocol"
)

// TokenBroker resolves a usable credential. forceRefresh discards any
// cached value first; an empty return means "no token", which the
// server rejects and auth recovery handles.
type TokenBroker interface {
	Token(ctx context.Context, forceRefresh bool) string
}

// InvokeRequest describes one hub invocation.
type InvokeRequest struct {
	// Method is the hub method name.
	Method string

	// Args are the positional arguments, marshaled to JSON on the wire.
	Args []any

	// Shape declares the container the caller expects back, driving
	// the empty value used for absent responses.
	Shape ResultShape

	// BypassQueue skips dispatch-queue admission control. For
	// out-of-band transfers that carry their own limits.
	BypassQueue bool

	// FireAndForget sends the invocation without awaiting a Completion.
	FireAndForget bool
}

// Client is the public entry point for hub communication. It owns the
// Connection and the DispatchQueue exclusively and shares the
// TokenBroker with the recovery path. Construct with NewClient, share
// by reference, and Close when done; there is no process-wide instance.
type Client struct {
	cfg     *ClientConfig
	conn    *Connection
	queue   *DispatchQueue
	broker  TokenBroker
	gate    *RecoveryGate
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer

	closed atomic.Bool
}

// NewClient creates a Client for the hub at cfg.Endpoint. The broker is
// consulted for a fresh token on every (re)connect attempt.
func NewClient(cfg *ClientConfig, broker TokenBroker) *Client {
	cfg = cfg.Clone()
	cfg.normalize()

	conn := NewConnection(cfg, func(ctx context.Context) string {
		return broker.Token(ctx, false)
	})

	return &Client{
		cfg:     cfg,
		conn:    conn,
		queue:   NewDispatchQueue(cfg.RateLimit, cfg.RateWindow, cfg.logger()),
		broker:  broker,
		gate:    NewRecoveryGate(),
		logger:  cfg.logger().With("component", "hub-client"),
		metrics: cfg.Metrics,
		tracer:  otel.Tracer("github.com/hubwire-dev/hubwire/pkg/hub"),
	}
}

// State returns the connection state.
func (c *Client) State() ConnState {
	return c.conn.State()
}

// OnStateChange subscribes fn to connection state transitions and
// returns an unsubscribe function.
func (c *Client) OnStateChange(fn StateListener) func() {
	return c.conn.OnStateChange(fn)
}

// Close shuts the client down. Queued invocations that have not been
// admitted are dropped; in-flight ones resolve to ErrConnectionClosed.
func (c *Client) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.queue.Close()
	c.conn.Stop()
}

// Invoke calls a hub method and returns its response document. Absent
// responses come back as the empty container for shape, never as a Go
// nil the caller must special-case.
func (c *Client) Invoke(ctx context.Context, method string, shape ResultShape, args ...any) (json.RawMessage, error) {
	return c.Do(ctx, InvokeRequest{Method: method, Args: args, Shape: shape})
}

// Send fires an invocation without awaiting its result.
func (c *Client) Send(ctx context.Context, method string, args ...any) error {
	_, err := c.Do(ctx, InvokeRequest{Method: method, Args: args, FireAndForget: true})
	return err
}

type invokeOutcome struct {
	raw json.RawMessage
	err error
}

// Do runs one invocation through admission control, the recovery gate,
// the connection, and response post-processing.
func (c *Client) Do(ctx context.Context, req InvokeRequest) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	if req.Method == "" {
		return nil, fmt.Errorf("hub: empty method name")
	}

	args, err := marshalArgs(req.Args)
	if err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "hub.invoke",
		trace.WithAttributes(attribute.String("hub.method", req.Method)))
	defer span.End()

	start := time.Now()
	outcome := make(chan invokeOutcome, 1)

	enqueueErr := c.queue.Enqueue(ctx, req.BypassQueue, func() {
		c.metrics.queueWaited(time.Since(start))
		raw, err := c.perform(ctx, req, args)
		outcome <- invokeOutcome{raw: raw, err: err}
	})
	if enqueueErr != nil {
		return nil, enqueueErr
	}

	select {
	case out := <-outcome:
		c.finish(span, req.Method, start, out.err)
		return out.raw, out.err
	case <-ctx.Done():
		c.finish(span, req.Method, start, ctx.Err())
		return nil, ctx.Err()
	}
}

func (c *Client) finish(span trace.Span, method string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	c.metrics.invokeDone(method, status, time.Since(start))
}

// perform runs the per-call state machine: recovery gate, connection,
// invocation, response classification, and the single auth-recovery
// retry.
func (c *Client) perform(ctx context.Context, req InvokeRequest, args []json.RawMessage) (json.RawMessage, error) {
	if err := c.gate.Wait(ctx); err != nil {
		return nil, err
	}

	raw, err := c.attempt(ctx, req, args)
	if err == nil || !isAuthError(err) {
		return raw, err
	}

	// One recovery cycle: force-refresh the token, rebuild the
	// connection, resynthesize the invocation once. A second auth error
	// surfaces to the caller.
	c.logger.Warn("auth error, refreshing token and retrying once",
		"method", req.Method, "error", err)
	c.metrics.authRecovered()

	if rerr := c.recoverCredential(ctx); rerr != nil {
		return nil, rerr
	}
	return c.attempt(ctx, req, args)
}

// recoverCredential runs one recovery episode: the gate closes so
// invokes admitted meanwhile hold instead of going out with the token
// known to be stale, the token is force-refreshed, and the connection
// is rebuilt.
func (c *Client) recoverCredential(ctx context.Context) error {
	c.gate.Close()
	defer c.gate.Open()

	c.broker.Token(ctx, true)
	return c.conn.Restart(ctx)
}

// attempt performs one invocation against a (hopefully) live connection.
func (c *Client) attempt(ctx context.Context, req InvokeRequest, args []json.RawMessage) (json.RawMessage, error) {
	if err := c.conn.EnsureConnected(ctx); err != nil {
		return nil, err
	}
	if err := c.waitForConnected(ctx); err != nil {
		return nil, err
	}

	inv := &protocol.Invocation{
		Target:    req.Method,
		Arguments: args,
	}
	if !req.FireAndForget {
		inv.InvocationID = uuid.NewString()
	}

	comp, err := c.conn.Invoke(ctx, inv)
	if err != nil {
		return nil, err
	}
	if comp == nil {
		return nil, nil // fire-and-forget
	}
	return c.classify(req, comp)
}

// waitForConnected polls a mid-(re)connect connection until it is
// Connected, up to the configured ceiling, then tries exactly one
// explicit restart before giving up.
func (c *Client) waitForConnected(ctx context.Context) error {
	if c.conn.State() == StateConnected {
		return nil
	}

	deadline := time.Now().Add(c.cfg.ConnectWaitCeiling)
	for time.Now().Before(deadline) {
		select {
		case <-time.After(c.cfg.ConnectPollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
		switch c.conn.State() {
		case StateConnected:
			return nil
		case StateDisconnected:
			// Reconnect gave up; no point polling out the ceiling.
			return ErrNotConnected
		}
	}

	c.logger.Warn("connect wait ceiling reached, restarting transport")
	if err := c.conn.Restart(ctx); err != nil {
		return err
	}
	if c.conn.State() != StateConnected {
		return ErrNotConnected
	}
	return nil
}

// classify converts a Completion into the caller's result per the
// response envelope rules.
func (c *Client) classify(req InvokeRequest, comp *protocol.Completion) (json.RawMessage, error) {
	if comp.Error != "" {
		return nil, &ServerError{Method: req.Method, Message: comp.Error}
	}

	raw, err := decodeResultValue(comp.Result)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		// Void completion: hand back the empty container.
		return req.Shape.emptyValue(), nil
	}

	env, err := parseEnvelope(raw)
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, &ServerError{
			Method:  req.Method,
			Message: env.Message,
			Status:  env.Status,
		}
	}
	return normalizeResponse(env.Response, req.Shape)
}

// BeginForegroundRecovery runs one foreground-recovery episode: the
// gate closes so new invokes hold, the token is force-refreshed, and
// the connection is rebuilt. Call on app resume. Invocations already
// admitted and in flight are unaffected.
func (c *Client) BeginForegroundRecovery(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	c.logger.Info("foreground recovery: refreshing token and reconnecting")
	return c.recoverCredential(ctx)
}

func marshalArgs(args []any) ([]json.RawMessage, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make([]json.RawMessage, 0, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("hub: marshaling argument %d: %w", i, err)
		}
		out = append(out, json.RawMessage(b))
	}
	return out, nil
}
