// Package hub implements the real-time hub client: a persistent,
// authenticated RPC connection that serializes concurrent callers
// through a rate-limited dispatch queue and recovers automatically from
// transport and authentication failures.
//
// # Architecture
//
// A Client owns one Connection and one DispatchQueue. Callers invoke
// hub methods through Client.Invoke; the call flows queue admission →
// recovery gate → connection → wire codec and back, with response
// post-processing (envelope classification, transparent gzip
// decompression, shape defaults) before the result reaches the caller.
//
// # Failure model
//
//   - Malformed wire frames are dropped with a diagnostic; the stream
//     continues.
//   - Transport losses run a fixed reconnect schedule; an invoke whose
//     connect-wait ceiling expires gets exactly one manual restart.
//   - An auth-shaped error triggers exactly one recovery cycle (forced
//     token refresh, reconnect, retry); a second auth error surfaces.
//   - Application errors (envelope success=false or error completions)
//     are never retried and reach the caller as *ServerError.
//
// Queue backpressure is not an error; it shows up only as latency.
//
// # Concurrency
//
// One logical connection is shared by any number of concurrent callers.
// The dispatch queue guarantees FIFO admission only; completion order
// is unconstrained. A connect attempt in flight is shared: concurrent
// callers await the same completion signal instead of dialing twice.
// The RecoveryGate is the one piece of coarse shared state: closing it
// holds new invokes while a foreground recovery (app resume, forced
// token refresh) runs.
package hub
