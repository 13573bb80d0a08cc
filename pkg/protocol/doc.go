// Package protocol implements the hubwire binary wire protocol.
//
// The protocol carries RPC traffic between a client and a remote hub
// over a persistent byte-stream transport. It is optimized for minimal
// bandwidth and fast encoding/decoding with no reflection.
//
// # Wire Format
//
// Each message occupies one frame:
//
//	[VarInt payload length][payload]
//
// The length prefix is a little-endian base-128 varint: 7 bits of data
// per byte, high bit set on continuation bytes. Decoding aborts once the
// accumulated shift would exceed 35 bits, which bounds the damage a
// corrupt stream can do.
//
// The payload is a positional sequence whose first element is the
// message type tag:
//
//   - Invocation (1): headers, invocation id, target, arguments, stream ids
//   - StreamItem (2): headers, invocation id, item
//   - Completion (3): headers, invocation id, result kind, result or error
//   - Ping (6): no payload
//   - Close (7): error, allow-reconnect flag
//
// Unknown tags are skipped rather than treated as fatal, so newer peers
// can introduce message types without breaking older clients.
//
// # Streaming
//
// The transport delivers arbitrary byte chunks, so a read may end in
// the middle of a frame. Parser retains the undecoded tail across Push
// calls: feeding it a buffer split at any byte boundary yields the same
// message sequence as feeding it whole. A malformed payload drops only
// its own frame; decoding of subsequent frames continues.
//
// # Encoding
//
//   - Varint: compact encoding for lengths and counts
//   - Length-prefixed: strings, JSON documents, and byte arrays
//   - Single byte: booleans, type tags, result kinds
//
// Completion results and stream items are wire values: absent, a UTF-8
// JSON document, or raw bytes. Raw bytes conventionally hold
// gzip-compressed JSON; decompression is the caller's concern.
package protocol
