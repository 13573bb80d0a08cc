package protocol

import "encoding/json"

// Protocol identity advertised during connection negotiation.
const (
	// ProtocolName is the wire protocol identifier.
	ProtocolName = "hubwire"

	// ProtocolVersion is the wire protocol version.
	ProtocolVersion = 1
)

// MessageType identifies the type of hub message carried in a frame.
type MessageType uint8

const (
	MessageInvocation MessageType = 1 // Caller → hub method call
	MessageStreamItem MessageType = 2 // Hub → caller streamed item
	MessageCompletion MessageType = 3 // Hub → caller invocation result
	MessagePing       MessageType = 6 // Keepalive, either direction
	MessageClose      MessageType = 7 // Connection teardown notice
)

// String returns the string representation of the message type.
func (mt MessageType) String() string {
	switch mt {
	case MessageInvocation:
		return "Invocation"
	case MessageStreamItem:
		return "StreamItem"
	case MessageCompletion:
		return "Completion"
	case MessagePing:
		return "Ping"
	case MessageClose:
		return "Close"
	default:
		return "Unknown"
	}
}

// ResultKind classifies a Completion's payload.
// The wire literal fully determines which of result/error is populated.
type ResultKind uint8

const (
	ResultVoid    ResultKind = 1 // Neither result nor error
	ResultNonVoid ResultKind = 2 // Result present
	ResultError   ResultKind = 3 // Error present
)

// String returns the string representation of the result kind.
func (rk ResultKind) String() string {
	switch rk {
	case ResultVoid:
		return "Void"
	case ResultNonVoid:
		return "NonVoid"
	case ResultError:
		return "Error"
	default:
		return "Unknown"
	}
}

// ValueKind classifies a wire value (invocation results and stream items).
type ValueKind uint8

const (
	ValueAbsent ValueKind = 0 // No value
	ValueJSON   ValueKind = 1 // UTF-8 JSON document
	ValueBinary ValueKind = 2 // Raw bytes (conventionally gzip-compressed JSON)
)

// Value is a wire value: absent, a JSON document, or raw bytes.
type Value struct {
	Kind   ValueKind
	JSON   json.RawMessage // Set when Kind == ValueJSON
	Binary []byte          // Set when Kind == ValueBinary
}

// JSONValue wraps a JSON document as a wire value.
func JSONValue(raw json.RawMessage) Value {
	return Value{Kind: ValueJSON, JSON: raw}
}

// BinaryValue wraps raw bytes as a wire value.
func BinaryValue(b []byte) Value {
	return Value{Kind: ValueBinary, Binary: b}
}

// IsAbsent returns true if the value carries no payload.
func (v Value) IsAbsent() bool {
	return v.Kind == ValueAbsent
}

// HubMessage is the tagged union of messages exchanged with a hub.
type HubMessage interface {
	// MessageType returns the wire type tag for this message.
	MessageType() MessageType
}

// Invocation asks the hub to run a named method with positional arguments.
// An empty InvocationID marks the call fire-and-forget: no Completion
// will be correlated back.
type Invocation struct {
	Headers      map[string]string
	InvocationID string
	Target       string
	Arguments    []json.RawMessage
	StreamIDs    []string
}

// MessageType returns MessageInvocation.
func (m *Invocation) MessageType() MessageType { return MessageInvocation }

// StreamItem carries one element of a streamed invocation result.
type StreamItem struct {
	Headers      map[string]string
	InvocationID string
	Item         Value
}

// MessageType returns MessageStreamItem.
func (m *StreamItem) MessageType() MessageType { return MessageStreamItem }

// Completion is the terminal response correlated to an Invocation by its
// invocation id. Exactly one of Result/Error is populated, or neither
// for a void completion; Kind() derives the wire literal from that state.
type Completion struct {
	Headers      map[string]string
	InvocationID string
	Result       Value
	Error        string
}

// MessageType returns MessageCompletion.
func (m *Completion) MessageType() MessageType { return MessageCompletion }

// Kind returns the ResultKind implied by the populated fields:
// error present → Error; else result present → NonVoid; else → Void.
func (m *Completion) Kind() ResultKind {
	switch {
	case m.Error != "":
		return ResultError
	case !m.Result.IsAbsent():
		return ResultNonVoid
	default:
		return ResultVoid
	}
}

// Ping is a keepalive message with no payload.
type Ping struct{}

// MessageType returns MessagePing.
func (m *Ping) MessageType() MessageType { return MessagePing }

// Close tells the peer the connection is going away.
// AllowReconnect indicates whether the client may run its automatic
// reconnect schedule.
type Close struct {
	Error          string
	AllowReconnect bool
}

// MessageType returns MessageClose.
func (m *Close) MessageType() MessageType { return MessageClose }
