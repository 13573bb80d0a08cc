package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MaxFramePayload is the maximum accepted frame payload size.
// Larger declared lengths are treated as stream corruption.
const MaxFramePayload = DefaultMaxAllocation

// Codec errors.
var (
	ErrFrameTooLarge   = errors.New("protocol: frame payload too large")
	ErrUnknownMessage  = errors.New("protocol: unknown message type")
	ErrMalformedFrame  = errors.New("protocol: malformed frame payload")
	ErrStreamCorrupted = errors.New("protocol: byte stream corrupted")
)

// EncodeMessage encodes a single hub message as one wire frame:
// varint payload length followed by the payload. The payload is a
// positional sequence whose first element is the message type tag.
func EncodeMessage(m HubMessage) []byte {
	payload := NewEncoder()
	encodePayload(payload, m)

	e := NewEncoderWithCap(payload.Len() + MaxVarintLen)
	e.WriteUvarint(uint64(payload.Len()))
	e.WriteBytes(payload.Bytes())
	return e.Bytes()
}

// AppendMessage appends the wire frame for m to dst and returns the
// extended slice.
func AppendMessage(dst []byte, m HubMessage) []byte {
	return append(dst, EncodeMessage(m)...)
}

func encodePayload(e *Encoder, m HubMessage) {
	e.WriteByte(byte(m.MessageType()))

	switch msg := m.(type) {
	case *Invocation:
		encodeHeaders(e, msg.Headers)
		e.WriteString(msg.InvocationID)
		e.WriteString(msg.Target)
		e.WriteUvarint(uint64(len(msg.Arguments)))
		for _, arg := range msg.Arguments {
			e.WriteLenBytes(arg)
		}
		e.WriteUvarint(uint64(len(msg.StreamIDs)))
		for _, id := range msg.StreamIDs {
			e.WriteString(id)
		}

	case *StreamItem:
		encodeHeaders(e, msg.Headers)
		e.WriteString(msg.InvocationID)
		encodeValue(e, msg.Item)

	case *Completion:
		encodeHeaders(e, msg.Headers)
		e.WriteString(msg.InvocationID)
		kind := msg.Kind()
		e.WriteByte(byte(kind))
		switch kind {
		case ResultError:
			e.WriteString(msg.Error)
		case ResultNonVoid:
			encodeValue(e, msg.Result)
		}

	case *Ping:
		// No payload beyond the tag.

	case *Close:
		e.WriteString(msg.Error)
		e.WriteBool(msg.AllowReconnect)
	}
}

func encodeHeaders(e *Encoder, h map[string]string) {
	e.WriteUvarint(uint64(len(h)))
	for k, v := range h {
		e.WriteString(k)
		e.WriteString(v)
	}
}

func encodeValue(e *Encoder, v Value) {
	e.WriteByte(byte(v.Kind))
	switch v.Kind {
	case ValueJSON:
		e.WriteLenBytes(v.JSON)
	case ValueBinary:
		e.WriteLenBytes(v.Binary)
	}
}

// Parser incrementally decodes hub messages from a frame stream.
//
// Push appends newly arrived bytes and returns every complete message
// they yield. A buffer ending mid-frame is not an error: the undecoded
// tail is retained and consumed on the next Push. Frames with unknown
// type tags are skipped for forward compatibility, and a malformed
// payload drops only that frame; both are reported through DropHandler
// when set.
type Parser struct {
	rest    []byte
	dropped uint64

	// DropHandler, when non-nil, is invoked once per skipped or dropped
	// frame with a diagnostic error.
	DropHandler func(error)
}

// NewParser creates a parser with empty state.
func NewParser() *Parser {
	return &Parser{}
}

// Dropped returns the number of frames dropped or skipped so far.
func (p *Parser) Dropped() uint64 {
	return p.dropped
}

// Buffered returns the number of bytes retained from an incomplete frame.
func (p *Parser) Buffered() int {
	return len(p.rest)
}

// Reset discards any buffered partial frame. Call between connections.
func (p *Parser) Reset() {
	p.rest = nil
}

// Push appends data to the stream and returns all complete messages.
// It returns an error only when the stream itself is unrecoverable
// (corrupt length prefix or oversized frame); per-frame payload
// problems drop that frame and decoding continues.
func (p *Parser) Push(data []byte) ([]HubMessage, error) {
	buf := data
	if len(p.rest) > 0 {
		buf = append(p.rest, data...)
		p.rest = nil
	}

	var msgs []HubMessage
	for len(buf) > 0 {
		length, n := DecodeUvarint(buf)
		if n == -1 {
			// Incomplete length prefix; wait for more bytes.
			break
		}
		if n < 0 {
			p.rest = nil
			return msgs, ErrStreamCorrupted
		}
		if length > MaxFramePayload {
			p.rest = nil
			return msgs, ErrFrameTooLarge
		}
		if uint64(len(buf)-n) < length {
			// Frame body not fully arrived yet.
			break
		}

		payload := buf[n : n+int(length)]
		buf = buf[n+int(length):]

		msg, err := decodePayload(payload)
		if err != nil {
			p.drop(err)
			continue
		}
		msgs = append(msgs, msg)
	}

	if len(buf) > 0 {
		p.rest = append(p.rest[:0], buf...)
	}
	return msgs, nil
}

func (p *Parser) drop(err error) {
	p.dropped++
	if p.DropHandler != nil {
		p.DropHandler(err)
	}
}

// decodePayload decodes one frame payload into a hub message.
func decodePayload(payload []byte) (HubMessage, error) {
	d := NewDecoder(payload)
	tag, err := d.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedFrame)
	}

	switch MessageType(tag) {
	case MessageInvocation:
		return decodeInvocation(d)
	case MessageStreamItem:
		return decodeStreamItem(d)
	case MessageCompletion:
		return decodeCompletion(d)
	case MessagePing:
		return &Ping{}, nil
	case MessageClose:
		return decodeClose(d)
	default:
		return nil, fmt.Errorf("%w: tag %d", ErrUnknownMessage, tag)
	}
}

func decodeInvocation(d *Decoder) (*Invocation, error) {
	headers, err := decodeHeaders(d)
	if err != nil {
		return nil, malformed("invocation headers", err)
	}
	invocationID, err := d.ReadString()
	if err != nil {
		return nil, malformed("invocation id", err)
	}
	target, err := d.ReadString()
	if err != nil {
		return nil, malformed("invocation target", err)
	}
	if target == "" {
		return nil, malformed("invocation target", errors.New("empty"))
	}

	argc, err := d.ReadCollectionCount()
	if err != nil {
		return nil, malformed("invocation argument count", err)
	}
	var args []json.RawMessage
	for i := 0; i < argc; i++ {
		arg, err := d.ReadLenBytes()
		if err != nil {
			return nil, malformed("invocation argument", err)
		}
		args = append(args, json.RawMessage(arg))
	}

	streamc, err := d.ReadCollectionCount()
	if err != nil {
		return nil, malformed("invocation stream count", err)
	}
	var streamIDs []string
	for i := 0; i < streamc; i++ {
		id, err := d.ReadString()
		if err != nil {
			return nil, malformed("invocation stream id", err)
		}
		streamIDs = append(streamIDs, id)
	}

	return &Invocation{
		Headers:      headers,
		InvocationID: invocationID,
		Target:       target,
		Arguments:    args,
		StreamIDs:    streamIDs,
	}, nil
}

func decodeStreamItem(d *Decoder) (*StreamItem, error) {
	headers, err := decodeHeaders(d)
	if err != nil {
		return nil, malformed("stream item headers", err)
	}
	invocationID, err := d.ReadString()
	if err != nil {
		return nil, malformed("stream item invocation id", err)
	}
	if invocationID == "" {
		return nil, malformed("stream item invocation id", errors.New("empty"))
	}
	item, err := decodeValue(d)
	if err != nil {
		return nil, malformed("stream item value", err)
	}
	return &StreamItem{
		Headers:      headers,
		InvocationID: invocationID,
		Item:         item,
	}, nil
}

func decodeCompletion(d *Decoder) (*Completion, error) {
	headers, err := decodeHeaders(d)
	if err != nil {
		return nil, malformed("completion headers", err)
	}
	invocationID, err := d.ReadString()
	if err != nil {
		return nil, malformed("completion invocation id", err)
	}
	if invocationID == "" {
		return nil, malformed("completion invocation id", errors.New("empty"))
	}
	kindByte, err := d.ReadByte()
	if err != nil {
		return nil, malformed("completion result kind", err)
	}

	c := &Completion{Headers: headers, InvocationID: invocationID}
	switch ResultKind(kindByte) {
	case ResultVoid:
		// Carries neither result nor error.
	case ResultNonVoid:
		v, err := decodeValue(d)
		if err != nil {
			return nil, malformed("completion result", err)
		}
		if v.IsAbsent() {
			return nil, malformed("completion result", errors.New("non-void completion without value"))
		}
		c.Result = v
	case ResultError:
		msg, err := d.ReadString()
		if err != nil {
			return nil, malformed("completion error", err)
		}
		if msg == "" {
			return nil, malformed("completion error", errors.New("empty error message"))
		}
		c.Error = msg
	default:
		return nil, malformed("completion result kind", fmt.Errorf("literal %d", kindByte))
	}
	return c, nil
}

func decodeClose(d *Decoder) (*Close, error) {
	errMsg, err := d.ReadString()
	if err != nil {
		return nil, malformed("close error", err)
	}
	allowReconnect, err := d.ReadBool()
	if err != nil {
		return nil, malformed("close allow-reconnect", err)
	}
	return &Close{Error: errMsg, AllowReconnect: allowReconnect}, nil
}

func decodeHeaders(d *Decoder) (map[string]string, error) {
	count, err := d.ReadCollectionCount()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	h := make(map[string]string, count)
	for i := 0; i < count; i++ {
		k, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		v, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		h[k] = v
	}
	return h, nil
}

func decodeValue(d *Decoder) (Value, error) {
	kindByte, err := d.ReadByte()
	if err != nil {
		return Value{}, err
	}
	switch ValueKind(kindByte) {
	case ValueAbsent:
		return Value{}, nil
	case ValueJSON:
		b, err := d.ReadLenBytes()
		if err != nil {
			return Value{}, err
		}
		return JSONValue(b), nil
	case ValueBinary:
		b, err := d.ReadLenBytes()
		if err != nil {
			return Value{}, err
		}
		return BinaryValue(b), nil
	default:
		return Value{}, fmt.Errorf("value kind %d", kindByte)
	}
}

func malformed(what string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformedFrame, what, err)
}
