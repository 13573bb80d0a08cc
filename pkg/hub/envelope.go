package hub

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hubwire-dev/hubwire/pkg/protocol"
)

// ResultShape tells the client what container the caller expects so
// absent responses map to a deterministic empty value. The caller
// declares the shape explicitly; the client never inspects result types
// at runtime.
type ResultShape int

const (
	// ShapeScalar expects a single value; absent maps to JSON null.
	ShapeScalar ResultShape = iota

	// ShapeObject expects an object; absent maps to {}.
	ShapeObject

	// ShapeArray expects an array; absent maps to [].
	ShapeArray
)

// String returns the string representation of the result shape.
func (s ResultShape) String() string {
	switch s {
	case ShapeScalar:
		return "Scalar"
	case ShapeObject:
		return "Object"
	case ShapeArray:
		return "Array"
	default:
		return "Unknown"
	}
}

func (s ResultShape) emptyValue() json.RawMessage {
	switch s {
	case ShapeObject:
		return json.RawMessage(`{}`)
	case ShapeArray:
		return json.RawMessage(`[]`)
	default:
		return json.RawMessage(`null`)
	}
}

// Envelope is the application-level response carried inside a
// Completion's result. success=false is always surfaced as a
// ServerError regardless of transport success.
type Envelope struct {
	Success  bool            `json:"success"`
	Message  string          `json:"message,omitempty"`
	Status   json.RawMessage `json:"status,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

// decodeResultValue turns a wire value into the envelope JSON document.
// Binary values hold the gzip-compressed UTF-8 JSON of the envelope.
func decodeResultValue(v protocol.Value) (json.RawMessage, error) {
	switch v.Kind {
	case protocol.ValueAbsent:
		return nil, nil
	case protocol.ValueJSON:
		return v.JSON, nil
	case protocol.ValueBinary:
		out, err := gunzip(v.Binary)
		if err != nil {
			return nil, fmt.Errorf("hub: decompressing result: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("hub: unsupported result value kind %d", v.Kind)
	}
}

// parseEnvelope decodes the response envelope from raw JSON.
func parseEnvelope(raw json.RawMessage) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("hub: malformed response envelope: %w", err)
	}
	return &env, nil
}

// normalizeResponse reverses the compressed-payload convention and
// applies the shape default. When the envelope's response is raw bytes
// (a base64 string whose bytes carry the gzip magic), it is
// decompressed to UTF-8 JSON; callers never see the compression. An
// absent or null response maps to the shape's empty container.
func normalizeResponse(raw json.RawMessage, shape ResultShape) (json.RawMessage, error) {
	raw = decompressIfBinary(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return shape.emptyValue(), nil
	}
	return raw, nil
}

// decompressIfBinary returns the inflated JSON when raw is a base64
// string of gzip data, and raw unchanged otherwise. Plain strings pass
// through: without the gzip magic there is nothing to reverse.
func decompressIfBinary(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || raw[0] != '"' {
		return raw
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return raw
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return raw
	}
	if len(decoded) < 2 || decoded[0] != 0x1f || decoded[1] != 0x8b {
		return raw
	}
	out, err := gunzip(decoded)
	if err != nil {
		return raw
	}
	return out
}

func gunzip(b []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, protocol.DefaultMaxAllocation+1))
	if err != nil {
		return nil, err
	}
	if len(out) > protocol.DefaultMaxAllocation {
		return nil, protocol.ErrAllocationTooLarge
	}
	return out, nil
}

// Result unmarshals an Invoke result into T. The shape the caller
// passed to Invoke already guaranteed a non-null container for Object
// and Array results, so unmarshaling into maps and slices cannot see
// null.
func Result[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("hub: decoding result: %w", err)
	}
	return v, nil
}
