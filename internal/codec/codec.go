// Package codec encodes and decodes the relay's message envelopes.
//
// A message is an open-ended key/value record. The relay only looks at two
// keys: "type", which it injects on its own control messages, and "to", which
// requests point-to-point delivery. Every other key is forwarded untouched.
// Two wire encodings are supported and negotiated per connection through the
// WebSocket subprotocol: JSON (the default) and CBOR.
package codec

import (
	"errors"
)

// Subprotocol names offered during the WebSocket handshake.
const (
	SubprotocolJSON = "signal.json"
	SubprotocolCBOR = "signal.cbor"
)

var (
	// ErrMalformed reports data that cannot be decoded by the codec.
	ErrMalformed = errors.New("codec: malformed message")
	// ErrNotObject reports a well-formed value that is not a key/value record.
	ErrNotObject = errors.New("codec: message is not an object")
)

// Codec converts between wire bytes and key/value records.
type Codec interface {
	// Name is the WebSocket subprotocol that selects this codec.
	Name() string
	// Binary reports whether frames are sent as binary rather than text.
	Binary() bool
	// Unmarshal decodes a single record.
	Unmarshal(data []byte) (map[string]any, error)
	// Marshal encodes v.
	Marshal(v any) ([]byte, error)
}

// Subprotocols lists the supported subprotocols in server preference order.
func Subprotocols() []string {
	return []string{SubprotocolJSON, SubprotocolCBOR}
}

// ForSubprotocol returns the codec negotiated for name. An empty or unknown
// name selects JSON.
func ForSubprotocol(name string) Codec {
	if name == SubprotocolCBOR {
		return CBOR
	}
	return JSON
}
