package codec

// Control message types injected by the relay.
const (
	TypeParticipants   = "participants"
	TypeNewParticipant = "new-participant"
	TypeLeave          = "leave"
)

// Envelope is a decoded inbound message. The original bytes are kept so the
// message can be forwarded verbatim to peers that share the sender's codec.
type Envelope struct {
	// Type is the "type" field when it is a string.
	Type string
	// To is the requested recipient when "to" is a string.
	To string
	// Direct is set when "to" is present and truthy. A direct envelope whose
	// To is empty names a recipient that can never exist.
	Direct bool
	// Fields holds every key of the record, reserved ones included.
	Fields map[string]any

	raw   []byte
	codec Codec
}

// Decode parses data with c. Any failure wraps ErrMalformed or ErrNotObject.
func Decode(c Codec, data []byte) (*Envelope, error) {
	fields, err := c.Unmarshal(data)
	if err != nil {
		return nil, err
	}

	env := &Envelope{
		Fields: fields,
		raw:    data,
		codec:  c,
	}
	if typ, ok := fields["type"].(string); ok {
		env.Type = typ
	}
	if to, ok := fields["to"]; ok && truthy(to) {
		env.Direct = true
		env.To, _ = to.(string)
	}
	return env, nil
}

// Message returns the envelope as an outbound message carrying the original
// bytes.
func (e *Envelope) Message() Message {
	return Message{typ: e.Type, value: e.Fields, raw: e.raw, codec: e.codec}
}

// Message is an outbound message that can be encoded for any codec.
type Message struct {
	typ   string
	value any
	raw   []byte
	codec Codec
}

// Type returns the message discriminator, if known.
func (m Message) Type() string {
	return m.typ
}

// Encode returns the wire form of m for c. Messages that originated from a
// peer using the same codec are returned byte-for-byte.
func (m Message) Encode(c Codec) ([]byte, error) {
	if m.raw != nil && m.codec != nil && m.codec.Name() == c.Name() {
		return m.raw, nil
	}
	return c.Marshal(m.value)
}

type participantsMessage struct {
	Type         string   `json:"type" cbor:"type"`
	Participants []string `json:"participants" cbor:"participants"`
}

type presenceMessage struct {
	Type string `json:"type" cbor:"type"`
	From string `json:"from" cbor:"from"`
}

// Participants is the roster snapshot sent to a client when it joins.
func Participants(peers []string) Message {
	if peers == nil {
		peers = []string{}
	}
	return Message{
		typ:   TypeParticipants,
		value: participantsMessage{Type: TypeParticipants, Participants: peers},
	}
}

// NewParticipant announces that from joined the room.
func NewParticipant(from string) Message {
	return Message{
		typ:   TypeNewParticipant,
		value: presenceMessage{Type: TypeNewParticipant, From: from},
	}
}

// Leave announces that from left the room.
func Leave(from string) Message {
	return Message{
		typ:   TypeLeave,
		value: presenceMessage{Type: TypeLeave, From: from},
	}
}

// truthy reports whether a "to" value requests direct delivery. Null, false,
// zero and empty values mean broadcast.
func truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0
	case float32:
		return v != 0
	case int64:
		return v != 0
	case uint64:
		return v != 0
	case int:
		return v != 0
	case []byte:
		return len(v) > 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}
