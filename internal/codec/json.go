package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"
)

// JSON is the default text codec.
var JSON Codec = jsonCodec{}

type jsonCodec struct{}

func (jsonCodec) Name() string { return SubprotocolJSON }

func (jsonCodec) Binary() bool { return false }

// Unmarshal rejects invalid UTF-8 instead of letting encoding/json replace it,
// since the raw bytes may be forwarded to peers as a text frame. Numbers are
// kept as integers when they fit int64 or uint64 so that transcoding to CBOR
// does not turn them into floats.
func (jsonCodec) Unmarshal(data []byte) (map[string]any, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: invalid UTF-8", ErrMalformed)
	}
	if !json.Valid(data) {
		var v any
		err := json.Unmarshal(data, &v)
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	fields, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: got %s", ErrNotObject, jsonKind(value))
	}
	if err := convertNumbers(fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// convertNumbers walks a value decoded with UseNumber and replaces every
// json.Number with int64, then uint64, then float64. Integers outside the
// uint64 range degrade to float64.
func convertNumbers(v any) error {
	switch value := v.(type) {
	case map[string]any:
		for key, element := range value {
			converted, err := convertNumber(element)
			if err != nil {
				return err
			}
			value[key] = converted
		}
	case []any:
		for index, element := range value {
			converted, err := convertNumber(element)
			if err != nil {
				return err
			}
			value[index] = converted
		}
	}
	return nil
}

func convertNumber(v any) (any, error) {
	n, ok := v.(json.Number)
	if !ok {
		return v, convertNumbers(v)
	}
	if integer, err := n.Int64(); err == nil {
		return integer, nil
	}
	if unsigned, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
		return unsigned, nil
	}
	float, err := n.Float64()
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return nil, fmt.Errorf("%w: number %q: %v", ErrMalformed, n.String(), err)
	}
	if math.IsInf(float, 0) {
		return nil, fmt.Errorf("%w: number %q out of range", ErrMalformed, n.String())
	}
	return float, nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
