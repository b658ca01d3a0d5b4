package codec

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// CBOR is the binary codec selected by the signal.cbor subprotocol.
var CBOR Codec = cborCodec{}

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2) so the same
// control message always produces identical bytes.
var encMode cbor.EncMode

// decMode decodes maps into map[string]any so decoded records can be
// re-encoded as JSON for peers using the text codec.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

type cborCodec struct{}

func (cborCodec) Name() string { return SubprotocolCBOR }

func (cborCodec) Binary() bool { return true }

func (cborCodec) Unmarshal(data []byte) (map[string]any, error) {
	var fields map[string]any
	if err := decMode.Unmarshal(data, &fields); err != nil {
		var typeErr *cbor.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("%w: got %s", ErrNotObject, typeErr.CBORType)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: got null", ErrNotObject)
	}
	return fields, nil
}

func (cborCodec) Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}
