package wire

import (
	"bytes"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder mode for wire messages.
// Configured for deterministic encoding with integer keys.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for wire messages.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		// Event timestamps need sub-second resolution.
		Time: cbor.TimeUnixMicro,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Lenient decoding for forward compatibility
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Marshal encodes a value to CBOR bytes.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR bytes into a value.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// NewEncoder creates a new CBOR encoder that writes to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder creates a new CBOR decoder that reads from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}

// EncodeRequest encodes a request message to CBOR bytes.
func EncodeRequest(req *Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return Marshal(req)
}

// DecodeRequest decodes CBOR bytes into a request message.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return &req, nil
}

// EncodeReply encodes a reply message to CBOR bytes.
func EncodeReply(reply *Reply) ([]byte, error) {
	return Marshal(reply)
}

// DecodeReply decodes CBOR bytes into a reply message.
func DecodeReply(data []byte) (*Reply, error) {
	var reply Reply
	if err := Unmarshal(data, &reply); err != nil {
		return nil, fmt.Errorf("failed to decode reply: %w", err)
	}
	return &reply, nil
}

// EncodeEvent encodes an event message to CBOR bytes.
func EncodeEvent(msg *EventMessage) ([]byte, error) {
	if !msg.Kind.IsValid() {
		return nil, fmt.Errorf("invalid event kind: %d", msg.Kind)
	}
	return Marshal(msg)
}

// DecodeEvent decodes CBOR bytes into an event message.
func DecodeEvent(data []byte) (*EventMessage, error) {
	var msg EventMessage
	if err := Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	if !msg.Kind.IsValid() {
		return nil, fmt.Errorf("invalid event kind: %d", msg.Kind)
	}
	return &msg, nil
}

// Clone creates a deep copy of the CBOR data by re-encoding.
// Interface-typed fields come back in their generic decoded form.
func Clone[T any](v T) (T, error) {
	var result T
	data, err := Marshal(v)
	if err != nil {
		return result, err
	}
	err = Unmarshal(data, &result)
	return result, err
}

// Equal compares two values by their CBOR encoding.
func Equal(a, b any) bool {
	dataA, errA := Marshal(a)
	dataB, errB := Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(dataA, dataB)
}
