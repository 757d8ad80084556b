package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/overturetool/tempo-plotting-tool/internal/jsoncodec"
)

var (
	// ErrMalformedFrame is returned when a frame is not a JSON object.
	ErrMalformedFrame = errors.New("protocol: malformed frame")

	// ErrMissingType is returned when a frame has no usable "type" field.
	ErrMissingType = errors.New("protocol: missing message type")
)

// Envelope is the outer {type, data} wrapper of every frame.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data and wraps it under typ.
func NewEnvelope(typ string, data any) (Envelope, error) {
	env := Envelope{Type: typ}
	if data == nil {
		return env, nil
	}
	raw, err := jsoncodec.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("protocol: encode %s data: %w", typ, err)
	}
	env.Data = raw
	return env, nil
}

// MustEnvelope is NewEnvelope for payloads that always marshal.
func MustEnvelope(typ string, data any) Envelope {
	env, err := NewEnvelope(typ, data)
	if err != nil {
		panic(err)
	}
	return env
}

// Encode serializes an envelope into a text frame.
func Encode(env Envelope) ([]byte, error) {
	return jsoncodec.Marshal(env)
}

// Decode parses a whole frame.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := jsoncodec.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Type == "" {
		return Envelope{}, ErrMissingType
	}
	return env, nil
}

// PeekType reads only the "type" field of a frame. The payload is left
// untouched so the router does not depend on any handler schema.
// A scalar that is not a string is read leniently as its JSON text, so
// {"type":5} yields "5" and {"type":true} yields "true".
func PeekType(frame []byte) (string, error) {
	typ, err := jsoncodec.GetString(frame, "type")
	if err != nil {
		if !json.Valid(frame) {
			return "", fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return "", ErrMissingType
	}
	if typ == "" {
		return "", ErrMissingType
	}
	return typ, nil
}

// DecodeData decodes the "data" member of a full frame into v. A missing or
// null payload leaves v untouched.
func DecodeData(frame []byte, v any) error {
	env, err := Decode(frame)
	if err != nil {
		return err
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := jsoncodec.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("protocol: decode %s data: %w", env.Type, err)
	}
	return nil
}
