package protocol

import (
	"errors"
	"testing"
)

// FuzzPeekType checks that arbitrary frames never panic and that every
// failure is one of the two protocol sentinels.
func FuzzPeekType(f *testing.F) {
	f.Add([]byte(`{"type":"Run","data":{"function":"Step"}}`))
	f.Add([]byte(`{"type":""}`))
	f.Add([]byte(`{"data":1}`))
	f.Add([]byte(`{"type":42}`))
	f.Add([]byte(`[]`))
	f.Add([]byte(`not json`))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, frame []byte) {
		typ, err := PeekType(frame)
		if err == nil {
			if typ == "" {
				t.Fatal("empty type without error")
			}
			return
		}
		if !errors.Is(err, ErrMalformedFrame) && !errors.Is(err, ErrMissingType) {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

// FuzzDecode checks that a decoded envelope survives a re-encode.
func FuzzDecode(f *testing.F) {
	f.Add([]byte(`{"type":"Subscribe","data":{"variables":["temp"]}}`))
	f.Add([]byte(`{"type":"ClassInfo"}`))
	f.Add([]byte(`{"type":"Run","data":null}`))

	f.Fuzz(func(t *testing.T, frame []byte) {
		env, err := Decode(frame)
		if err != nil {
			return
		}
		out, err := Encode(env)
		if err != nil {
			t.Fatalf("re-encode: %v", err)
		}
		again, err := Decode(out)
		if err != nil {
			t.Fatalf("decode re-encoded frame: %v", err)
		}
		if again.Type != env.Type {
			t.Fatalf("type changed: %q -> %q", env.Type, again.Type)
		}
	})
}
