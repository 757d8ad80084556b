package protocol

import "testing"

var benchFrame = []byte(`{"type":"Run","data":{"function":"Step","steps":10}}`)

func BenchmarkPeekType(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := PeekType(benchFrame); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecodeData(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		var req RunRequest
		if err := DecodeData(benchFrame, &req); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEncodeVariableUpdate(b *testing.B) {
	b.ReportAllocs()
	update := VariableUpdate{Name: "tank.level", Value: "12.5", Step: 3}
	for i := 0; i < b.N; i++ {
		env, err := NewEnvelope(TypeVariableUpdate, update)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := Encode(env); err != nil {
			b.Fatal(err)
		}
	}
}
