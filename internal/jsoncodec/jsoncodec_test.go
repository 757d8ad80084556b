package jsoncodec

import (
	"bytes"
	"testing"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMarshalUnmarshal(t *testing.T) {
	data, err := Marshal(sample{Name: "a", Count: 2})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"name":"a","count":2}` {
		t.Fatalf("Marshal = %s", data)
	}

	var out sample
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Name != "a" || out.Count != 2 {
		t.Fatalf("Unmarshal = %+v", out)
	}
}

func TestEncodeDecode(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, sample{Name: "x"}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var out sample
	if err := Decode(&buf, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Name != "x" {
		t.Fatalf("Decode = %+v", out)
	}
}

func TestGetString(t *testing.T) {
	got, err := GetString([]byte(`{"type":"ping","data":{"deep":[1,2,3]}}`), "type")
	if err != nil {
		t.Fatalf("GetString: %v", err)
	}
	if got != "ping" {
		t.Fatalf("GetString = %q, want ping", got)
	}

	if _, err := GetString([]byte(`{"data":{}}`), "type"); err == nil {
		t.Fatal("GetString on missing key should fail")
	}
	if _, err := GetString([]byte(`not json`), "type"); err == nil {
		t.Fatal("GetString on invalid JSON should fail")
	}
}
