package jsonx

import "testing"

func TestDecodeSources(t *testing.T) {
	type params struct {
		Pin      int    `json:"pin"`
		Variant  string `json:"variant"`
		Interval uint32 `json:"interval_ms"`
	}

	for name, in := range map[string]any{
		"bytes":  []byte(`{"pin":4,"variant":"dht22","interval_ms":5000}`),
		"string": `{"pin":4,"variant":"dht22","interval_ms":5000}`,
		"map":    map[string]any{"pin": 4, "variant": "dht22", "interval_ms": 5000},
	} {
		var p params
		if err := Decode(in, &p); err != nil {
			t.Fatalf("%s: decode failed: %v", name, err)
		}
		if p.Pin != 4 || p.Variant != "dht22" || p.Interval != 5000 {
			t.Fatalf("%s: unexpected result: %+v", name, p)
		}
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	var out struct{ A int }
	if err := Decode([]byte("{nope"), &out); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}
