package fmtx

import (
	"bytes"
	"testing"
)

func TestSprintfVerbs(t *testing.T) {
	// Every case must render identically on host and MCU builds.
	for _, c := range []struct {
		fmt  string
		args []any
		want string
	}{
		{"hello %s", []any{"world"}, "hello world"},
		{"num %d hex %x HEX %X", []any{255, 255, 255}, "num 255 hex ff HEX FF"},
		{"neg hex %x %X", []any{-255, -255}, "neg hex -ff -FF"},
		{"uhex %x", []any{uint64(0xfedcba9876543210)}, "uhex fedcba9876543210"},
		{"neg %d", []any{int16(-53)}, "neg -53"},
		{"bool %t %t", []any{true, false}, "bool true false"},
		{"literal %%", nil, "literal %"},
		{"q=%q", []any{"a\"b\\c"}, `q="a\"b\\c"`},
		{"v=%v", []any{uint32(123)}, "v=123"},
		{"trim: %.3s", []any{"abcdef"}, "trim: abc"},
		{"pad: %5s|", []any{"ab"}, "pad:    ab|"},
	} {
		if got := Sprintf(c.fmt, c.args...); got != c.want {
			t.Fatalf("Sprintf(%q, ...) = %q, want %q", c.fmt, got, c.want)
		}
	}
}

func TestPrintfUsesDefaultOutput(t *testing.T) {
	var buf bytes.Buffer
	old := DefaultOutput
	DefaultOutput = &buf
	t.Cleanup(func() { DefaultOutput = old })

	if _, err := Printf("v=%d", 7); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "v=7" {
		t.Fatalf("Printf wrote %q", buf.String())
	}
}

func TestFprintf(t *testing.T) {
	var buf bytes.Buffer
	if _, err := Fprintf(&buf, "hi %s", "there"); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "hi there" {
		t.Fatalf("Fprintf wrote %q", buf.String())
	}
}

func TestErrorf(t *testing.T) {
	err := Errorf("bad %s: %d", "thing", 3)
	if err == nil || err.Error() != "bad thing: 3" {
		t.Fatalf("Errorf = %v", err)
	}
}
