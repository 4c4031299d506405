//go:build rp2040 || rp2350

package fmtx

import (
	"io"
	"unicode/utf8"

	"github.com/marklacroix/dht/x/strconvx"
)

// DefaultOutput receives Printf output. Point it at a UART writer from
// the platform bootstrap; the default discards.
var DefaultOutput io.Writer = discard{}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func Sprintf(format string, a ...any) string {
	var b builder
	b.format(format, a...)
	return string(b.buf)
}

func Printf(format string, a ...any) (int, error) {
	return io.WriteString(DefaultOutput, Sprintf(format, a...))
}

func Fprintf(w io.Writer, format string, a ...any) (int, error) {
	return io.WriteString(w, Sprintf(format, a...))
}

func Errorf(format string, a ...any) error {
	return &stringError{Sprintf(format, a...)}
}

type stringError struct{ s string }

func (e *stringError) Error() string { return e.s }

// --- tiny formatter ---
// Verbs: %s %q %d %x %X %v %t %%. Width and precision apply to %s only.
// The subset matches what fmt produces for the same inputs, so code
// behaves the same on host and MCU builds.

type builder struct{ buf []byte }

func (b *builder) byte(c byte)  { b.buf = append(b.buf, c) }
func (b *builder) str(s string) { b.buf = append(b.buf, s...) }

func (b *builder) format(format string, args ...any) {
	ai := 0
	for i := 0; i < len(format); {
		if format[i] != '%' {
			b.byte(format[i])
			i++
			continue
		}
		if i+1 < len(format) && format[i+1] == '%' {
			b.byte('%')
			i += 2
			continue
		}
		i++
		width, prec, hasPrec := 0, 0, false
		i = parseNum(format, i, &width)
		if i < len(format) && format[i] == '.' {
			i++
			hasPrec = true
			i = parseNum(format, i, &prec)
		}
		if i >= len(format) || ai >= len(args) {
			return
		}
		verb := format[i]
		arg := args[ai]
		ai++
		i++

		switch verb {
		case 's', 'q':
			s, ok := asString(arg)
			if !ok {
				b.value(arg)
				continue
			}
			if verb == 'q' {
				s = quote(s)
			}
			if hasPrec && prec < len(s) {
				s = s[:prec]
			}
			for pad := width - utf8.RuneCountInString(s); pad > 0; pad-- {
				b.byte(' ')
			}
			b.str(s)
		case 'd':
			b.str(strconvx.FormatInt(asInt(arg), 10))
		case 'x', 'X':
			h := hexOf(arg)
			if verb == 'X' {
				h = upperHex(h)
			}
			b.str(h)
		case 't':
			if v, _ := arg.(bool); v {
				b.str("true")
			} else {
				b.str("false")
			}
		case 'v':
			b.value(arg)
		default:
			// Unknown verb: write it literally to aid debugging.
			b.byte('%')
			b.byte(verb)
		}
	}
}

func (b *builder) value(v any) {
	switch x := v.(type) {
	case string:
		b.str(x)
	case []byte:
		b.buf = append(b.buf, x...)
	case bool:
		if x {
			b.str("true")
		} else {
			b.str("false")
		}
	case int, int8, int16, int32, int64:
		b.str(strconvx.FormatInt(asInt(x), 10))
	case uint, uint8, uint16, uint32, uint64:
		b.str(strconvx.FormatUint(asUint(x), 10))
	case float32:
		b.str(strconvx.FormatFloat(float64(x), 'f', 6, 32))
	case float64:
		b.str(strconvx.FormatFloat(x, 'f', 6, 64))
	default:
		b.str("<unk>")
	}
}

func asString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	}
	return "", false
}

func asInt(v any) int64 {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	}
	return int64(asUint(v))
}

func asUint(v any) uint64 {
	switch x := v.(type) {
	case uint:
		return uint64(x)
	case uint8:
		return uint64(x)
	case uint16:
		return uint64(x)
	case uint32:
		return uint64(x)
	case uint64:
		return x
	}
	return 0
}

// hexOf renders an integer in base 16 the way fmt does: unsigned kinds
// print their full value, signed kinds keep their sign.
func hexOf(v any) string {
	switch v.(type) {
	case uint, uint8, uint16, uint32, uint64:
		return strconvx.FormatUint(asUint(v), 16)
	}
	n := asInt(v)
	if n < 0 {
		return "-" + strconvx.FormatUint(uint64(-n), 16)
	}
	return strconvx.FormatUint(uint64(n), 16)
}

func upperHex(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'a' <= c && c <= 'f' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}

func parseNum(s string, i int, out *int) int {
	n := 0
	start := i
	for i < len(s) && '0' <= s[i] && s[i] <= '9' {
		n = n*10 + int(s[i]-'0')
		i++
	}
	if i > start {
		*out = n
	}
	return i
}

func quote(s string) string {
	out := []byte{'"'}
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\', '"':
			out = append(out, '\\', s[i])
		case '\n':
			out = append(out, '\\', 'n')
		case '\r':
			out = append(out, '\\', 'r')
		case '\t':
			out = append(out, '\\', 't')
		default:
			out = append(out, s[i])
		}
	}
	return string(append(out, '"'))
}
