//go:build rp2040 || rp2350

package strconvx

// Minimal allocation-aware formatting with strconv signatures.
// Supported bases: 2..36. FormatFloat is basic fixed-point, not
// IEEE-perfect; use sparingly on MCU.

func Itoa(i int) string { return FormatInt(int64(i), 10) }

func FormatInt(i int64, base int) string {
	if base < 2 || base > 36 {
		base = 10
	}
	neg := i < 0
	var u uint64
	if neg {
		u = uint64(-i)
	} else {
		u = uint64(i)
	}
	s := formatUint(u, base)
	if neg {
		return "-" + s
	}
	return s
}

func FormatUint(u uint64, base int) string {
	if base < 2 || base > 36 {
		base = 10
	}
	return formatUint(u, base)
}

func formatUint(u uint64, base int) string {
	if u == 0 {
		return "0"
	}
	const digits = "0123456789abcdefghijklmnopqrstuvwxyz"
	var buf [64]byte
	i := len(buf)
	b := uint64(base)
	for u > 0 {
		i--
		buf[i] = digits[u%b]
		u /= b
	}
	return string(buf[i:])
}

// FormatFloat supports the 'f' form; other verbs fall back to it.
// bitSize is accepted for signature parity and ignored.
func FormatFloat(f float64, fmt byte, prec, _ int) string {
	if prec < 0 {
		prec = 6
	}
	neg := false
	if f < 0 {
		neg = true
		f = -f
	}
	intp := uint64(f)
	ints := formatUint(intp, 10)
	if prec == 0 {
		if neg {
			return "-" + ints
		}
		return ints
	}

	pow := 1.0
	for i := 0; i < prec; i++ {
		pow *= 10
	}
	fracN := uint64((f-float64(intp))*pow + 0.5)
	if fracN >= uint64(pow) {
		// Rounding carried into the integer part.
		intp++
		ints = formatUint(intp, 10)
		fracN = 0
	}
	fs := formatUint(fracN, 10)
	for len(fs) < prec {
		fs = "0" + fs
	}
	out := ints + "." + fs
	if neg {
		return "-" + out
	}
	return out
}
