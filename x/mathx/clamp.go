package mathx

import "golang.org/x/exp/constraints"

// Clamp pins v to the closed range [lo, hi]. Bounds may be given in
// either order.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Between reports whether v lies in [lo, hi], in either bound order.
func Between[T constraints.Ordered](v, lo, hi T) bool {
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo <= v && v <= hi
}
