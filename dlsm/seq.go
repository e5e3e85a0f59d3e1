package dlsm

// rotate returns n measured relative to ref within the given modulus, i.e.
// the distance travelled from ref to n going forward. This is the "rotate
// so the reference point is 0 and compare" technique spec.md §9 calls for
// to make sequence-number comparisons wrap-safe.
func rotate(n, ref, modulo int) int {
	d := (n - ref) % modulo
	if d < 0 {
		d += modulo
	}
	return d
}

// inWindowExclusive reports whether n lies in the range (lower, lower+span],
// measured rotated relative to lower: lower itself is excluded, lower+span
// is included.
func inWindowExclusive(n, lower, span, modulo int) bool {
	d := rotate(n, lower, modulo)
	return d > 0 && d <= span
}

// inWindowHalfOpen reports lower <= n < lower+span (rotated).
func inWindowHalfOpen(n, lower, span, modulo int) bool {
	d := rotate(n, lower, modulo)
	return d < span
}

// isGoodNR reports whether nr is an acceptable N(R) value for advancing
// V(A): va <= nr <= vs, measured rotated relative to va (spec.md §9).
func isGoodNR(nr, va, vs, modulo int) bool {
	span := rotate(vs, va, modulo)
	d := rotate(nr, va, modulo)
	return d <= span
}
