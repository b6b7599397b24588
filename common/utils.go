package common

// Coalesce returns the first non-zero value from the provided values, or the zero value if all are zero.
//
// Parameters:
//   - values: a variadic list of values to check for non-zero status
//
// Returns:
//   - T: the first non-zero value from the input, or the zero value if all are zero
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// Unsigned covers the integer types used for GPU counts and byte offsets.
type Unsigned interface {
	~uint | ~uint32 | ~uint64
}

// CeilDiv returns ceil(n / d). A zero divisor yields zero.
//
// Parameters:
//   - n: numerator
//   - d: divisor
//
// Returns:
//   - T: the rounded-up quotient
func CeilDiv[T Unsigned](n, d T) T {
	if d == 0 {
		return 0
	}
	return (n + d - 1) / d
}

// AlignUp rounds n up to the next multiple of align. An align of 0 or 1 returns n unchanged.
//
// Parameters:
//   - n: value to align
//   - align: required alignment
//
// Returns:
//   - T: the aligned value
func AlignUp[T Unsigned](n, align T) T {
	if align <= 1 {
		return n
	}
	return CeilDiv(n, align) * align
}
