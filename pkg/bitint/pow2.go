// SPDX-License-Identifier: MIT

// Package bitint holds the power-of-two helpers used to size FFTs and
// decimation steps. All functions are O(1) and allocation-free.
package bitint

import "math/bits"

// Integer is any built-in signed or unsigned integer type.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo[T Integer](n T) bool {
	return n > 0 && n&(n-1) == 0
}

// NextPowerOfTwo returns the smallest power of two >= n, or 1 for n <= 1.
// Results that do not fit in T wrap to zero.
func NextPowerOfTwo[T Integer](n T) T {
	if n <= 1 {
		return 1
	}
	// n-1 keeps exact powers of two in place.
	return T(1) << bits.Len64(uint64(n-1))
}
