package api

import "math/bits"

// Roundpow2 round `size` up to the next power of two, with a floor of
// MinChunksize. Sizes beyond 2^62 overflow int64 and return a negative
// value, callers shall treat that as out of memory.
func Roundpow2(size int64) int64 {
	if size <= MinChunksize {
		return MinChunksize
	}
	n := uint(bits.Len64(uint64(size - 1)))
	if n >= 63 {
		return -1 << 63
	}
	return 1 << n
}

// Log2 return ceil(log2(size)), floored at 3 (8 bytes). Sizes at or
// beyond 2^63 map to 64.
func Log2(size uint64) int {
	if size <= uint64(MinChunksize) {
		return 3
	} else if size >= 1<<63 {
		return 64
	}
	return bits.Len64(size - 1)
}

// Align round `v` up to a multiple of `n`, `n` must be power of 2.
func Align(v, n int64) int64 {
	return (v + n - 1) &^ (n - 1)
}

// Aligned return true if `v` is a multiple of `n`, `n` must be power of 2.
func Aligned(v uintptr, n int64) bool {
	return v&uintptr(n-1) == 0
}
