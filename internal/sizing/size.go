// Package sizing provides overflow-checked arithmetic for container offsets.
package sizing

import "math"

// AddUint64 adds two uint64 values, returning (result, false) on overflow.
func AddUint64(a, b uint64) (uint64, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}

// Window converts a segment at offset/length inside a data section that
// starts at base into an absolute read position and buffer size. It returns
// overflowErr if base is negative, the end of the window does not fit in an
// int64, or length does not fit in an int.
func Window(base int64, offset, length uint64, overflowErr error) (start int64, n int, err error) {
	if base < 0 {
		return 0, 0, overflowErr
	}
	abs, ok := AddUint64(uint64(base), offset)
	if !ok {
		return 0, 0, overflowErr
	}
	end, ok := AddUint64(abs, length)
	if !ok || end > math.MaxInt64 || length > uint64(math.MaxInt) {
		return 0, 0, overflowErr
	}
	return int64(abs), int(length), nil //nolint:gosec // bounds checked above
}
