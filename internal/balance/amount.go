package balance

import "lukechampine.com/uint128"

// SaturatingSub returns a-b, or zero when b > a.
func SaturatingSub(a, b uint128.Uint128) uint128.Uint128 {
	if a.Cmp(b) <= 0 {
		return uint128.Zero
	}
	return a.Sub(b)
}

// SaturatingAdd returns a+b, or the maximum u128 on overflow.
func SaturatingAdd(a, b uint128.Uint128) uint128.Uint128 {
	sum, ok := CheckedAdd(a, b)
	if !ok {
		return uint128.Max
	}
	return sum
}

// CheckedAdd returns a+b and false on overflow.
func CheckedAdd(a, b uint128.Uint128) (uint128.Uint128, bool) {
	sum := a.AddWrap(b)
	return sum, sum.Cmp(a) >= 0
}

// Max returns the larger of a and b.
func Max(a, b uint128.Uint128) uint128.Uint128 {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}
