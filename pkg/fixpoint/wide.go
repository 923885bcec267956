package fixpoint

import "math/bits"

// U128 is an unsigned 128-bit integer used to compare squared correlations
// against energy products without losing precision.
type U128 struct {
	Hi, Lo uint64
}

// Mul64 returns the full product a*b.
func Mul64(a, b uint64) U128 {
	hi, lo := bits.Mul64(a, b)
	return U128{Hi: hi, Lo: lo}
}

// MulSmall multiplies by a small factor. The high word wraps if the product
// does not fit in 128 bits.
func (u U128) MulSmall(k uint64) U128 {
	hi, lo := bits.Mul64(u.Lo, k)
	return U128{Hi: u.Hi*k + hi, Lo: lo}
}

// Cmp returns -1, 0 or +1.
func (u U128) Cmp(v U128) int {
	switch {
	case u.Hi < v.Hi:
		return -1
	case u.Hi > v.Hi:
		return 1
	case u.Lo < v.Lo:
		return -1
	case u.Lo > v.Lo:
		return 1
	}
	return 0
}

func (u U128) Greater(v U128) bool {
	return u.Cmp(v) > 0
}
