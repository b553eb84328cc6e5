package safe

import (
	"math"
	"math/big"
)

// SafeAdd performs int64 addition and panics on overflow/underflow.
func SafeAdd(a, b int64) int64 {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		panic("CORE_SAFE_ADD_OVERFLOW")
	}
	return a + b
}

// SafeSub performs int64 subtraction and panics on overflow/underflow.
func SafeSub(a, b int64) int64 {
	if (b > 0 && a < math.MinInt64+b) || (b < 0 && a > math.MaxInt64+b) {
		panic("CORE_SAFE_SUB_OVERFLOW")
	}
	return a - b
}

// SafeMul performs int64 multiplication and panics on overflow/underflow.
func SafeMul(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a > 0 {
		if b > 0 {
			if a > math.MaxInt64/b {
				panic("CORE_SAFE_MUL_OVERFLOW")
			}
		} else {
			if b < math.MinInt64/a {
				panic("CORE_SAFE_MUL_OVERFLOW")
			}
		}
	} else {
		if b > 0 {
			if a < math.MinInt64/b {
				panic("CORE_SAFE_MUL_OVERFLOW")
			}
		} else {
			if a < math.MaxInt64/b {
				panic("CORE_SAFE_MUL_OVERFLOW")
			}
		}
	}
	return a * b
}

// SafeDiv performs int64 division and panics on division by zero.
func SafeDiv(a, b int64) int64 {
	if b == 0 {
		panic("CORE_SAFE_DIV_BY_ZERO")
	}
	// int64 MinInt64 / -1 also overflows.
	if a == math.MinInt64 && b == -1 {
		panic("CORE_SAFE_DIV_OVERFLOW")
	}
	return a / b
}

// MulDiv computes (a*b)/d with a 128-bit intermediate, so position notional
// and VWAP arithmetic cannot overflow on the product alone. Panics if d is
// zero or if the final result does not fit in int64.
func MulDiv(a, b, d int64) int64 {
	if d == 0 {
		panic("CORE_SAFE_MULDIV_BY_ZERO")
	}

	prod := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	prod.Quo(prod, big.NewInt(d))

	if !prod.IsInt64() {
		panic("CORE_SAFE_MULDIV_OVERFLOW")
	}
	return prod.Int64()
}

// MulAddDiv computes (a*b + c*d)/e with a wide intermediate. Used for
// volume-weighted averages, where either product alone can exceed int64 on
// realistic quantity/price pairs. Panics if e is zero or the result does
// not fit in int64.
func MulAddDiv(a, b, c, d, e int64) int64 {
	if e == 0 {
		panic("CORE_SAFE_MULADDDIV_BY_ZERO")
	}

	sum := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	sum.Add(sum, new(big.Int).Mul(big.NewInt(c), big.NewInt(d)))
	sum.Quo(sum, big.NewInt(e))

	if !sum.IsInt64() {
		panic("CORE_SAFE_MULADDDIV_OVERFLOW")
	}
	return sum.Int64()
}
