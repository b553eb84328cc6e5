package safe

import (
	"math"
	"testing"
)

func TestSafeMath(t *testing.T) {
	tests := []struct {
		name string
		val1 int64
		val2 int64
		want int64
	}{
		{"Normal Add", 10, 20, 30},
		{"Add Boundary", math.MaxInt64 - 1, 1, math.MaxInt64},
		{"Normal Sub", 30, 10, 20},
		{"Normal Mul", 5, 6, 30},
		{"Normal Div", 100, 4, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got int64
			switch tt.name {
			case "Normal Add", "Add Boundary":
				got = SafeAdd(tt.val1, tt.val2)
			case "Normal Sub":
				got = SafeSub(tt.val1, tt.val2)
			case "Normal Mul":
				got = SafeMul(tt.val1, tt.val2)
			case "Normal Div":
				got = SafeDiv(tt.val1, tt.val2)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMulDiv(t *testing.T) {
	tests := []struct {
		name    string
		a, b, d int64
		want    int64
	}{
		{"Simple", 10, 100, 5, 200},
		// VWAP: (10*100 + 5*110) / 15 in micros
		{"VWAP numerator fits", 1550, 1000000, 15, 103333333},
		// Product exceeds int64 but result fits
		{"BigProduct", math.MaxInt64 / 2, 4, 8, math.MaxInt64 / 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MulDiv(tt.a, tt.b, tt.d); got != tt.want {
				t.Errorf("MulDiv(%d,%d,%d) = %d, want %d", tt.a, tt.b, tt.d, got, tt.want)
			}
		})
	}
}

func TestMulAddDiv(t *testing.T) {
	tests := []struct {
		name          string
		a, b, c, d, e int64
		want          int64
	}{
		// VWAP: (10*100 + 5*110)/15 in fixed point, single truncation.
		{"VWAP", 10 * 1e8, 100 * 1e6, 5 * 1e8, 110 * 1e6, 15 * 1e8, 103333333},
		// 10 units at $50k: each product is 5e19, beyond int64.
		{"BothProductsOverflow", 10 * 1e8, 50_000 * 1e6, 10 * 1e8, 50_000 * 1e6, 20 * 1e8, 50_000 * 1e6},
		{"ZeroFirstTerm", 0, 0, 5, 100, 5, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MulAddDiv(tt.a, tt.b, tt.c, tt.d, tt.e); got != tt.want {
				t.Errorf("MulAddDiv = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMathPanic(t *testing.T) {
	t.Run("Add Overflow", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Error("Should have panicked")
			}
		}()
		SafeAdd(math.MaxInt64, 1)
	})

	t.Run("Div By Zero", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Error("Should have panicked")
			}
		}()
		SafeDiv(10, 0)
	})

	t.Run("MulDiv By Zero", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Error("Should have panicked")
			}
		}()
		MulDiv(10, 10, 0)
	})

	t.Run("MulDiv Result Overflow", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Error("Should have panicked")
			}
		}()
		MulDiv(math.MaxInt64, 2, 1)
	})

	t.Run("MulAddDiv By Zero", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Error("Should have panicked")
			}
		}()
		MulAddDiv(1, 1, 1, 1, 0)
	})
}
