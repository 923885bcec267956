package fixpoint

import (
	"math"
	"testing"
)

func TestMul64(t *testing.T) {
	p := Mul64(math.MaxUint64, 2)
	if p.Hi != 1 || p.Lo != math.MaxUint64-1 {
		t.Errorf("unexpected product %+v", p)
	}
}

func TestU128_MulSmall(t *testing.T) {
	p := Mul64(1<<40, 1<<40).MulSmall(2)
	if p.Hi != 1<<17 || p.Lo != 0 {
		t.Errorf("unexpected product %+v", p)
	}
}

func TestU128_Cmp(t *testing.T) {
	tests := []struct {
		a, b     U128
		expected int
	}{
		{U128{0, 1}, U128{0, 2}, -1},
		{U128{1, 0}, U128{0, math.MaxUint64}, 1},
		{U128{3, 3}, U128{3, 3}, 0},
	}
	for _, tt := range tests {
		if result := tt.a.Cmp(tt.b); result != tt.expected {
			t.Errorf("Cmp(%v, %v): expected %d, got %d", tt.a, tt.b, tt.expected, result)
		}
	}
}
