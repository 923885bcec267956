package arq

import (
	"testing"
)

func TestBitSet(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		setBits   []int
		clearBits []int
		expected  string
	}{
		{"Set and Clear bits", 8, []int{1, 3, 5}, []int{3}, "01000100"},
		{"Set bits only", 5, []int{0, 2, 4}, []int{}, "10101"},
		{"Out of range is ignored", 4, []int{-1, 4, 100}, []int{}, "0000"},
		{"Across words", 130, []int{64, 129}, []int{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bs := NewBitSet(tt.size)
			for _, bit := range tt.setBits {
				bs.Set(bit)
			}
			for _, bit := range tt.clearBits {
				bs.Clear(bit)
			}
			if tt.expected != "" && bs.String() != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, bs.String())
			}
			for _, bit := range tt.setBits {
				want := bit >= 0 && bit < tt.size
				for _, c := range tt.clearBits {
					if c == bit {
						want = false
					}
				}
				if bs.IsSet(bit) != want {
					t.Errorf("bit %d: expected %v", bit, want)
				}
			}
		})
	}
}

func TestBitSetCount(t *testing.T) {
	bs := NewBitSet(256)
	for _, i := range []int{0, 63, 64, 200, 255} {
		bs.Set(i)
	}
	if bs.Count() != 5 {
		t.Errorf("expected 5, got %d", bs.Count())
	}
}
