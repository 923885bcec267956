package arq

import (
	"strings"
)

// BitSet marks which sequence numbers of the receive window hold a packet.
type BitSet struct {
	bits []uint64
	size int
}

func NewBitSet(size int) *BitSet {
	return &BitSet{
		bits: make([]uint64, (size+63)/64),
		size: size,
	}
}

func (b *BitSet) Len() int {
	return b.size
}

func (b *BitSet) Set(pos int) {
	if pos < 0 || pos >= b.size {
		return
	}
	b.bits[pos/64] |= 1 << (pos % 64)
}

func (b *BitSet) Clear(pos int) {
	if pos < 0 || pos >= b.size {
		return
	}
	b.bits[pos/64] &^= 1 << (pos % 64)
}

func (b *BitSet) IsSet(pos int) bool {
	if pos < 0 || pos >= b.size {
		return false
	}
	return b.bits[pos/64]&(1<<(pos%64)) != 0
}

// Count returns the number of set bits.
func (b *BitSet) Count() int {
	n := 0
	for i := 0; i < b.size; i++ {
		if b.IsSet(i) {
			n++
		}
	}
	return n
}

func (b *BitSet) String() string {
	var sb strings.Builder
	for i := 0; i < b.size; i++ {
		if b.IsSet(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}
