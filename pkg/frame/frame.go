// Package frame defines the bit layout of a MAC frame.
//
// Every field is written least significant bit first:
//
//	dest | src | seq | ack | flags(8) | header CRC | payload | payload CRC
package frame

import "fmt"

type Flags uint8

const (
	FlagHasAck Flags = 1 << iota
	FlagIsAck
	FlagIsSyn
	FlagCoded // payload belongs to the erasure decoder
)

const FlagBits = 8

type Header struct {
	To    int
	From  int
	Seq   int
	Ack   int
	Flags Flags
}

func (h Header) HasAck() bool { return h.Flags&FlagHasAck != 0 }
func (h Header) IsAck() bool  { return h.Flags&FlagIsAck != 0 }
func (h Header) IsSyn() bool  { return h.Flags&FlagIsSyn != 0 }
func (h Header) Coded() bool  { return h.Flags&FlagCoded != 0 }

func (h Header) String() string {
	return fmt.Sprintf("to=%d from=%d seq=%d ack=%d flags=%04b", h.To, h.From, h.Seq, h.Ack, h.Flags)
}

// Frame is what the synchronizer emits. A frame whose header CRC passed but
// whose payload CRC failed has BadData set and no payload.
type Frame struct {
	Header
	Payload []bool
	BadData bool
}

// Layout fixes the width of the address and sequence fields.
type Layout struct {
	AddressBits int
	SeqBits     int
}

func (l Layout) Bits() int {
	return 2*l.AddressBits + 2*l.SeqBits + FlagBits
}

func (l Layout) Broadcast() int {
	return 1<<l.AddressBits - 1
}

// Append encodes h after dst. Fields are truncated to their width.
func (l Layout) Append(dst []bool, h Header) []bool {
	dst = AppendUint(dst, uint64(h.To), l.AddressBits)
	dst = AppendUint(dst, uint64(h.From), l.AddressBits)
	dst = AppendUint(dst, uint64(h.Seq), l.SeqBits)
	dst = AppendUint(dst, uint64(h.Ack), l.SeqBits)
	dst = AppendUint(dst, uint64(h.Flags), FlagBits)
	return dst
}

// Parse decodes the first Bits() bits.
func (l Layout) Parse(bits []bool) Header {
	var h Header
	off := 0
	next := func(n int) int {
		v := ReadUint(bits[off : off+n])
		off += n
		return int(v)
	}
	h.To = next(l.AddressBits)
	h.From = next(l.AddressBits)
	h.Seq = next(l.SeqBits)
	h.Ack = next(l.SeqBits)
	h.Flags = Flags(next(FlagBits))
	return h
}

// AppendUint appends the n low bits of v, least significant first.
func AppendUint(dst []bool, v uint64, n int) []bool {
	for i := 0; i < n; i++ {
		dst = append(dst, v>>i&1 == 1)
	}
	return dst
}

// ReadUint is the inverse of AppendUint.
func ReadUint(bits []bool) uint64 {
	var v uint64
	for i, b := range bits {
		if b {
			v |= 1 << i
		}
	}
	return v
}
