package utils

import (
	"errors"
	"slices"
)

const (
	kindBits   = 8
	lengthBits = 16
	headerBits = kindBits + lengthBits

	MaxMessage = 1<<lengthBits - 1
)

var ErrMessageTooLong = errors.New("utils: message too long")

// Pack frames data as a kind byte, a 16 bit byte count and the data itself,
// so messages survive being split across link payloads.
func Pack(kind byte, data []byte) ([]bool, error) {
	if len(data) > MaxMessage {
		return nil, ErrMessageTooLong
	}
	header := []byte{kind, byte(len(data) >> 8), byte(len(data))}
	return BytesToBits(append(header, data...)), nil
}

// Unpacker reassembles packed messages from an in-order bit stream.
type Unpacker struct {
	buf []bool
}

func (u *Unpacker) Feed(bits []bool) {
	u.buf = append(u.buf, bits...)
}

// Next pops the next complete message.
func (u *Unpacker) Next() (kind byte, data []byte, ok bool) {
	if len(u.buf) < headerBits {
		return 0, nil, false
	}
	header := BitsToBytes(u.buf[:headerBits])
	n := int(header[1])<<8 | int(header[2])
	end := headerBits + 8*n
	if len(u.buf) < end {
		return 0, nil, false
	}
	data = BitsToBytes(u.buf[headerBits:end])
	u.buf = slices.Delete(u.buf, 0, end)
	return header[0], data, true
}

// Pending is the number of buffered bits not yet forming a message.
func (u *Unpacker) Pending() int {
	return len(u.buf)
}
