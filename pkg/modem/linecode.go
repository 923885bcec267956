package modem

// 4b5b keeps at most three code bits without a transition, so NRZI never
// holds one level for long.
var fourToFive = [16]uint8{
	0b11110, 0b01001, 0b10100, 0b10101,
	0b01010, 0b01011, 0b01110, 0b01111,
	0b10010, 0b10011, 0b10110, 0b10111,
	0b11010, 0b11011, 0b11100, 0b11101,
}

var fiveToFour = func() (m [32]int8) {
	for i := range m {
		m[i] = -1
	}
	for nibble, code := range fourToFive {
		m[code] = int8(nibble)
	}
	return
}()

// NRZICoder maps every nibble to a 5 bit code and sends a 1 as a level
// change. A group starts with one slot at the positive level as reference.
type NRZICoder[T Sample, A Accumulator] struct {
	table *WaveformTable[T, A]
}

func (c *NRZICoder[T, A]) Samples(n int) int {
	nibbles := (n + 3) / 4
	return (1 + 5*nibbles) * c.table.SamplesPerBit
}

func (c *NRZICoder[T, A]) Modulate(dst []T, bits []bool) []T {
	level := c.table.High
	slot := func() {
		for range c.table.SamplesPerBit {
			dst = append(dst, level)
		}
	}
	slot()
	for i := 0; i < len(bits); i += 4 {
		var nibble uint8
		for j := 0; j < 4; j++ {
			if i+j < len(bits) && bits[i+j] {
				nibble |= 1 << j
			}
		}
		code := fourToFive[nibble]
		for j := 0; j < 5; j++ {
			if code>>j&1 == 1 {
				level = -level
			}
			slot()
		}
	}
	return dst
}

func (c *NRZICoder[T, A]) Demodulate(dst []bool, src []T, n int) ([]bool, error) {
	spb := c.table.SamplesPerBit
	positive := func(slot int) bool {
		var sum A
		for _, v := range src[slot*spb : (slot+1)*spb] {
			sum += A(v)
		}
		return sum > 0
	}
	prev := positive(0)
	for slot := 1; n > 0; {
		var code uint8
		for j := 0; j < 5; j++ {
			level := positive(slot)
			if level != prev {
				code |= 1 << j
			}
			prev = level
			slot++
		}
		nibble := fiveToFour[code]
		if nibble < 0 {
			return dst, ErrLineCode
		}
		for j := 0; j < 4 && n > 0; j++ {
			dst = append(dst, nibble>>j&1 == 1)
			n--
		}
	}
	return dst, nil
}
