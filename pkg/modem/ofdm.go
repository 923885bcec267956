package modem

// OFDMCoder puts one bit on every carrier of a symbol. Each symbol is
// preceded by a copy of its last CPLength samples.
type OFDMCoder[T Sample, A Accumulator] struct {
	table *WaveformTable[T, A]
}

func (c *OFDMCoder[T, A]) symbols(n int) int {
	k := c.table.Carriers()
	return (n + k - 1) / k
}

func (c *OFDMCoder[T, A]) Samples(n int) int {
	return c.symbols(n) * (c.table.CPLength + c.table.SymbolLength)
}

func (c *OFDMCoder[T, A]) Modulate(dst []T, bits []bool) []T {
	t := c.table
	d := t.Domain
	cp, s, k := t.CPLength, t.SymbolLength, t.Carriers()
	for i := 0; i < len(bits); i += k {
		start := len(dst)
		var zero T
		for range cp + s {
			dst = append(dst, zero)
		}
		symbol := dst[start+cp : start+cp+s]
		for j := 0; j < k; j++ {
			basis := t.Zero[j]
			if i+j < len(bits) && bits[i+j] {
				basis = t.One[j]
			}
			for n := range symbol {
				symbol[n] = d.Add(symbol[n], basis[n])
			}
		}
		copy(dst[start:start+cp], dst[start+s:start+s+cp])
	}
	return dst
}

func (c *OFDMCoder[T, A]) Demodulate(dst []bool, src []T, n int) ([]bool, error) {
	t := c.table
	cp, s, k := t.CPLength, t.SymbolLength, t.Carriers()
	for sym := 0; n > 0; sym++ {
		base := sym*(cp+s) + cp
		window := src[base : base+s]
		for j := 0; j < k && n > 0; j++ {
			one := Dot[T, A](window, t.One[j])
			zero := Dot[T, A](window, t.Zero[j])
			dst = append(dst, one > zero)
			n--
		}
	}
	return dst, nil
}
