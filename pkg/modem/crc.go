package modem

// CRC8 is long division over GF(2) by the polynomial 1,1,1,0,1,0,1,0,1
// taken in transmission order. It detects every single-bit error; some
// multi-bit patterns pass.
const (
	CRCResidualBits = 8
	crcPoly         = 0b1_0101_0111 // bit j is coefficient j
)

// crcRemainder divides bits followed by pad zero bits and returns the last
// CRCResidualBits positions of the dividend.
func crcRemainder(bits []bool, pad int) uint16 {
	at := func(i int) uint16 {
		if i < len(bits) && bits[i] {
			return 1
		}
		return 0
	}
	n := len(bits) + pad
	var reg uint16
	for k := 0; k <= CRCResidualBits; k++ {
		reg |= at(k) << k
	}
	for i := 0; i < n-CRCResidualBits; i++ {
		if reg&1 != 0 {
			reg ^= crcPoly
		}
		reg = reg>>1 | at(i+CRCResidualBits+1)<<CRCResidualBits
	}
	return reg & 0xff
}

// AppendCRC8 appends the residual of bits[start:] to bits.
func AppendCRC8(bits []bool, start int) []bool {
	r := crcRemainder(bits[start:], CRCResidualBits)
	for k := 0; k < CRCResidualBits; k++ {
		bits = append(bits, r>>k&1 == 1)
	}
	return bits
}

// CheckCRC8 reports whether bits, residual included, divide evenly.
func CheckCRC8(bits []bool) bool {
	if len(bits) < CRCResidualBits {
		return false
	}
	return crcRemainder(bits, 0) == 0
}
