package modem

import (
	"errors"

	"Athernet/pkg/config"
)

var ErrLineCode = errors.New("invalid line code")

// SymbolCoder turns a group of bits into samples and back. A group is the
// length field or the frame body; each is padded to whole symbols.
type SymbolCoder[T Sample] interface {
	// Samples is the length of the waveform carrying n bits.
	Samples(n int) int
	Modulate(dst []T, bits []bool) []T
	// Demodulate decodes n bits from src, which holds Samples(n) samples.
	Demodulate(dst []bool, src []T, n int) ([]bool, error)
}

// NewSymbolCoder selects the coder named by the configuration.
func NewSymbolCoder[T Sample, A Accumulator](t *WaveformTable[T, A], modulation string) SymbolCoder[T] {
	if modulation == config.ModulationNRZI {
		return &NRZICoder[T, A]{table: t}
	}
	return &OFDMCoder[T, A]{table: t}
}
