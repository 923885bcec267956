package modem

import (
	"math"

	"Athernet/pkg/config"
)

// WaveformTable holds every precomputed waveform of the physical layer. It is
// built once and shared read-only by the modulator and the synchronizer.
type WaveformTable[T Sample, A Accumulator] struct {
	Domain Domain[T, A]

	Preamble        []T
	PreambleEnergy  A
	ThresholdFactor int

	// Zero[c] and One[c] are the antipodal bases of carrier c over one
	// symbol without cyclic prefix.
	Zero, One    [][]T
	SymbolLength int
	CPLength     int

	SamplesPerBit int
	High          T // line-code level

	Silence []T
}

func NewWaveformTable[T Sample, A Accumulator](d Domain[T, A], p *config.PhysicalConfig) *WaveformTable[T, A] {
	t := &WaveformTable[T, A]{
		Domain:          d,
		ThresholdFactor: p.Preamble.ThresholdFactor,
		SymbolLength:    p.SamplesPerSymbol(),
		CPLength:        p.Carrier.CPLength,
		SamplesPerBit:   p.LineCode.SamplesPerBit,
		High:            d.FromFloat(p.LineCode.Amplitude),
		Silence:         make([]T, p.SilenceLength),
	}

	t.Preamble = t.convert(PreambleParams{
		MinFreq:    p.Preamble.StartFreq,
		MaxFreq:    p.Preamble.EndFreq,
		Length:     p.Preamble.Length,
		SampleRate: p.SampleRate,
		Amplitude:  p.Preamble.Amplitude,
	}.New())
	t.PreambleEnergy = Energy[T, A](t.Preamble)

	freqs := p.CarrierFrequencies()
	amplitude := p.Carrier.Amplitude / float64(max(len(freqs), 1))
	for _, f := range freqs {
		zero := make([]float64, t.SymbolLength)
		for i := range zero {
			zero[i] = amplitude * math.Sin(2*math.Pi*f*float64(i)/p.SampleRate)
		}
		one := make([]float64, len(zero))
		for i := range zero {
			one[i] = -zero[i]
		}
		t.Zero = append(t.Zero, t.convert(zero))
		t.One = append(t.One, t.convert(one))
	}
	return t
}

func (t *WaveformTable[T, A]) convert(signal []float64) []T {
	out := make([]T, len(signal))
	for i, v := range signal {
		out[i] = t.Domain.FromFloat(v)
	}
	return out
}

// Carriers is the number of bits carried by one OFDM symbol.
func (t *WaveformTable[T, A]) Carriers() int {
	return len(t.Zero)
}
