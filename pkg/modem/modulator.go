package modem

import (
	"fmt"

	"golang.org/x/exp/rand"

	"Athernet/pkg/config"
	"Athernet/pkg/frame"
)

// Modulator turns MAC frames into waveforms. It reuses internal scratch
// space and is not safe for concurrent use.
type Modulator[T Sample, A Accumulator] struct {
	table      *WaveformTable[T, A]
	coder      SymbolCoder[T]
	layout     frame.Layout
	lengthBits int
	limit      int
	jam        T

	bits []bool
}

func NewModulator[T Sample, A Accumulator](t *WaveformTable[T, A], p *config.PhysicalConfig, layout frame.Layout) *Modulator[T, A] {
	return &Modulator[T, A]{
		table:      t,
		coder:      NewSymbolCoder(t, p.Modulation),
		layout:     layout,
		lengthBits: p.LengthBits,
		limit:      p.PayloadSymbolLimit,
		jam:        t.Domain.FromFloat(p.JamAmplitude),
		bits:       make([]bool, 0, layout.Bits()+p.PayloadSymbolLimit+2*CRCResidualBits),
	}
}

// FrameSamples is the waveform length of a frame with n payload bits.
func (m *Modulator[T, A]) FrameSamples(n int) int {
	body := m.layout.Bits() + n + 2*CRCResidualBits
	return len(m.table.Preamble) + m.coder.Samples(m.lengthBits) + m.coder.Samples(body) + len(m.table.Silence)
}

// MaxFrameSamples is the waveform length of the largest legal frame.
func (m *Modulator[T, A]) MaxFrameSamples() int {
	return m.FrameSamples(m.limit)
}

// AppendFrame appends the waveform of f to dst. It does not allocate when
// dst has room for FrameSamples(len(f.Payload)) more samples.
func (m *Modulator[T, A]) AppendFrame(dst []T, f *frame.Frame) []T {
	if len(f.Payload) > m.limit {
		panic(fmt.Sprintf("modem: payload of %d bits exceeds the limit of %d", len(f.Payload), m.limit))
	}
	length := m.layout.Bits() + len(f.Payload)
	if length >= 1<<m.lengthBits {
		panic(fmt.Sprintf("modem: length %d does not fit %d bits", length, m.lengthBits))
	}

	dst = append(dst, m.table.Preamble...)

	bits := frame.AppendUint(m.bits[:0], uint64(length), m.lengthBits)
	dst = m.coder.Modulate(dst, bits)

	bits = m.layout.Append(bits[:0], f.Header)
	bits = AppendCRC8(bits, 0)
	payloadStart := len(bits)
	bits = append(bits, f.Payload...)
	bits = AppendCRC8(bits, payloadStart)
	dst = m.coder.Modulate(dst, bits)
	m.bits = bits

	return append(dst, m.table.Silence...)
}

func (m *Modulator[T, A]) Modulate(f *frame.Frame) []T {
	return m.AppendFrame(make([]T, 0, m.FrameSamples(len(f.Payload))), f)
}

// Jam fills dst with random antipodal samples at the jam amplitude.
func (m *Modulator[T, A]) Jam(dst []T, rng *rand.Rand) []T {
	for i := range dst {
		if rng.Intn(2) == 0 {
			dst[i] = m.jam
		} else {
			dst[i] = -m.jam
		}
	}
	return dst
}
