package modem

import "math"

func chirp(out *[]float64, startFreq, endFreq float64, length int, sampleRate float64) {
	c := (endFreq - startFreq) / (float64(length) / sampleRate)
	f0 := startFreq

	for i := 0; i < length; i++ {
		t := float64(i) / sampleRate
		o := math.Sin(2 * math.Pi * (c/2*t + f0) * t)
		*out = append(*out, o)
	}
}

// PreambleParams describes an up-chirp followed by a down-chirp.
type PreambleParams struct {
	MinFreq    float64
	MaxFreq    float64
	Length     int
	SampleRate float64
	Amplitude  float64
}

func (p PreambleParams) New() []float64 {
	preamble := make([]float64, 0, p.Length)

	up := p.Length / 2
	chirp(&preamble, p.MinFreq, p.MaxFreq, up, p.SampleRate)
	chirp(&preamble, p.MaxFreq, p.MinFreq, p.Length-up, p.SampleRate)

	if p.Amplitude != 0 {
		for i := range preamble {
			preamble[i] *= p.Amplitude
		}
	}
	return preamble
}
