package layers

import (
	"math"

	"Athernet/pkg/config"
)

// powerWindow is a sliding sum of sample powers. It carries over between
// audio periods.
type powerWindow struct {
	powers []float64
	pos    int
	sum    float64
}

// peak feeds one period through the window and returns the largest sum
// seen in it.
func (w *powerWindow) peak(samples []int32, power func(int32) float64) float64 {
	// resum exactly once per period to stop rounding drift
	w.sum = 0
	for _, p := range w.powers {
		w.sum += p
	}
	peak := 0.0
	for _, v := range samples {
		p := power(v)
		w.sum += p - w.powers[w.pos]
		w.powers[w.pos] = p
		w.pos++
		if w.pos == len(w.powers) {
			w.pos = 0
		}
		peak = max(peak, w.sum)
	}
	return peak
}

// ChannelSense tracks the mean of |x|^Exponent over a sliding window of
// input samples. It also follows the station's own output, so that hearing
// itself through the speaker is not taken for a second transmitter.
type ChannelSense struct {
	exponent  int
	busy      float64
	collision float64
	ratio     float64
	gain      float64

	input  powerWindow
	output powerWindow
	echoes []float64
	echo   int

	// Level is the largest window mean seen in the last period.
	Level float64
}

func NewChannelSense(c *config.PowerMonitorConfig) *ChannelSense {
	return &ChannelSense{
		exponent:  c.Exponent,
		busy:      c.BusyThreshold * float64(c.Window),
		collision: c.CollisionThreshold * float64(c.Window),
		ratio:     c.CollisionRatio,
		gain:      c.EchoGain,
		input:     powerWindow{powers: make([]float64, c.Window)},
		output:    powerWindow{powers: make([]float64, c.Window)},
		echoes:    make([]float64, max(c.EchoPeriods, 1)),
	}
}

func (s *ChannelSense) power(v int32) float64 {
	x := float64(v) / math.MaxInt32
	x *= x
	if s.exponent == 4 {
		x *= x
	}
	return x
}

// Update consumes one period of input and reports whether the channel was
// busy and whether it carried clearly more than our own echo.
func (s *ChannelSense) Update(in []int32) (busy, collision bool) {
	peak := s.input.peak(in, s.power)
	s.Level = peak / float64(len(s.input.powers))
	return peak > s.busy, peak > s.collision && peak > s.ratio*s.ExpectedEcho()
}

// Echo records one period of our own output.
func (s *ChannelSense) Echo(out []int32) {
	s.echoes[s.echo] = s.output.peak(out, s.power)
	s.echo++
	if s.echo == len(s.echoes) {
		s.echo = 0
	}
}

// ExpectedEcho is the loudest window sum our recent output can produce at
// the input.
func (s *ChannelSense) ExpectedEcho() float64 {
	loudest := 0.0
	for _, e := range s.echoes {
		loudest = max(loudest, e)
	}
	return s.gain * loudest
}
