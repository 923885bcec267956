// Package fixpoint implements the Q15 sample type of the integer signal domain.
package fixpoint

// Fixpoint is a Q15 number stored in an int32 so that sums of a few
// samples do not overflow before saturation.
type Fixpoint int32

const (
	FractionBits = 15
	Scale        = 1 << FractionBits
	Max          = Fixpoint(Scale - 1)
	Min          = Fixpoint(-Scale)
)

// Add returns the saturated sum.
func (f Fixpoint) Add(other Fixpoint) Fixpoint {
	return Saturate(int64(f) + int64(other))
}

func (f Fixpoint) ToFloat() float64 {
	return float64(f) / Scale
}

// Saturate clamps v into the sample range [Min, Max].
func Saturate(v int64) Fixpoint {
	if v > int64(Max) {
		return Max
	}
	if v < int64(Min) {
		return Min
	}
	return Fixpoint(v)
}

func FromFloat(f float64) Fixpoint {
	return Saturate(int64(f * Scale))
}

// FromDevice converts a full-scale int32 device sample.
func FromDevice(v int32) Fixpoint {
	return Fixpoint(v >> (31 - FractionBits))
}

// ToDevice converts to a full-scale int32 device sample.
func (f Fixpoint) ToDevice() int32 {
	return int32(Saturate(int64(f))) << (31 - FractionBits)
}
