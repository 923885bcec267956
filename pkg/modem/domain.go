package modem

import (
	"math"

	"Athernet/pkg/fixpoint"
)

// Sample is the element type of a signal.
type Sample interface {
	~int32 | ~float32
}

// Accumulator holds dot products and energies of samples.
type Accumulator interface {
	~int64 | ~float64
}

// Domain fixes how samples are represented and compared. The modem is
// generic over it so the same state machines run on Q15 integers or floats.
type Domain[T Sample, A Accumulator] interface {
	Name() string
	FromFloat(v float64) T
	ToFloat(v T) float64
	FromDevice(v int32) T
	ToDevice(v T) int32
	// Add mixes two samples, saturating where the representation requires.
	Add(a, b T) T
	// Confident reports factor*dot^2 > ep*er without overflow.
	Confident(dot, ep, er A, factor int) bool
}

// Dot is the inner product over the common prefix of a and b.
func Dot[T Sample, A Accumulator](a, b []T) A {
	var s A
	n := min(len(a), len(b))
	a, b = a[:n], b[:n]
	for i := range a {
		s += A(a[i]) * A(b[i])
	}
	return s
}

func Energy[T Sample, A Accumulator](a []T) A {
	return Dot[T, A](a, a)
}

// IntDomain uses Q15 samples with 64-bit accumulation. Squares of
// accumulators are compared in 128 bits.
type IntDomain struct{}

func (IntDomain) Name() string { return "int" }

func (IntDomain) FromFloat(v float64) fixpoint.Fixpoint { return fixpoint.FromFloat(v) }

func (IntDomain) ToFloat(v fixpoint.Fixpoint) float64 { return v.ToFloat() }

func (IntDomain) FromDevice(v int32) fixpoint.Fixpoint { return fixpoint.FromDevice(v) }

func (IntDomain) ToDevice(v fixpoint.Fixpoint) int32 { return v.ToDevice() }

func (IntDomain) Add(a, b fixpoint.Fixpoint) fixpoint.Fixpoint { return a.Add(b) }

func (IntDomain) Confident(dot, ep, er int64, factor int) bool {
	if dot <= 0 || ep < 0 || er < 0 {
		return false
	}
	lhs := fixpoint.Mul64(uint64(dot), uint64(dot)).MulSmall(uint64(factor))
	rhs := fixpoint.Mul64(uint64(ep), uint64(er))
	return lhs.Greater(rhs)
}

// FloatDomain uses float32 samples with float64 accumulation.
type FloatDomain struct{}

func (FloatDomain) Name() string { return "float" }

func (FloatDomain) FromFloat(v float64) float32 { return float32(v) }

func (FloatDomain) ToFloat(v float32) float64 { return float64(v) }

func (FloatDomain) FromDevice(v int32) float32 { return float32(float64(v) / math.MaxInt32) }

func (FloatDomain) ToDevice(v float32) int32 {
	f := float64(v)
	if f >= 1 {
		return math.MaxInt32
	}
	if f <= -1 {
		return -math.MaxInt32
	}
	return int32(f * math.MaxInt32)
}

func (FloatDomain) Add(a, b float32) float32 { return a + b }

func (FloatDomain) Confident(dot, ep, er float64, factor int) bool {
	if dot <= 0 {
		return false
	}
	return float64(factor)*dot*dot > ep*er
}

var (
	_ Domain[fixpoint.Fixpoint, int64] = IntDomain{}
	_ Domain[float32, float64]         = FloatDomain{}
)
