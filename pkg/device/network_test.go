package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func fill(v int32) func(in, out []int32) {
	return func(in, out []int32) {
		for i := range out {
			out[i] = v
		}
	}
}

func TestNetwork(t *testing.T) {

	network := Network[string]{
		SampleRate: 48000,
		Config: NetworkConfig[string]{
			{In: "buf1", Out: "buf1"},
			{In: "buf1", Out: "buf1"},
			{In: "buf3", Out: "buf4"},
			{In: "buf4", Out: "buf3"},
		},
	}

	devs := network.Build()
	require.Len(t, devs, 4)

	var calls atomic.Int64
	var ready atomic.Bool
	expect := func(name string, v int32, want int32) func(in, out []int32) {
		settled := 0
		return func(in, out []int32) {
			calls.Inc()
			if ready.Load() {
				if settled > 0 {
					assert.Equal(t, want, in[0], name)
					assert.Equal(t, want, in[len(in)-1], name)
				}
				settled++
			}
			fill(v)(in, out)
		}
	}

	// the shared buffer hears both outputs, the crossed pair hear each other
	require.NoError(t, devs[0].Start(expect("dev1", 1, 3)))
	require.NoError(t, devs[1].Start(expect("dev2", 2, 3)))
	require.NoError(t, devs[2].Start(expect("dev3", 10, 20)))
	require.NoError(t, devs[3].Start(expect("dev4", 20, 10)))
	ready.Store(true)

	time.Sleep(50 * time.Millisecond)

	for _, d := range devs {
		require.NoError(t, d.Stop())
	}
	n := calls.Load()
	require.Greater(t, n, int64(4))

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, n, calls.Load(), "callback ran after Stop")
}

func TestNetworkSaturates(t *testing.T) {
	network := Network[int]{
		Config: NetworkConfig[int]{
			{In: 0, Out: 0},
			{In: 0, Out: 0},
		},
	}
	devs := network.Build()

	got := make(chan int32, 1)
	require.NoError(t, devs[0].Start(fill(0x7fffff00)))
	require.NoError(t, devs[1].Start(func(in, out []int32) {
		fill(0x7fffff00)(in, out)
		select {
		case got <- in[0]:
		default:
		}
	}))

	deadline := time.After(time.Second)
	for v := int32(0); v != 0x7fffffff; {
		select {
		case v = <-got:
		case <-deadline:
			t.Fatal("sum never saturated")
		}
	}
	require.NoError(t, devs[0].Stop())
	require.NoError(t, devs[1].Stop())
}

func TestNetworkNoise(t *testing.T) {
	network := Network[string]{
		Config: NetworkConfig[string]{{In: "a", Out: "b"}},
		Noise:  100,
	}
	devs := network.Build()

	var seen atomic.Bool
	var bad atomic.Bool
	require.NoError(t, devs[0].Start(func(in, out []int32) {
		cleari32(out)
		for _, v := range in {
			if v < -100 || v > 100 {
				bad.Store(true)
			}
			if v != 0 {
				seen.Store(true)
			}
		}
	}))
	require.Eventually(t, seen.Load, time.Second, time.Millisecond)
	require.NoError(t, devs[0].Stop())
	assert.False(t, bad.Load())
}
