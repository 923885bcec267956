package ring

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoundsUp(t *testing.T) {
	assert.Equal(t, 8, New[int](5).Cap())
	assert.Equal(t, 1, New[int](1).Cap())
	assert.Panics(t, func() { New[int](0) })
}

func TestPushSliceFillsToCapacity(t *testing.T) {
	r := New[int](4)
	require.True(t, r.PushSlice([]int{0, 1, 2}))
	require.True(t, r.PushSlice([]int{3}))
	assert.False(t, r.PushSlice([]int{4}), "push into a full ring must fail")
	assert.Equal(t, 4, r.Len())

	dst := make([]int, 4)
	assert.Equal(t, 4, r.Peek(0, dst))
	assert.Equal(t, []int{0, 1, 2, 3}, dst)
}

func TestPushSliceWraps(t *testing.T) {
	r := New[int](8)
	require.True(t, r.PushSlice([]int{0, 1, 2, 3, 4, 5}))
	r.Discard(5)
	require.True(t, r.PushSlice([]int{6, 7, 8, 9, 10}))
	assert.Equal(t, 6, r.Len())

	dst := make([]int, 10)
	n := r.Peek(0, dst)
	assert.Equal(t, []int{5, 6, 7, 8, 9, 10}, dst[:n])

	n = r.Peek(2, dst[:3])
	assert.Equal(t, []int{7, 8, 9}, dst[:n])

	assert.False(t, r.PushSlice([]int{1, 2, 3}), "all-or-nothing")
	assert.Equal(t, 6, r.Len())
}

func TestMustPushPanicsOnOverflow(t *testing.T) {
	r := New[int](2)
	r.MustPush([]int{1, 2})
	assert.PanicsWithValue(t, ErrOverflow, func() { r.MustPush([]int{3}) })
}

func TestDiscardClamps(t *testing.T) {
	r := New[int](4)
	r.MustPush([]int{1, 2})
	r.Discard(10)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, r.Peek(0, make([]int, 2)))
}

func TestReady(t *testing.T) {
	r := New[int](4)
	select {
	case <-r.Ready():
		t.Fatal("ready before any push")
	case <-time.After(10 * time.Millisecond):
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		r.MustPush([]int{1})
	}()
	select {
	case <-r.Ready():
	case <-time.After(time.Second):
		t.Fatal("push did not signal")
	}
}

func TestConcurrentProducerConsumer(t *testing.T) {
	const total = 100000
	r := New[int](64)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		chunk := make([]int, 16)
		for i := 0; i < total; {
			n := min(len(chunk), total-i)
			for j := range n {
				chunk[j] = i + j
			}
			if r.PushSlice(chunk[:n]) {
				i += n
			} else {
				runtime.Gosched()
			}
		}
	}()

	buf := make([]int, 32)
	for expected := 0; expected < total; {
		n := r.Peek(0, buf)
		if n == 0 {
			select {
			case <-r.Ready():
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}
		for _, v := range buf[:n] {
			require.Equal(t, expected, v)
			expected++
		}
		r.Discard(n)
	}
	wg.Wait()
}
