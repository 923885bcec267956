// Package ring provides a single-producer single-consumer lock-free sample
// buffer shared between the audio callback and the demodulation worker.
package ring

import (
	"errors"

	"go.uber.org/atomic"
	"golang.org/x/sys/cpu"
)

var ErrOverflow = errors.New("ring: capacity exceeded")

// Ring is safe for exactly one producer goroutine and one consumer goroutine.
// PushSlice and MustPush belong to the producer; Peek and Discard belong to
// the consumer. Len may be called by either.
type Ring[T any] struct {
	data []T
	mask uint64

	_    cpu.CacheLinePad
	tail atomic.Uint64 // advanced by the producer
	_    cpu.CacheLinePad
	head atomic.Uint64 // advanced by the consumer
	_    cpu.CacheLinePad

	ready chan struct{}
}

// New returns a ring able to hold at least minSize elements. The capacity is
// rounded up to a power of two.
func New[T any](minSize int) *Ring[T] {
	if minSize <= 0 {
		panic("ring: size must be positive")
	}
	size := 1
	for size < minSize {
		size <<= 1
		if size <= 0 {
			panic("ring: size overflow")
		}
	}
	return &Ring[T]{
		data:  make([]T, size),
		mask:  uint64(size - 1),
		ready: make(chan struct{}, 1),
	}
}

func (r *Ring[T]) Cap() int {
	return len(r.data)
}

func (r *Ring[T]) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// PushSlice appends all of src or nothing.
func (r *Ring[T]) PushSlice(src []T) bool {
	tail := r.tail.Load()
	if uint64(len(src)) > uint64(len(r.data))-(tail-r.head.Load()) {
		return false
	}
	start := int(tail & r.mask)
	n := copy(r.data[start:], src)
	copy(r.data, src[n:])
	r.tail.Store(tail + uint64(len(src)))
	r.notify()
	return true
}

// MustPush is PushSlice for callers that treat an overflow as fatal.
func (r *Ring[T]) MustPush(src []T) {
	if !r.PushSlice(src) {
		panic(ErrOverflow)
	}
}

// Peek copies unread elements starting at offset into dst without consuming
// them and returns the number copied.
func (r *Ring[T]) Peek(offset int, dst []T) int {
	avail := r.Len() - offset
	if avail <= 0 {
		return 0
	}
	n := min(avail, len(dst))
	start := int((r.head.Load() + uint64(offset)) & r.mask)
	c := copy(dst[:n], r.data[start:])
	copy(dst[c:n], r.data)
	return n
}

// Discard drops up to n unread elements.
func (r *Ring[T]) Discard(n int) {
	if n <= 0 {
		return
	}
	n = min(n, r.Len())
	r.head.Add(uint64(n))
}

// Ready fires after a push; several pushes may coalesce into one event.
func (r *Ring[T]) Ready() <-chan struct{} {
	return r.ready
}

func (r *Ring[T]) notify() {
	select {
	case r.ready <- struct{}{}:
	default:
	}
}
