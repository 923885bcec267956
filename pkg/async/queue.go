package async

import (
	"context"
	"time"

	"Athernet/internel/syncutil"
)

// Queue is an unbounded FIFO shared between worker goroutines. Consumers
// block with a bounded wait instead of spinning.
type Queue[T any] struct {
	mu     syncutil.Mutex
	items  []T
	signal chan struct{}
}

func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{signal: make(chan struct{}, 1)}
}

func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *Queue[T]) TryPop() (v T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return v, false
	}
	v = q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) > 0 {
		// wake the next consumer
		select {
		case q.signal <- struct{}{}:
		default:
		}
	}
	return v, true
}

// PopTimeout waits at most timeout for an element.
func (q *Queue[T]) PopTimeout(timeout time.Duration) (v T, ok bool) {
	if v, ok = q.TryPop(); ok {
		return
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-q.signal:
			if v, ok = q.TryPop(); ok {
				return
			}
		case <-timer.C:
			return q.TryPop()
		}
	}
}

// Pop waits until an element is available or ctx is done.
func (q *Queue[T]) Pop(ctx context.Context) (v T, err error) {
	for {
		if v, ok := q.TryPop(); ok {
			return v, nil
		}
		select {
		case <-q.signal:
		case <-ctx.Done():
			return v, ctx.Err()
		}
	}
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
