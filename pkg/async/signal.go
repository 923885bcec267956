package async

import "sync"

// Signal is a one-shot broadcast. Every waiter wakes when it is notified.
type Signal struct {
	once sync.Once
	ch   chan struct{}
}

func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Notify fires the signal and reports whether this call fired it.
func (s *Signal) Notify() bool {
	fired := false
	s.once.Do(func() {
		close(s.ch)
		fired = true
	})
	return fired
}

func (s *Signal) Done() <-chan struct{} {
	return s.ch
}

func (s *Signal) Fired() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}
