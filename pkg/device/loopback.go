package device

import (
	"time"

	"Athernet/internel/syncutil"
)

// Loopback feeds each period's output back as the next period's input.
type Loopback struct {
	SampleRate float64 // the fake sample rate, 0 means no limit
	BufferSize int

	mu       syncutil.Mutex
	callback func(in, out []int32)
	done     chan struct{}
	stopped  chan struct{}
}

func (d *Loopback) Start(callback func(in, out []int32)) error {
	size := d.BufferSize
	if size == 0 {
		size = BufferSize
	}
	d.mu.Lock()
	d.callback = callback
	d.done = make(chan struct{})
	d.stopped = make(chan struct{})
	d.mu.Unlock()

	go func() {
		defer close(d.stopped)
		var buf = make([][]int32, 2)
		buf[0] = alloci32(size)
		buf[1] = alloci32(size)

		swap := true
		update := func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			if d.callback == nil {
				return
			}
			if swap {
				d.callback(buf[0], buf[1])
			} else {
				d.callback(buf[1], buf[0])
			}
			swap = !swap
		}

		if p := period(size, d.SampleRate); p == 0 {
			for {
				select {
				case <-d.done:
					return
				default:
					update()
				}
			}
		} else {
			ticker := time.NewTicker(p)
			defer ticker.Stop()
			for {
				select {
				case <-d.done:
					return
				case <-ticker.C:
					update()
				}
			}
		}
	}()
	return nil
}

// Stop returns once the callback can no longer run.
func (d *Loopback) Stop() error {
	d.mu.Lock()
	d.callback = nil
	d.mu.Unlock()
	close(d.done)
	<-d.stopped
	return nil
}
