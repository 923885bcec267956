// Package arq implements the go-back-n windows of the MAC layer. The sender
// is acked cumulatively and rewinds its cursor on timeout; the receiver
// buffers out-of-order units inside its window.
package arq

import (
	"time"

	"Athernet/internel/syncutil"
)

// Unit is a payload waiting for its cumulative ack.
type Unit struct {
	Payload []bool
	Seq     int
}

// SenderWindow holds at most size unacked units. Units are consumed for
// transmission through a cursor that an ARQ timeout rewinds to the oldest
// unacked unit.
type SenderWindow struct {
	mu       syncutil.Mutex
	size     int
	seqLimit int

	units       []*Unit // units[0] carries windowStart
	windowStart int
	cursor      int

	freed chan struct{}
}

func NewSenderWindow(size, seqLimit int) *SenderWindow {
	return &SenderWindow{
		size:     size,
		seqLimit: seqLimit,
		units:    make([]*Unit, 0, size),
		freed:    make(chan struct{}, 1),
	}
}

func (w *SenderWindow) nextSeq() int {
	return (w.windowStart + len(w.units)) % w.seqLimit
}

// NextSeq is the sequence number the next enqueued unit will get.
func (w *SenderWindow) NextSeq() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextSeq()
}

// TryEnqueue assigns u the next sequence number and appends it, waiting up
// to timeout for a free slot.
func (w *SenderWindow) TryEnqueue(u *Unit, timeout time.Duration) bool {
	var timer *time.Timer
	for {
		w.mu.Lock()
		if len(w.units) < w.size {
			u.Seq = w.nextSeq()
			w.units = append(w.units, u)
			w.mu.Unlock()
			if timer != nil {
				timer.Stop()
			}
			return true
		}
		w.mu.Unlock()

		if timer == nil {
			timer = time.NewTimer(timeout)
		}
		select {
		case <-w.freed:
		case <-timer.C:
			return w.tryEnqueueNow(u)
		}
	}
}

func (w *SenderWindow) tryEnqueueNow(u *Unit) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.units) >= w.size {
		return false
	}
	u.Seq = w.nextSeq()
	w.units = append(w.units, u)
	return true
}

// ConsumeOne returns the unit under the cursor and advances it.
func (w *SenderWindow) ConsumeOne() (*Unit, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cursor >= len(w.units) {
		return nil, false
	}
	u := w.units[w.cursor]
	w.cursor++
	return u, true
}

// Unconsume steps the cursor back over a unit that could not be sent.
func (w *SenderWindow) Unconsume() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cursor = max(w.cursor-1, 0)
}

// AckCumulative discards every unit up to and including ack. Acks outside
// the open window are stale and ignored. It reports whether any unit was
// discarded.
func (w *SenderWindow) AckCumulative(ack int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if ack < 0 || ack >= w.seqLimit {
		return false
	}
	offset := (ack - w.windowStart + w.seqLimit) % w.seqLimit
	if offset >= w.size {
		return false
	}
	n := min(offset+1, len(w.units))
	if n == 0 {
		return false
	}
	clear(w.units[:n])
	w.units = append(w.units[:0], w.units[n:]...)
	w.windowStart = (w.windowStart + n) % w.seqLimit
	w.cursor = max(w.cursor-n, 0)

	select {
	case w.freed <- struct{}{}:
	default:
	}
	return true
}

// Reset rewinds the cursor so that every unacked unit is sent again.
func (w *SenderWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cursor = 0
}

func (w *SenderWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.units)
}

func (w *SenderWindow) WindowStart() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.windowStart
}

// Pending is the number of units not yet consumed since the last Reset.
func (w *SenderWindow) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.units) - w.cursor
}
