package arq

import "slices"

// ReceiverWindow buffers out-of-order payloads and releases the contiguous
// prefix in sequence order.
type ReceiverWindow struct {
	size     int
	seqLimit int

	received    *BitSet
	packets     [][]bool
	windowStart int
	last        int

	stream [][]bool
}

func NewReceiverWindow(size, seqLimit int) *ReceiverWindow {
	return &ReceiverWindow{
		size:     size,
		seqLimit: seqLimit,
		received: NewBitSet(seqLimit),
		packets:  make([][]bool, seqLimit),
		last:     -1,
	}
}

// Receive stores payload under seq when seq lies in the window and returns
// the cumulative ack, the last in-order sequence number, or -1 before the
// first delivery.
func (w *ReceiverWindow) Receive(payload []bool, seq int) int {
	if seq < 0 || seq >= w.seqLimit {
		return w.last
	}
	offset := (seq - w.windowStart + w.seqLimit) % w.seqLimit
	if offset >= w.size {
		return w.last
	}
	w.received.Set(seq)
	w.packets[seq] = slices.Clone(payload)

	for w.received.IsSet(w.windowStart) {
		w.received.Clear(w.windowStart)
		w.stream = append(w.stream, w.packets[w.windowStart])
		w.packets[w.windowStart] = nil
		w.last = w.windowStart
		w.windowStart = (w.windowStart + 1) % w.seqLimit
	}
	return w.last
}

// Collected is the number of delivered payloads not yet drained.
func (w *ReceiverWindow) Collected() int {
	return len(w.stream)
}

// Drain hands over the delivered payloads in order.
func (w *ReceiverWindow) Drain() [][]bool {
	out := w.stream
	w.stream = nil
	return out
}
