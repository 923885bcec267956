package layers

import (
	"go.uber.org/atomic"
	"golang.org/x/exp/rand"

	"Athernet/pkg/config"
	"Athernet/pkg/frame"
)

// Transmission is a modulated frame ready for the device. It is never
// modified after it has been offered.
type Transmission struct {
	Header  frame.Header
	Samples []int32
	// Priority transmissions skip the remaining contention count.
	Priority bool
}

// ChannelAccess runs CSMA/CD on the audio thread. The MAC sender hands
// transmissions over through pending; the audio thread takes one when its
// contention counter runs out on an idle channel and hands it back when a
// collision aborts it.
type ChannelAccess struct {
	control    *ProtocolControl
	self       int
	slot       int
	maxBackoff int
	jam        []int32

	pending   atomic.Pointer[Transmission]
	completed atomic.Pointer[Transmission]
	active    atomic.Bool

	sent       atomic.Uint64
	collisions atomic.Uint64

	// owned by the audio thread
	rng     *rand.Rand
	current *Transmission
	seen    *Transmission
	offset  int
	counter int
	window  int
	jamPos  int
}

func NewChannelAccess(c *config.MACConfig, control *ProtocolControl, jam []int32, seed uint64) *ChannelAccess {
	return &ChannelAccess{
		control:    control,
		self:       c.Address,
		slot:       c.Slot,
		maxBackoff: c.MaxBackoff,
		jam:        jam,
		rng:        rand.New(rand.NewSource(seed)),
		window:     1,
	}
}

// Offer queues tx if nothing is pending.
func (a *ChannelAccess) Offer(tx *Transmission) bool {
	return a.pending.CompareAndSwap(nil, tx)
}

// Replace swaps a pending transmission for a newer rendition of it. It fails
// once the audio thread has taken old.
func (a *ChannelAccess) Replace(old, tx *Transmission) bool {
	return a.pending.CompareAndSwap(old, tx)
}

// Busy reports whether a transmission is pending or on the air.
func (a *ChannelAccess) Busy() bool {
	return a.pending.Load() != nil || a.active.Load()
}

// Completed returns the last fully transmitted frame once.
func (a *ChannelAccess) Completed() *Transmission {
	return a.completed.Swap(nil)
}

func (a *ChannelAccess) Sent() uint64       { return a.sent.Load() }
func (a *ChannelAccess) Collisions() uint64 { return a.collisions.Load() }

// Transmitting is only meaningful on the audio thread.
func (a *ChannelAccess) Transmitting() bool {
	return a.current != nil
}

// Fill writes one period of output. It never blocks or allocates.
func (a *ChannelAccess) Fill(out []int32) {
	if a.current != nil {
		if a.control.Collision.Load() {
			a.abort(out)
			return
		}
		a.emit(out)
		return
	}
	clear(out)

	tx := a.pending.Load()
	if tx == nil {
		return
	}
	if tx != a.seen {
		a.seen = tx
		if tx.Priority {
			a.counter = 0
		}
	}
	if a.control.Busy.Load() {
		return
	}
	a.counter--
	if a.counter >= 0 {
		return
	}

	a.active.Store(true)
	if tx = a.pending.Swap(nil); tx == nil {
		a.active.Store(false)
		return
	}
	a.current = tx
	a.offset = 0
	a.emit(out)
}

func (a *ChannelAccess) emit(out []int32) {
	n := copy(out, a.current.Samples[a.offset:])
	clear(out[n:])
	a.offset += n
	if a.offset < len(a.current.Samples) {
		return
	}
	a.completed.Store(a.current)
	a.current = nil
	a.counter = a.slot / 2
	a.window = 1
	a.sent.Inc()
	a.active.Store(false)
}

func (a *ChannelAccess) abort(out []int32) {
	for i := range out {
		out[i] = a.jam[a.jamPos]
		a.jamPos++
		if a.jamPos == len(a.jam) {
			a.jamPos = 0
		}
	}
	a.collisions.Inc()

	a.window = min(a.window*2, a.maxBackoff)
	if p := a.control.PrivilegeNode.Load(); p >= 0 && int(p) != a.self {
		a.counter = a.maxBackoff * a.slot
	} else {
		a.counter = a.rng.Intn(a.window) * a.slot
	}

	// a newer frame offered meanwhile supersedes the aborted one
	a.pending.CompareAndSwap(nil, a.current)
	a.current = nil
	a.active.Store(false)
}
