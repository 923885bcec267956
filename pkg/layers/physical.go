package layers

import (
	"Athernet/pkg/modem"
	"Athernet/pkg/ring"
)

// PhysicalLayer is the device callback of a station. Each period it senses
// the channel, feeds the receive ring, lets channel access fill the output,
// remembers that output as the echo to expect and ticks the MAC sender.
type PhysicalLayer[T modem.Sample, A modem.Accumulator] struct {
	domain  modem.Domain[T, A]
	control *ProtocolControl
	sense   *ChannelSense
	access  *ChannelAccess
	rx      *ring.Ring[T]
	scratch []T
	tick    chan struct{}
}

func NewPhysicalLayer[T modem.Sample, A modem.Accumulator](
	domain modem.Domain[T, A],
	control *ProtocolControl,
	sense *ChannelSense,
	access *ChannelAccess,
	rx *ring.Ring[T],
	bufferSize int,
) *PhysicalLayer[T, A] {
	return &PhysicalLayer[T, A]{
		domain:  domain,
		control: control,
		sense:   sense,
		access:  access,
		rx:      rx,
		scratch: make([]T, bufferSize),
		tick:    make(chan struct{}, 1),
	}
}

// Tick fires at most once per pending period; missed periods coalesce.
func (p *PhysicalLayer[T, A]) Tick() <-chan struct{} {
	return p.tick
}

func (p *PhysicalLayer[T, A]) Callback(in, out []int32) {
	busy, collision := p.sense.Update(in)
	p.control.Busy.Store(busy)
	p.control.Collision.Store(collision)

	// our own aborted frame is garbage on the receive side
	if !(collision && p.access.Transmitting()) {
		for len(in) > 0 {
			n := min(len(in), len(p.scratch))
			for i, v := range in[:n] {
				p.scratch[i] = p.domain.FromDevice(v)
			}
			p.rx.MustPush(p.scratch[:n])
			in = in[n:]
		}
	}

	p.access.Fill(out)
	p.sense.Echo(out)
	p.control.Clock.Inc()

	select {
	case p.tick <- struct{}{}:
	default:
	}
}
