package iface

import (
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"time"

	"Athernet/internel/syncutil"
	"Athernet/internel/utils"
	"Athernet/pkg/async"
)

// Message kinds multiplexed over one link.
const (
	KindPacket byte = iota
	KindData
)

// Transport is a reliable in-order bit pipe, such as a link.
type Transport interface {
	Send(ctx context.Context, bits []bool) error
	Receive(ctx context.Context) ([]bool, error)
}

// Bridge moves IP packets and opaque data messages across a Transport. It
// answers echo requests addressed to its own address and, when a host
// device is attached, forwards everything else to it.
type Bridge struct {
	link Transport
	addr netip.Addr
	id   uint16
	log  *slog.Logger

	tun     Interface
	capture *Capture

	data     *async.Queue[[]byte]
	unpacker utils.Unpacker

	mu      syncutil.Mutex
	waiters map[uint32]chan Echo
}

func NewBridge(link Transport, addr netip.Addr, log *slog.Logger) *Bridge {
	return &Bridge{
		link:    link,
		addr:    addr,
		id:      uint16(time.Now().UnixNano()),
		log:     log.With("layer", "ip", "addr", addr),
		data:    async.NewQueue[[]byte](),
		waiters: make(map[uint32]chan Echo),
	}
}

// Attach forwards packets between the bridge and a host device.
func (b *Bridge) Attach(tun Interface) { b.tun = tun }

// Record copies every bridged packet to c.
func (b *Bridge) Record(c *Capture) { b.capture = c }

func (b *Bridge) Addr() netip.Addr { return b.addr }

func (b *Bridge) record(data []byte) {
	if b.capture == nil {
		return
	}
	if err := b.capture.Write(data); err != nil {
		b.log.Warn("capture failed", "err", err)
	}
}

func (b *Bridge) send(ctx context.Context, kind byte, data []byte) error {
	bits, err := utils.Pack(kind, data)
	if err != nil {
		return err
	}
	return b.link.Send(ctx, bits)
}

func (b *Bridge) SendPacket(ctx context.Context, packet []byte) error {
	b.record(packet)
	return b.send(ctx, KindPacket, packet)
}

func (b *Bridge) SendData(ctx context.Context, data []byte) error {
	return b.send(ctx, KindData, data)
}

// Data returns the next data message from the peer.
func (b *Bridge) Data(ctx context.Context) ([]byte, error) {
	return b.data.Pop(ctx)
}

func echoKey(id, seq uint16) uint32 {
	return uint32(id)<<16 | uint32(seq)
}

// Ping sends one echo request to dst and waits for the matching reply.
func (b *Bridge) Ping(ctx context.Context, dst netip.Addr, seq uint16, size int) (time.Duration, error) {
	request, err := Echo{Src: b.addr, Dst: dst, ID: b.id, Seq: seq, Payload: make([]byte, size)}.Marshal()
	if err != nil {
		return 0, err
	}

	key := echoKey(b.id, seq)
	reply := make(chan Echo, 1)
	b.mu.Lock()
	b.waiters[key] = reply
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.waiters, key)
		b.mu.Unlock()
	}()

	start := time.Now()
	sent := async.Promise(func() error { return b.SendPacket(ctx, request) })
	for {
		select {
		case err := <-sent:
			if err != nil {
				return 0, err
			}
			sent = nil
		case <-reply:
			return time.Since(start), nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// Run pumps the link, and the host device if attached, until ctx is done or
// the link fails.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var jobs []<-chan struct{}
	if b.tun != nil {
		jobs = append(jobs, async.Job(func() { b.forward(ctx) }))
	}
	err := b.receive(ctx)
	cancel()
	<-async.Gather0(jobs...)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// forward sends host packets across the link.
func (b *Bridge) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case packet, ok := <-b.tun.Packets():
			if !ok {
				return
			}
			if err := b.SendPacket(ctx, packet.Data()); err != nil {
				b.log.Warn("forward failed", "err", err)
				return
			}
		}
	}
}

func (b *Bridge) receive(ctx context.Context) error {
	for {
		bits, err := b.link.Receive(ctx)
		if err != nil {
			return err
		}
		b.unpacker.Feed(bits)
		for {
			kind, data, ok := b.unpacker.Next()
			if !ok {
				break
			}
			switch kind {
			case KindPacket:
				b.handlePacket(ctx, data)
			case KindData:
				b.data.Push(data)
			default:
				b.log.Warn("unknown message kind", "kind", kind, "bytes", len(data))
			}
		}
	}
}

func (b *Bridge) handlePacket(ctx context.Context, data []byte) {
	b.record(data)
	if e, err := ParseEcho(data); err == nil && e.Dst == b.addr {
		if e.Reply {
			b.mu.Lock()
			waiter, ok := b.waiters[echoKey(e.ID, e.Seq)]
			b.mu.Unlock()
			if ok {
				select {
				case waiter <- e:
				default:
				}
			}
			return
		}
		reply, err := e.Answer().Marshal()
		if err == nil {
			err = b.SendPacket(ctx, reply)
		}
		if err != nil {
			b.log.Warn("echo reply failed", "err", err)
		}
		b.log.Debug("echo answered", "from", e.Src, "seq", e.Seq)
		return
	}
	if b.tun == nil {
		b.log.Debug("packet dropped", "bytes", len(data))
		return
	}
	if err := b.tun.Write(data); err != nil {
		b.log.Warn("tun write failed", "err", err)
	}
}
