package layers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.uber.org/atomic"

	"Athernet/pkg/arq"
	"Athernet/pkg/async"
	"Athernet/pkg/config"
	"Athernet/pkg/frame"
	"Athernet/pkg/modem"
	"Athernet/pkg/telemetry"
)

var (
	ErrLinkDead = errors.New("layers: link is dead")
	ErrClosed   = errors.New("layers: link is closed")
)

// macSender runs once per audio period. It feeds channel access from the
// sender window and the coded queue, sends bare acks and drives the ARQ
// timeout.
type macSender[T modem.Sample, A modem.Accumulator] struct {
	cfg     *config.MACConfig
	domain  modem.Domain[T, A]
	mod     *modem.Modulator[T, A]
	control *ProtocolControl
	access  *ChannelAccess
	window  *arq.SenderWindow
	coded   *async.Queue[[]bool]
	sink    telemetry.Sink
	log     *slog.Logger
	onDead  func()

	self, peer, broadcast int

	buf         []T
	current     *Transmission
	unit        *arq.Unit
	lastSentAck int
	ackTimeout  int
	rounds      int
	lastStart   int
	lastAck     int
	synOffered  bool
	collisions  uint64

	timeouts atomic.Uint64
}

func (s *macSender[T, A]) run(ctx context.Context, tick <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			s.step()
		}
	}
}

func (s *macSender[T, A]) step() {
	if tx := s.access.Completed(); tx != nil {
		s.completed(tx)
	}
	if n := s.access.Collisions(); n != s.collisions {
		s.collisions = n
		s.emit(telemetry.Collision, frame.Header{}, n)
	}
	if s.control.Dead.Load() {
		return
	}
	if s.control.Reack.Swap(false) {
		s.lastSentAck = -1
	}

	if s.cfg.Handshake && !s.control.Started.Load() {
		if s.cfg.Initiator && !s.synOffered {
			h := frame.Header{To: s.broadcast, From: s.self, Flags: frame.FlagIsSyn}
			s.synOffered = s.access.Offer(s.build(h, nil, false))
		}
		return
	}

	ack := int(s.control.Ack.Load())
	if start := s.window.WindowStart(); start != s.lastStart || ack != s.lastAck {
		s.lastStart, s.lastAck = start, ack
		s.rounds = 0
	}

	if s.access.Busy() {
		s.refresh(ack)
		return
	}
	s.current, s.unit = nil, nil

	if u, ok := s.window.ConsumeOne(); ok {
		s.offer(u, ack)
		s.ackTimeout = 0
		return
	}

	if payload, ok := s.coded.TryPop(); ok {
		h := frame.Header{To: s.peer, From: s.self, Flags: frame.FlagCoded}
		s.access.Offer(s.build(h, payload, false))
		return
	}

	if !s.control.Busy.Load() {
		s.ackTimeout++
	}
	if s.control.Collision.Load() {
		s.ackTimeout = 0
	}

	if ack != -1 && ack != s.lastSentAck {
		h := frame.Header{To: s.peer, From: s.self, Ack: ack, Flags: frame.FlagHasAck | frame.FlagIsAck}
		s.access.Offer(s.build(h, nil, true))
		return
	}

	if s.window.Len() > 0 && s.ackTimeout > s.cfg.AckTimeout {
		s.timeout()
	}
}

// offer hands a consumed unit to channel access. A retransmission re-offered
// by the audio thread may have taken the slot since Busy was checked; the
// unit then goes back under the cursor for the next step.
func (s *macSender[T, A]) offer(u *arq.Unit, ack int) bool {
	tx := s.build(s.dataHeader(u.Seq, ack), u.Payload, false)
	if !s.access.Offer(tx) {
		s.window.Unconsume()
		return false
	}
	s.current, s.unit = tx, u
	return true
}

// refresh re-modulates the pending data frame when the ack it carries is
// out of date. It loses the race harmlessly once the frame is on the air.
func (s *macSender[T, A]) refresh(ack int) {
	if s.current == nil || ack == -1 || (s.current.Header.HasAck() && s.current.Header.Ack == ack) {
		return
	}
	tx := s.build(s.dataHeader(s.unit.Seq, ack), s.unit.Payload, false)
	if s.access.Replace(s.current, tx) {
		s.current = tx
	}
}

func (s *macSender[T, A]) timeout() {
	s.window.Reset()
	s.ackTimeout = 0
	s.lastSentAck = -1
	s.rounds++
	s.timeouts.Inc()
	s.emit(telemetry.Timeout, frame.Header{Seq: s.window.WindowStart()}, uint64(s.rounds))
	s.log.Debug("ack timeout", "window_start", s.window.WindowStart(), "round", s.rounds)

	if s.rounds > s.cfg.MaxTimeoutRounds {
		s.control.Dead.Store(true)
		s.emit(telemetry.LinkDead, frame.Header{}, uint64(s.rounds))
		s.log.Error("link dead", "rounds", s.rounds, "unacked", s.window.Len())
		if s.onDead != nil {
			s.onDead()
		}
	}
}

func (s *macSender[T, A]) completed(tx *Transmission) {
	h := tx.Header
	if h.HasAck() {
		s.lastSentAck = h.Ack
	}
	switch {
	case h.IsSyn():
		s.control.Started.Store(true)
		s.emit(telemetry.SynSent, h, 0)
	case h.IsAck():
		s.emit(telemetry.AckSent, h, 0)
	default:
		s.emit(telemetry.FrameSent, h, 0)
	}
}

func (s *macSender[T, A]) dataHeader(seq, ack int) frame.Header {
	h := frame.Header{To: s.peer, From: s.self, Seq: seq}
	if ack != -1 {
		h.Ack = ack
		h.Flags |= frame.FlagHasAck
	}
	return h
}

// build modulates a frame into device samples.
func (s *macSender[T, A]) build(h frame.Header, payload []bool, priority bool) *Transmission {
	s.buf = s.mod.AppendFrame(s.buf[:0], &frame.Frame{Header: h, Payload: payload})
	samples := make([]int32, len(s.buf))
	for i, v := range s.buf {
		samples[i] = s.domain.ToDevice(v)
	}
	return &Transmission{Header: h, Samples: samples, Priority: priority}
}

func (s *macSender[T, A]) emit(kind telemetry.Kind, h frame.Header, count uint64) {
	s.sink.Emit(telemetry.Event{
		Time:    time.Now(),
		Station: s.self,
		Kind:    kind,
		Peer:    h.To,
		Seq:     h.Seq,
		Ack:     h.Ack,
		Count:   count,
	})
}

// macReceiver dispatches decoded frames: acks go to the sender window,
// data to the receiver window and in-order payloads to the application.
type macReceiver struct {
	control   *ProtocolControl
	sender    *arq.SenderWindow
	window    *arq.ReceiverWindow
	frames    *async.Queue[frame.Frame]
	delivered *async.Queue[[]bool]
	sink      telemetry.Sink
	log       *slog.Logger

	self, broadcast int

	count atomic.Uint64
}

func (r *macReceiver) run(ctx context.Context) {
	for {
		f, err := r.frames.Pop(ctx)
		if err != nil {
			return
		}
		r.handle(f)
	}
}

func (r *macReceiver) handle(f frame.Frame) {
	h := f.Header
	if h.From == r.self {
		return
	}
	if !f.BadData && !h.IsAck() {
		r.control.PrivilegeNode.Store(int64(h.From))
	}
	if h.To != r.self && h.To != r.broadcast {
		return
	}

	if h.IsSyn() {
		r.control.Started.Store(true)
		r.emit(telemetry.SynReceived, h, 0)
		return
	}
	if h.HasAck() && r.sender.AckCumulative(h.Ack) {
		r.emit(telemetry.AckReceived, h, 0)
	}
	if f.BadData {
		r.log.Debug("payload crc failed", "from", h.From, "seq", h.Seq)
		r.emit(telemetry.FrameBad, h, 0)
	} else if !h.IsAck() {
		r.control.Started.Store(true)
		prev := r.control.Ack.Load()
		ack := int64(r.window.Receive(f.Payload, h.Seq))
		if ack == prev {
			r.control.Reack.Store(true)
		}
		r.control.Ack.Store(ack)
		r.emit(telemetry.FrameReceived, h, 0)
	}

	for _, p := range r.window.Drain() {
		r.delivered.Push(p)
		n := r.count.Inc()
		r.sink.Emit(telemetry.Event{Time: time.Now(), Station: r.self, Kind: telemetry.Delivered, Peer: h.From, Bits: len(p), Count: n})
	}
}

func (r *macReceiver) emit(kind telemetry.Kind, h frame.Header, count uint64) {
	r.sink.Emit(telemetry.Event{
		Time:    time.Now(),
		Station: r.self,
		Kind:    kind,
		Peer:    h.From,
		Seq:     h.Seq,
		Ack:     h.Ack,
		Count:   count,
	})
}
