package modem

import (
	"context"
	"log/slog"
	"slices"

	"go.uber.org/atomic"

	"Athernet/pkg/async"
	"Athernet/pkg/config"
	"Athernet/pkg/frame"
	"Athernet/pkg/ring"
)

type syncState int

const (
	waitHeader syncState = iota
	getLength
	getPayload
	checkPayload
	collectBits
)

func (s syncState) String() string {
	switch s {
	case waitHeader:
		return "WAIT_HEADER"
	case getLength:
		return "GET_LENGTH"
	case getPayload:
		return "GET_PAYLOAD"
	case checkPayload:
		return "CHECK_PAYLOAD"
	case collectBits:
		return "COLLECT_BITS"
	}
	return "INVALID"
}

const searchChunk = 4096

type SyncStats struct {
	Received uint64 // preambles confirmed
	Good     uint64
	Bad      uint64
}

// Synchronizer consumes the receive ring, finds preambles and extracts
// frames. Good frames go to Frames, or to Coded when the coded flag is set.
// A frame whose payload CRC failed reaches Frames with BadData set.
type Synchronizer[T Sample, A Accumulator] struct {
	table      *WaveformTable[T, A]
	coder      SymbolCoder[T]
	layout     frame.Layout
	lengthBits int
	minLength  int
	maxLength  int

	rx     *ring.Ring[T]
	Frames *async.Queue[frame.Frame]
	Coded  *async.Queue[frame.Frame]
	log    *slog.Logger

	state syncState
	next  syncState
	// start is the ring offset of the next preamble candidate or of the
	// next symbol to decode.
	start  int
	maxVal A
	maxPos int
	need   int
	bits   []bool
	length int
	window []T

	received, good, bad atomic.Uint64
}

func NewSynchronizer[T Sample, A Accumulator](t *WaveformTable[T, A], p *config.PhysicalConfig, layout frame.Layout, rx *ring.Ring[T], log *slog.Logger) *Synchronizer[T, A] {
	if log == nil {
		log = slog.Default()
	}
	s := &Synchronizer[T, A]{
		table:      t,
		coder:      NewSymbolCoder(t, p.Modulation),
		layout:     layout,
		lengthBits: p.LengthBits,
		minLength:  layout.Bits(),
		maxLength:  layout.Bits() + p.PayloadSymbolLimit,
		rx:         rx,
		Frames:     async.NewQueue[frame.Frame](),
		Coded:      async.NewQueue[frame.Frame](),
		log:        log.With("layer", "phy"),
		maxPos:     -1,
	}
	body := s.coder.Samples(s.maxLength + 2*CRCResidualBits)
	s.window = make([]T, max(body, searchChunk+len(t.Preamble)))
	s.bits = make([]bool, 0, s.maxLength+2*CRCResidualBits)
	return s
}

func (s *Synchronizer[T, A]) Stats() SyncStats {
	return SyncStats{
		Received: s.received.Load(),
		Good:     s.good.Load(),
		Bad:      s.bad.Load(),
	}
}

// Run steps until ctx is done, sleeping on the ring while it lacks data.
func (s *Synchronizer[T, A]) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if s.Step() {
			continue
		}
		select {
		case <-s.rx.Ready():
		case <-ctx.Done():
		}
	}
}

// Drain steps until no more progress is possible on the buffered samples.
func (s *Synchronizer[T, A]) Drain() {
	for s.Step() {
	}
}

// Step advances the state machine and reports whether it made progress.
func (s *Synchronizer[T, A]) Step() bool {
	switch s.state {
	case waitHeader:
		return s.searchPreamble()

	case getLength:
		s.bits = s.bits[:0]
		s.need = s.lengthBits
		s.state, s.next = collectBits, getPayload

	case getPayload:
		s.length = int(frame.ReadUint(s.bits))
		if s.length < s.minLength || s.length > s.maxLength {
			s.log.Debug("length out of range", "length", s.length)
			s.reject()
			return true
		}
		s.bits = s.bits[:0]
		s.need = s.length + 2*CRCResidualBits
		s.state, s.next = collectBits, checkPayload

	case checkPayload:
		s.checkPayload()

	case collectBits:
		return s.collectBits()

	default:
		panic("modem: invalid synchronizer state " + s.state.String())
	}
	return true
}

// reject drops the current frame and searches again right after its preamble.
func (s *Synchronizer[T, A]) reject() {
	s.bad.Inc()
	s.start = 0
	s.state = waitHeader
}

func (s *Synchronizer[T, A]) searchPreamble() bool {
	p := len(s.table.Preamble)
	size := s.rx.Len()
	if size-s.start < p {
		return false
	}

	n := min(size-s.start, searchChunk+p)
	buf := s.window[:n]
	s.rx.Peek(s.start, buf)

	var er A
	confirmed := false
	j := 0
	for ; j+p <= n; j++ {
		if j%p == 0 {
			er = Energy[T, A](buf[j : j+p])
		} else {
			old, in := A(buf[j-1]), A(buf[j+p-1])
			er += in*in - old*old
		}
		i := s.start + j
		if er > 0 {
			dot := Dot[T, A](buf[j:j+p], s.table.Preamble)
			if dot > 0 && s.table.Domain.Confident(dot, s.table.PreambleEnergy, er, s.table.ThresholdFactor) {
				if s.maxPos < 0 || dot > s.maxVal {
					s.maxVal = dot
					s.maxPos = i
				}
			}
		}
		if s.maxPos >= 0 && i-s.maxPos > p {
			confirmed = true
			break
		}
	}

	if confirmed {
		s.received.Inc()
		s.rx.Discard(s.maxPos + p)
		s.start = 0
		s.maxPos = -1
		s.maxVal = 0
		s.state = getLength
		return true
	}

	s.start += j
	if s.maxPos >= 0 {
		s.rx.Discard(s.maxPos)
		s.start -= s.maxPos
		s.maxPos = 0
	} else {
		s.rx.Discard(s.start)
		s.start = 0
	}
	return true
}

func (s *Synchronizer[T, A]) collectBits() bool {
	samples := s.coder.Samples(s.need)
	if s.rx.Len()-s.start < samples {
		return false
	}
	buf := s.window[:samples]
	s.rx.Peek(s.start, buf)

	bits, err := s.coder.Demodulate(s.bits, buf, s.need)
	if err != nil {
		s.log.Debug("undecodable symbol", "err", err)
		s.reject()
		return true
	}
	s.bits = bits
	s.start += samples
	s.state = s.next
	return true
}

func (s *Synchronizer[T, A]) checkPayload() {
	s.state = waitHeader

	headerEnd := s.layout.Bits() + CRCResidualBits
	if !CheckCRC8(s.bits[:headerEnd]) {
		s.log.Debug("header crc mismatch")
		s.reject()
		return
	}
	h := s.layout.Parse(s.bits)

	body := s.bits[headerEnd:]
	if !CheckCRC8(body) {
		s.log.Debug("payload crc mismatch", "header", h)
		s.Frames.Push(frame.Frame{Header: h, BadData: true})
		s.reject()
		return
	}

	s.good.Inc()
	f := frame.Frame{
		Header:  h,
		Payload: slices.Clone(body[:len(body)-CRCResidualBits]),
	}
	if h.Coded() {
		s.Coded.Push(f)
	} else {
		s.Frames.Push(f)
	}
}
