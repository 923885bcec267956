package layers

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Athernet/pkg/arq"
	"Athernet/pkg/async"
	"Athernet/pkg/config"
	"Athernet/pkg/fixpoint"
	"Athernet/pkg/frame"
	"Athernet/pkg/modem"
	"Athernet/pkg/telemetry"
)

type recordSink struct {
	events []telemetry.Event
}

func (r *recordSink) Emit(e telemetry.Event) { r.events = append(r.events, e) }

func (r *recordSink) kinds() []telemetry.Kind {
	var out []telemetry.Kind
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func newReceiver(t *testing.T) (*macReceiver, *recordSink) {
	t.Helper()
	m := config.Default().MACLayer
	sink := &recordSink{}
	return &macReceiver{
		control:   NewProtocolControl(),
		sender:    arq.NewSenderWindow(m.WindowSize, m.SeqLimit()),
		window:    arq.NewReceiverWindow(m.WindowSize, m.SeqLimit()),
		frames:    async.NewQueue[frame.Frame](),
		delivered: async.NewQueue[[]bool](),
		sink:      sink,
		log:       slog.Default(),
		self:      m.Address,
		broadcast: m.Broadcast(),
	}, sink
}

func dataFrame(from, to, seq int, payload ...bool) frame.Frame {
	return frame.Frame{Header: frame.Header{From: from, To: to, Seq: seq}, Payload: payload}
}

func TestReceiverDeliversInOrder(t *testing.T) {
	r, sink := newReceiver(t)

	r.handle(dataFrame(1, 0, 1, true))
	assert.Equal(t, 0, r.delivered.Len(), "seq 1 waits for seq 0")
	assert.Equal(t, int64(-1), r.control.Ack.Load())

	r.handle(dataFrame(1, 0, 0, false))
	assert.Equal(t, int64(1), r.control.Ack.Load())
	assert.Equal(t, int64(1), r.control.PrivilegeNode.Load())
	assert.True(t, r.control.Started.Load())

	p, ok := r.delivered.TryPop()
	require.True(t, ok)
	assert.Equal(t, []bool{false}, p)
	p, ok = r.delivered.TryPop()
	require.True(t, ok)
	assert.Equal(t, []bool{true}, p)

	assert.Equal(t, uint64(2), r.count.Load())
	assert.Contains(t, sink.kinds(), telemetry.Delivered)
}

func TestReceiverFilters(t *testing.T) {
	r, _ := newReceiver(t)

	r.handle(dataFrame(0, 0, 0, true))
	assert.Equal(t, int64(-1), r.control.PrivilegeNode.Load(), "own frames are ignored")

	r.handle(dataFrame(2, 3, 0, true))
	assert.Equal(t, int64(2), r.control.PrivilegeNode.Load(), "overheard data still names the privileged node")
	assert.Equal(t, 0, r.delivered.Len())

	r.handle(dataFrame(1, r.broadcast, 0, true))
	assert.Equal(t, 1, r.delivered.Len(), "broadcast is accepted")
}

func TestReceiverAcks(t *testing.T) {
	r, sink := newReceiver(t)
	for range 3 {
		require.True(t, r.sender.TryEnqueue(&arq.Unit{}, 0))
	}

	ack := frame.Frame{Header: frame.Header{From: 1, To: 0, Ack: 1, Flags: frame.FlagHasAck | frame.FlagIsAck}}
	r.handle(ack)
	assert.Equal(t, 1, r.sender.Len())
	assert.Equal(t, int64(-1), r.control.PrivilegeNode.Load(), "bare acks do not claim the channel")
	assert.Contains(t, sink.kinds(), telemetry.AckReceived)

	// a corrupted payload still delivers the piggybacked ack
	bad := frame.Frame{Header: frame.Header{From: 1, To: 0, Seq: 0, Ack: 2, Flags: frame.FlagHasAck}, BadData: true}
	r.handle(bad)
	assert.Equal(t, 0, r.sender.Len())
	assert.Equal(t, 0, r.delivered.Len())
	assert.Equal(t, int64(-1), r.control.Ack.Load())
}

func TestReceiverRequestsReackOnDuplicate(t *testing.T) {
	r, _ := newReceiver(t)
	r.handle(dataFrame(1, 0, 0, true))
	assert.False(t, r.control.Reack.Load())

	r.handle(dataFrame(1, 0, 0, true))
	assert.True(t, r.control.Reack.Load())
	assert.Equal(t, int64(0), r.control.Ack.Load())
	assert.Equal(t, 1, r.delivered.Len())
}

func TestReceiverSyn(t *testing.T) {
	r, sink := newReceiver(t)
	r.handle(frame.Frame{Header: frame.Header{From: 1, To: r.broadcast, Flags: frame.FlagIsSyn}})
	assert.True(t, r.control.Started.Load())
	assert.Equal(t, []telemetry.Kind{telemetry.SynReceived}, sink.kinds())
}

type senderHarness struct {
	s       *macSender[fixpoint.Fixpoint, int64]
	access  *ChannelAccess
	control *ProtocolControl
	window  *arq.SenderWindow
	coded   *async.Queue[[]bool]
	sink    *recordSink
	dead    bool
}

func newSender(t *testing.T, edit func(*config.Config)) *senderHarness {
	t.Helper()
	cfg := config.Default()
	if edit != nil {
		edit(cfg)
	}
	require.NoError(t, cfg.Validate())

	m := &cfg.MACLayer
	d := modem.IntDomain{}
	table := modem.NewWaveformTable[fixpoint.Fixpoint, int64](d, &cfg.PhysicalLayer)
	mod := modem.NewModulator(table, &cfg.PhysicalLayer, m.Layout())

	h := &senderHarness{
		control: NewProtocolControl(),
		window:  arq.NewSenderWindow(m.WindowSize, m.SeqLimit()),
		coded:   async.NewQueue[[]bool](),
		sink:    &recordSink{},
	}
	h.access = NewChannelAccess(m, h.control, []int32{1}, 1)
	h.s = &macSender[fixpoint.Fixpoint, int64]{
		cfg:         m,
		domain:      d,
		mod:         mod,
		control:     h.control,
		access:      h.access,
		window:      h.window,
		coded:       h.coded,
		sink:        h.sink,
		log:         slog.Default(),
		onDead:      func() { h.dead = true },
		self:        m.Address,
		peer:        m.Peer(),
		broadcast:   m.Broadcast(),
		lastSentAck: -1,
		lastAck:     -1,
	}
	return h
}

// air plays the pending transmission to completion on an idle channel.
func (h *senderHarness) air() {
	out := make([]int32, period)
	for h.access.Busy() {
		h.access.Fill(out)
	}
}

func (h *senderHarness) pending() *Transmission {
	return h.access.pending.Load()
}

func TestSenderOffersData(t *testing.T) {
	h := newSender(t, nil)
	require.True(t, h.window.TryEnqueue(&arq.Unit{Payload: []bool{true, false}}, 0))

	h.s.step()
	tx := h.pending()
	require.NotNil(t, tx)
	assert.Equal(t, 0, tx.Header.Seq)
	assert.Equal(t, 1, tx.Header.To)
	assert.False(t, tx.Header.HasAck())
	assert.False(t, tx.Priority)

	// a new local ack rewrites the waiting frame
	h.control.Ack.Store(3)
	h.s.step()
	tx = h.pending()
	require.NotNil(t, tx)
	assert.True(t, tx.Header.HasAck())
	assert.Equal(t, 3, tx.Header.Ack)

	h.air()
	h.s.step()
	assert.Equal(t, 3, h.s.lastSentAck, "piggybacked ack counts as sent")
	assert.Nil(t, h.pending(), "nothing new to say")
	assert.Contains(t, h.sink.kinds(), telemetry.FrameSent)
}

func TestSenderKeepsUnitWhenSlotTaken(t *testing.T) {
	h := newSender(t, nil)
	require.True(t, h.window.TryEnqueue(&arq.Unit{Payload: []bool{true}}, 0))

	// an aborted frame re-offered by the audio thread holds the slot
	resent := &Transmission{Header: frame.Header{Seq: 9}, Samples: []int32{1}}
	h.access.pending.Store(resent)

	u, ok := h.window.ConsumeOne()
	require.True(t, ok)
	assert.False(t, h.s.offer(u, -1))
	assert.Equal(t, 1, h.window.Pending(), "unit goes back under the cursor")
	assert.Same(t, resent, h.pending())

	h.air()
	h.s.step()
	tx := h.pending()
	require.NotNil(t, tx)
	assert.Equal(t, 0, tx.Header.Seq)
	assert.Zero(t, h.window.Pending())
}

func TestSenderBareAck(t *testing.T) {
	h := newSender(t, nil)
	h.control.Ack.Store(5)

	h.s.step()
	tx := h.pending()
	require.NotNil(t, tx)
	assert.True(t, tx.Priority)
	assert.True(t, tx.Header.IsAck())
	assert.Equal(t, 5, tx.Header.Ack)
	assert.Empty(t, h.window.Len())

	h.air()
	h.s.step()
	assert.Nil(t, h.pending())

	h.control.Reack.Store(true)
	h.s.step()
	require.NotNil(t, h.pending(), "duplicate data asks for the ack again")
}

func TestSenderCoded(t *testing.T) {
	h := newSender(t, nil)
	h.coded.Push([]bool{true, true, false})

	h.s.step()
	tx := h.pending()
	require.NotNil(t, tx)
	assert.True(t, tx.Header.Coded())
	assert.False(t, tx.Priority)
}

func TestSenderTimeoutAndDeath(t *testing.T) {
	h := newSender(t, func(c *config.Config) {
		c.MACLayer.AckTimeout = 3
		c.MACLayer.MaxTimeoutRounds = 2
	})
	require.True(t, h.window.TryEnqueue(&arq.Unit{Payload: []bool{true}}, 0))

	for i := 0; i < 1000 && !h.control.Dead.Load(); i++ {
		h.s.step()
		h.air()
	}
	require.True(t, h.control.Dead.Load())
	assert.True(t, h.dead)
	assert.Equal(t, uint64(3), h.s.timeouts.Load())
	assert.Contains(t, h.sink.kinds(), telemetry.LinkDead)

	// a dead sender stays silent
	h.s.step()
	assert.Nil(t, h.pending())
}

func TestSenderProgressResetsRounds(t *testing.T) {
	h := newSender(t, func(c *config.Config) {
		c.MACLayer.AckTimeout = 3
		c.MACLayer.MaxTimeoutRounds = 1
	})
	for range 2 {
		require.True(t, h.window.TryEnqueue(&arq.Unit{Payload: []bool{true}}, 0))
	}

	for i := 0; i < 1000 && h.s.timeouts.Load() < 1; i++ {
		h.s.step()
		h.air()
	}
	require.True(t, h.window.AckCumulative(0))

	// without the ack the second timeout would exceed the round limit
	for i := 0; i < 1000 && h.s.timeouts.Load() < 2; i++ {
		h.s.step()
		h.air()
	}
	require.Equal(t, uint64(2), h.s.timeouts.Load())
	assert.False(t, h.control.Dead.Load(), "the ack counted as progress")
}

func TestSenderHandshake(t *testing.T) {
	h := newSender(t, func(c *config.Config) {
		c.MACLayer.Handshake = true
		c.MACLayer.Initiator = true
	})
	require.True(t, h.window.TryEnqueue(&arq.Unit{Payload: []bool{true}}, 0))

	h.s.step()
	tx := h.pending()
	require.NotNil(t, tx)
	assert.True(t, tx.Header.IsSyn())
	assert.Equal(t, h.s.broadcast, tx.Header.To)

	h.air()
	h.s.step()
	assert.True(t, h.control.Started.Load())
	assert.Contains(t, h.sink.kinds(), telemetry.SynSent)

	h.s.step()
	tx = h.pending()
	require.NotNil(t, tx)
	assert.False(t, tx.Header.IsSyn())
}

func TestSenderWaitsForSyn(t *testing.T) {
	h := newSender(t, func(c *config.Config) {
		c.MACLayer.Handshake = true
	})
	require.True(t, h.window.TryEnqueue(&arq.Unit{Payload: []bool{true}}, 0))

	h.s.step()
	assert.Nil(t, h.pending())

	h.control.Started.Store(true)
	h.s.step()
	assert.NotNil(t, h.pending())
}
