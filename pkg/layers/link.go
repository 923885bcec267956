package layers

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/exp/rand"

	"Athernet/pkg/arq"
	"Athernet/pkg/async"
	"Athernet/pkg/config"
	"Athernet/pkg/device"
	"Athernet/pkg/frame"
	"Athernet/pkg/modem"
	"Athernet/pkg/ring"
	"Athernet/pkg/telemetry"
)

const jamLength = 4096

type Stats struct {
	Clock uint64

	// receive side
	Preambles uint64
	Good      uint64
	Bad       uint64
	Delivered uint64

	// send side
	Sent       uint64
	Collisions uint64
	Timeouts   uint64
	Unacked    int
	Unsent     int
	Dead       bool
}

type options struct {
	log  *slog.Logger
	sink telemetry.Sink
	seed uint64
}

type Option func(*options)

func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

func WithSink(sink telemetry.Sink) Option {
	return func(o *options) { o.sink = sink }
}

// WithSeed fixes the backoff and jam random source.
func WithSeed(seed uint64) Option {
	return func(o *options) { o.seed = seed }
}

// Link is a station attached to an audio device. Payloads handed to Send
// reach the peer's Receive in order, or the link is declared dead.
type Link struct {
	cfg  *config.Config
	log  *slog.Logger
	dev  device.Device
	self int

	control  *ProtocolControl
	window   *arq.SenderWindow
	coded    *async.Queue[[]bool]
	received *async.Queue[[]bool]
	incoming *async.Queue[frame.Frame]
	stats    func() Stats

	dead   *async.Signal
	closed atomic.Bool
	cancel context.CancelFunc
	done   <-chan struct{}
}

// Open builds the station for cfg, starts its workers and attaches it to
// dev.
func Open(cfg *config.Config, dev device.Device, opts ...Option) (*Link, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{
		log:  slog.Default(),
		sink: telemetry.Nop{},
		seed: uint64(time.Now().UnixNano()),
	}
	for _, opt := range opts {
		opt(&o)
	}

	m := &cfg.MACLayer
	l := &Link{
		cfg:      cfg,
		log:      o.log.With("layer", "mac", "station", m.Address),
		dev:      dev,
		self:     m.Address,
		control:  NewProtocolControl(),
		window:   arq.NewSenderWindow(m.WindowSize, m.SeqLimit()),
		coded:    async.NewQueue[[]bool](),
		received: async.NewQueue[[]bool](),
		dead:     async.NewSignal(),
	}

	var (
		callback func(in, out []int32)
		workers  []func(context.Context)
	)
	switch cfg.PhysicalLayer.Domain {
	case config.DomainFloat:
		callback, workers = wire(l, modem.FloatDomain{}, o)
	default:
		callback, workers = wire(l, modem.IntDomain{}, o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	jobs := make([]<-chan struct{}, len(workers))
	for i, run := range workers {
		jobs[i] = async.Job(func() { run(ctx) })
	}
	l.cancel = cancel
	l.done = async.Gather0(jobs...)

	if err := dev.Start(callback); err != nil {
		cancel()
		<-l.done
		return nil, fmt.Errorf("layers: start device: %w", err)
	}
	l.log.Info("link open", "domain", cfg.PhysicalLayer.Domain, "modulation", cfg.PhysicalLayer.Modulation)
	return l, nil
}

func wire[T modem.Sample, A modem.Accumulator](l *Link, d modem.Domain[T, A], o options) (func(in, out []int32), []func(context.Context)) {
	p := &l.cfg.PhysicalLayer
	m := &l.cfg.MACLayer
	layout := m.Layout()

	table := modem.NewWaveformTable(d, p)
	mod := modem.NewModulator(table, p, layout)

	rng := rand.New(rand.NewSource(o.seed))
	jam := make([]int32, jamLength)
	for i, v := range mod.Jam(make([]T, jamLength), rng) {
		jam[i] = d.ToDevice(v)
	}
	access := NewChannelAccess(m, l.control, jam, rng.Uint64())

	rx := ring.New[T](p.RingCapacity)
	phy := NewPhysicalLayer(d, l.control, NewChannelSense(&m.PowerMonitor), access, rx, l.cfg.Device.BufferSize)
	synchronizer := modem.NewSynchronizer(table, p, layout, rx, o.log)
	l.incoming = synchronizer.Coded

	sender := &macSender[T, A]{
		cfg:         m,
		domain:      d,
		mod:         mod,
		control:     l.control,
		access:      access,
		window:      l.window,
		coded:       l.coded,
		sink:        o.sink,
		log:         l.log,
		onDead:      func() { l.dead.Notify() },
		self:        m.Address,
		peer:        m.Peer(),
		broadcast:   m.Broadcast(),
		buf:         make([]T, 0, mod.MaxFrameSamples()),
		lastSentAck: -1,
		lastAck:     -1,
	}
	receiver := &macReceiver{
		control:   l.control,
		sender:    l.window,
		window:    arq.NewReceiverWindow(m.WindowSize, m.SeqLimit()),
		frames:    synchronizer.Frames,
		delivered: l.received,
		sink:      o.sink,
		log:       l.log,
		self:      m.Address,
		broadcast: m.Broadcast(),
	}

	l.stats = func() Stats {
		ss := synchronizer.Stats()
		return Stats{
			Clock:      l.control.Clock.Load(),
			Preambles:  ss.Received,
			Good:       ss.Good,
			Bad:        ss.Bad,
			Delivered:  receiver.count.Load(),
			Sent:       access.Sent(),
			Collisions: access.Collisions(),
			Timeouts:   sender.timeouts.Load(),
			Unacked:    l.window.Len(),
			Unsent:     l.window.Pending(),
			Dead:       l.dead.Fired(),
		}
	}

	return phy.Callback, []func(context.Context){
		synchronizer.Run,
		receiver.run,
		func(ctx context.Context) { sender.run(ctx, phy.Tick()) },
	}
}

func (l *Link) err(ctx context.Context) error {
	switch {
	case l.closed.Load():
		return ErrClosed
	case l.control.Dead.Load():
		return ErrLinkDead
	}
	return ctx.Err()
}

// MaxPayload is the largest payload a single frame carries.
func (l *Link) MaxPayload() int {
	return l.cfg.PhysicalLayer.PayloadSymbolLimit
}

// Send queues bits for reliable delivery, one frame per MaxPayload bits.
// It blocks while the sender window is full.
func (l *Link) Send(ctx context.Context, bits []bool) error {
	for {
		if err := l.err(ctx); err != nil {
			return err
		}
		n := min(len(bits), l.MaxPayload())
		u := &arq.Unit{Payload: slices.Clone(bits[:n])}
		for !l.window.TryEnqueue(u, l.cfg.MACLayer.EnqueueTimeout) {
			if err := l.err(ctx); err != nil {
				return err
			}
		}
		bits = bits[n:]
		if len(bits) == 0 {
			return nil
		}
	}
}

// SendCoded queues bits for best-effort delivery to the peer's decoder
// queue.
func (l *Link) SendCoded(bits []bool) error {
	if err := l.err(context.Background()); err != nil {
		return err
	}
	if len(bits) > l.MaxPayload() {
		return fmt.Errorf("layers: coded payload of %d bits exceeds %d", len(bits), l.MaxPayload())
	}
	l.coded.Push(slices.Clone(bits))
	return nil
}

// Receive returns the next in-order payload from the peer.
func (l *Link) Receive(ctx context.Context) ([]bool, error) {
	for {
		if p, ok := l.received.PopTimeout(l.cfg.MACLayer.EnqueueTimeout); ok {
			return p, nil
		}
		if err := l.err(ctx); err != nil {
			return nil, err
		}
	}
}

// ReceiveCoded returns the next coded payload addressed to this station.
func (l *Link) ReceiveCoded(ctx context.Context) ([]bool, error) {
	broadcast := l.cfg.MACLayer.Broadcast()
	for {
		f, ok := l.incoming.PopTimeout(l.cfg.MACLayer.EnqueueTimeout)
		if ok && !f.BadData && f.From != l.self && (f.To == l.self || f.To == broadcast) {
			return f.Payload, nil
		}
		if ok {
			continue
		}
		if err := l.err(ctx); err != nil {
			return nil, err
		}
	}
}

// Flush waits until every queued payload has been acknowledged.
func (l *Link) Flush(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for l.window.Len() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.dead.Done():
			return ErrLinkDead
		case <-ticker.C:
		}
		if l.closed.Load() {
			return ErrClosed
		}
	}
	return nil
}

func (l *Link) Stats() Stats {
	return l.stats()
}

func (l *Link) Dead() bool {
	return l.control.Dead.Load()
}

// DeadSignal is closed when the link gives up on its peer.
func (l *Link) DeadSignal() <-chan struct{} {
	return l.dead.Done()
}

// Close detaches the device and stops the workers.
func (l *Link) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	err := l.dev.Stop()
	l.cancel()
	<-l.done
	s := l.Stats()
	l.log.Info("link closed", "sent", s.Sent, "delivered", s.Delivered, "collisions", s.Collisions, "timeouts", s.Timeouts)
	return err
}
