package iface

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	addrA = netip.MustParseAddr("10.0.0.1")
	addrB = netip.MustParseAddr("10.0.0.2")
	host  = netip.MustParseAddr("1.1.1.1")
)

func TestEchoRoundTrip(t *testing.T) {
	e := Echo{Src: addrA, Dst: addrB, ID: 7, Seq: 3, Payload: []byte("ping")}
	data, err := e.Marshal()
	require.NoError(t, err)

	packet, err := DecodeIPPacket(data)
	require.NoError(t, err)
	require.NotNil(t, packet.Layer(layers.LayerTypeICMPv4))

	got, err := ParseEcho(data)
	require.NoError(t, err)
	assert.Equal(t, e, got)

	reply, err := ParseEcho(mustMarshal(t, got.Answer()))
	require.NoError(t, err)
	assert.True(t, reply.Reply)
	assert.Equal(t, addrB, reply.Src)
	assert.Equal(t, addrA, reply.Dst)
	assert.Equal(t, uint16(3), reply.Seq)
}

func TestEchoRejects(t *testing.T) {
	_, err := Echo{Src: netip.MustParseAddr("::1"), Dst: addrB}.Marshal()
	assert.Error(t, err)

	_, err = ParseEcho(udpPacket(t, addrA, addrB))
	assert.Error(t, err)

	_, err = ParseEcho([]byte{0x45, 0x00})
	assert.Error(t, err)
}

func TestDecodeIPPacket(t *testing.T) {
	for _, data := range [][]byte{nil, {0x50, 0x00}} {
		_, err := DecodeIPPacket(data)
		assert.ErrorIs(t, err, ErrUnknownVersion)
	}
	packet, err := DecodeIPPacket(udpPacket(t, addrA, addrB))
	require.NoError(t, err)
	assert.NotNil(t, packet.Layer(layers.LayerTypeUDP))
}

func mustMarshal(t *testing.T, e Echo) []byte {
	t.Helper()
	data, err := e.Marshal()
	require.NoError(t, err)
	return data
}

func udpPacket(t *testing.T, src, dst netip.Addr) []byte {
	t.Helper()
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP(src.AsSlice()),
		DstIP:    net.IP(dst.AsSlice()),
	}
	udp := &layers.UDP{SrcPort: 4000, DstPort: 53}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	buffer := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buffer, gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
		ip, udp, gopacket.Payload("query")))
	return buffer.Bytes()
}

// memLink is one end of an in-memory reliable pipe.
type memLink struct {
	in, out chan []bool
}

func memPair() (*memLink, *memLink) {
	ab, ba := make(chan []bool, 64), make(chan []bool, 64)
	return &memLink{in: ba, out: ab}, &memLink{in: ab, out: ba}
}

func (m *memLink) Send(ctx context.Context, bits []bool) error {
	// deliver in small chunks like a link does
	for len(bits) > 0 {
		n := min(len(bits), 100)
		select {
		case m.out <- bits[:n]:
		case <-ctx.Done():
			return ctx.Err()
		}
		bits = bits[n:]
	}
	return nil
}

func (m *memLink) Receive(ctx context.Context) ([]bool, error) {
	select {
	case bits := <-m.in:
		return bits, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type fakeTUN struct {
	packets chan gopacket.Packet
	written chan []byte
}

func newFakeTUN() *fakeTUN {
	return &fakeTUN{packets: make(chan gopacket.Packet, 8), written: make(chan []byte, 8)}
}

func (f *fakeTUN) Name() string                    { return "fake0" }
func (f *fakeTUN) Packets() <-chan gopacket.Packet { return f.packets }
func (f *fakeTUN) Close() error                    { return nil }

func (f *fakeTUN) Write(data []byte) error {
	f.written <- bytes.Clone(data)
	return nil
}

func runBridges(t *testing.T) (*Bridge, *Bridge) {
	t.Helper()
	la, lb := memPair()
	a := NewBridge(la, addrA, slog.Default())
	b := NewBridge(lb, addrB, slog.Default())
	return a, b
}

func start(t *testing.T, bridges ...*Bridge) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	var done []chan error
	for _, b := range bridges {
		ch := make(chan error, 1)
		go func() { ch <- b.Run(ctx) }()
		done = append(done, ch)
	}
	t.Cleanup(func() {
		cancel()
		for _, ch := range done {
			assert.NoError(t, <-ch)
		}
	})
	return ctx
}

func TestBridgePing(t *testing.T) {
	a, b := runBridges(t)
	ctx := start(t, a, b)

	for seq := range uint16(3) {
		rtt, err := a.Ping(ctx, addrB, seq, 32)
		require.NoError(t, err)
		assert.Positive(t, rtt)
	}
}

func TestBridgePingTimeout(t *testing.T) {
	a, b := runBridges(t)
	ctx := start(t, a, b)

	short, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err := a.Ping(short, host, 0, 8)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBridgeData(t *testing.T) {
	a, b := runBridges(t)
	ctx := start(t, a, b)

	require.NoError(t, a.SendData(ctx, []byte("first")))
	require.NoError(t, a.SendData(ctx, bytes.Repeat([]byte{0xaa}, 300)))

	got, err := b.Data(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got)
	got, err = b.Data(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 300)
}

func TestBridgeForwardsToHost(t *testing.T) {
	a, b := runBridges(t)
	tun := newFakeTUN()
	b.Attach(tun)

	var pcap bytes.Buffer
	capture, err := NewCapture(&pcap)
	require.NoError(t, err)
	b.Record(capture)
	ctx := start(t, a, b)

	// traffic from A to the outside world leaves through B's device
	query := udpPacket(t, addrA, host)
	require.NoError(t, a.SendPacket(ctx, query))
	select {
	case got := <-tun.written:
		assert.Equal(t, query, got)
	case <-ctx.Done():
		t.Fatal("packet never reached the host device")
	}

	// a host pinging A is answered by A and the reply comes back out
	request := mustMarshal(t, Echo{Src: host, Dst: addrA, ID: 1, Seq: 9})
	packet, err := DecodeIPPacket(request)
	require.NoError(t, err)
	tun.packets <- packet
	select {
	case got := <-tun.written:
		reply, err := ParseEcho(got)
		require.NoError(t, err)
		assert.True(t, reply.Reply)
		assert.Equal(t, host, reply.Dst)
		assert.Equal(t, uint16(9), reply.Seq)
	case <-ctx.Done():
		t.Fatal("echo reply never reached the host device")
	}

	r, err := pcapgo.NewReader(bytes.NewReader(pcap.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, layers.LinkTypeRaw, r.LinkType())
	data, _, err := r.ReadPacketData()
	require.NoError(t, err)
	assert.Equal(t, query, data)
}
