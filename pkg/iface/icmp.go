package iface

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var ErrNotEcho = errors.New("iface: not an ICMP echo")

const defaultTTL = 64

// Echo is an ICMPv4 echo request or reply.
type Echo struct {
	Src, Dst netip.Addr
	ID, Seq  uint16
	Reply    bool
	Payload  []byte
}

// Marshal serializes e as an IPv4 packet with valid checksums.
func (e Echo) Marshal() ([]byte, error) {
	if !e.Src.Is4() || !e.Dst.Is4() {
		return nil, fmt.Errorf("iface: echo needs IPv4 addresses, got %v -> %v", e.Src, e.Dst)
	}
	typ := uint8(layers.ICMPv4TypeEchoRequest)
	if e.Reply {
		typ = layers.ICMPv4TypeEchoReply
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      defaultTTL,
		Protocol: layers.IPProtocolICMPv4,
		SrcIP:    net.IP(e.Src.AsSlice()),
		DstIP:    net.IP(e.Dst.AsSlice()),
	}
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(typ, 0),
		Id:       e.ID,
		Seq:      e.Seq,
	}

	buffer := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buffer, gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
		ip,
		icmp,
		gopacket.Payload(e.Payload),
	)
	if err != nil {
		return nil, fmt.Errorf("iface: serialize echo: %w", err)
	}
	return buffer.Bytes(), nil
}

// Answer is the reply to the request e.
func (e Echo) Answer() Echo {
	return Echo{Src: e.Dst, Dst: e.Src, ID: e.ID, Seq: e.Seq, Reply: true, Payload: e.Payload}
}

// ParseEcho decodes an IPv4 packet carrying an echo request or reply.
func ParseEcho(data []byte) (Echo, error) {
	packet := gopacket.NewPacket(data, layers.LayerTypeIPv4, gopacket.Default)
	if err := packet.ErrorLayer(); err != nil {
		return Echo{}, fmt.Errorf("iface: decode: %w", err.Error())
	}
	ipLayer, icmpLayer := packet.Layer(layers.LayerTypeIPv4), packet.Layer(layers.LayerTypeICMPv4)
	if ipLayer == nil || icmpLayer == nil {
		return Echo{}, ErrNotEcho
	}
	ip, icmp := ipLayer.(*layers.IPv4), icmpLayer.(*layers.ICMPv4)

	e := Echo{ID: icmp.Id, Seq: icmp.Seq, Payload: icmp.Payload}
	switch icmp.TypeCode.Type() {
	case layers.ICMPv4TypeEchoRequest:
	case layers.ICMPv4TypeEchoReply:
		e.Reply = true
	default:
		return Echo{}, ErrNotEcho
	}
	e.Src, _ = netip.AddrFromSlice(ip.SrcIP.To4())
	e.Dst, _ = netip.AddrFromSlice(ip.DstIP.To4())
	return e, nil
}
