// Package iface carries IP traffic over a link: ICMP echo helpers, a TUN
// device and the bridge gluing the two together.
package iface

import (
	"errors"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var ErrUnknownVersion = errors.New("iface: unknown IP version")

// Interface is a host network device exchanging raw IP packets.
type Interface interface {
	Name() string
	Packets() <-chan gopacket.Packet
	Write(data []byte) error
	Close() error
}

func DecodeIPPacket(data []byte) (packet gopacket.Packet, err error) {
	if len(data) == 0 {
		return nil, ErrUnknownVersion
	}
	var layerType gopacket.LayerType
	switch data[0] >> 4 {
	case 4:
		layerType = layers.LayerTypeIPv4
	case 6:
		layerType = layers.LayerTypeIPv6
	default:
		return nil, ErrUnknownVersion
	}
	packet = gopacket.NewPacket(data, layerType, gopacket.Lazy)
	return
}
