package iface

import (
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/songgao/water"
)

const FRAME_SIZE = 1600

// TUN is a layer 3 host device. Packets read from it are decoded and queued
// on Packets until the device is closed.
type TUN struct {
	Prefix netip.Prefix

	iface   *water.Interface
	log     *slog.Logger
	frame   []byte
	packets chan gopacket.Packet
}

func OpenTUN(prefix netip.Prefix, log *slog.Logger) (t *TUN, err error) {
	t = &TUN{Prefix: prefix, log: log}
	return t, t.Open()
}

func (t *TUN) Open() (err error) {
	if t.iface, err = water.New(water.Config{DeviceType: water.TUN}); err != nil {
		return fmt.Errorf("iface: create tun: %w", err)
	}
	if err = configure(t.iface.Name(), t.Prefix); err != nil {
		t.iface.Close()
		return fmt.Errorf("iface: configure %s: %w", t.iface.Name(), err)
	}
	t.log = t.log.With("layer", "tun", "name", t.iface.Name())

	t.packets = make(chan gopacket.Packet, 64)
	t.frame = make([]byte, FRAME_SIZE)
	go func() {
		defer close(t.packets)
		for {
			n, err := t.iface.Read(t.frame)
			if err != nil {
				t.log.Debug("read loop stopped", "err", err)
				return
			}
			packet, err := DecodeIPPacket(append([]byte(nil), t.frame[:n]...))
			if err != nil {
				continue
			}
			t.packets <- packet
		}
	}()
	t.log.Info("tun up", "prefix", t.Prefix)
	return nil
}

func (t *TUN) Name() string {
	return t.iface.Name()
}

func (t *TUN) Close() error {
	return t.iface.Close()
}

func (t *TUN) Packets() <-chan gopacket.Packet {
	return t.packets
}

func (t *TUN) Write(data []byte) error {
	_, err := t.iface.Write(data)
	return err
}
