package iface

import (
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"Athernet/internel/syncutil"
)

// Capture writes bridged packets to a pcap stream readable by wireshark.
type Capture struct {
	mu syncutil.Mutex
	w  *pcapgo.Writer
}

func NewCapture(w io.Writer) (*Capture, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(FRAME_SIZE, layers.LinkTypeRaw); err != nil {
		return nil, fmt.Errorf("iface: pcap header: %w", err)
	}
	return &Capture{w: pw}, nil
}

func (c *Capture) Write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := min(len(data), FRAME_SIZE)
	return c.w.WritePacket(gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: n,
		Length:        len(data),
	}, data[:n])
}
