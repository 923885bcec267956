package device

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// PortAudio drives the default input and output devices, one channel each.
type PortAudio struct {
	SampleRate float64
	BufferSize int

	stream *portaudio.Stream
}

func (d *PortAudio) Start(callback func(in, out []int32)) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("device: portaudio init: %w", err)
	}
	stream, err := portaudio.OpenDefaultStream(1, 1, d.SampleRate, d.BufferSize, callback)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("device: open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("device: start stream: %w", err)
	}
	d.stream = stream
	return nil
}

func (d *PortAudio) Stop() error {
	if d.stream == nil {
		return nil
	}
	err := errors.Join(d.stream.Stop(), d.stream.Close(), portaudio.Terminate())
	d.stream = nil
	return err
}
