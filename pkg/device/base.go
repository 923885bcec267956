// Package device adapts audio backends to a single mono callback. The
// callback must fill every output slot and must not block.
package device

import (
	"errors"
	"fmt"
	"time"

	"Athernet/pkg/config"
)

type Device interface {
	Start(callback func(in, out []int32)) error
	Stop() error
}

const BufferSize = 512

var ErrUnsupported = errors.New("device: backend not supported on this platform")

// period is the wall time of one buffer at sampleRate, zero when unpaced.
func period(bufferSize int, sampleRate float64) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(bufferSize) / sampleRate * float64(time.Second))
}

// Open builds the device named by c.Backend.
func Open(c *config.DeviceConfig) (Device, error) {
	switch c.Backend {
	case config.BackendLoopback:
		return &Loopback{SampleRate: c.SampleRate, BufferSize: c.BufferSize}, nil
	case config.BackendPortAudio:
		return &PortAudio{SampleRate: c.SampleRate, BufferSize: c.BufferSize}, nil
	case config.BackendASIO:
		return newASIO(c)
	}
	return nil, fmt.Errorf("device: unknown backend %q", c.Backend)
}
