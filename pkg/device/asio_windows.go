//go:build windows

package device

import (
	"github.com/xsjk/go-asio"

	"Athernet/pkg/config"
)

type ASIOMono struct {
	DeviceName string
	SampleRate float64
	InChannel  int
	OutChannel int
	device     asio.Device
}

func newASIO(c *config.DeviceConfig) (Device, error) {
	return &ASIOMono{
		DeviceName: c.DeviceName,
		SampleRate: c.SampleRate,
		InChannel:  c.InChannel,
		OutChannel: c.OutChannel,
	}, nil
}

func (a *ASIOMono) Start(callback func([]int32, []int32)) error {
	a.device.Load(a.DeviceName)
	a.device.SetSampleRate(a.SampleRate)
	a.device.Open()
	a.device.Start(func(in, out [][]int32) {
		callback(in[a.InChannel], out[a.OutChannel])
		// silence the channels we do not drive
		for i, o := range out {
			if i != a.OutChannel {
				clear(o)
			}
		}
	})
	return nil
}

func (a *ASIOMono) Stop() error {
	a.device.Stop()
	a.device.Close()
	a.device.Unload()
	return nil
}
