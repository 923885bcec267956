//go:build !windows

package device

import (
	"fmt"

	"Athernet/pkg/config"
)

func newASIO(c *config.DeviceConfig) (Device, error) {
	return nil, fmt.Errorf("%w: asio device %q", ErrUnsupported, c.DeviceName)
}
