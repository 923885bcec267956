//go:build !linux

package iface

import (
	"errors"
	"net/netip"
)

func configure(name string, prefix netip.Prefix) error {
	return errors.ErrUnsupported
}
