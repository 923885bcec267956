package iface

import (
	"fmt"
	"net/netip"
	"os/exec"
)

func configure(name string, prefix netip.Prefix) error {
	for _, args := range [][]string{
		{"addr", "add", prefix.String(), "dev", name},
		{"link", "set", "dev", name, "up"},
	} {
		if out, err := exec.Command("ip", args...).CombinedOutput(); err != nil {
			return fmt.Errorf("ip %v: %w: %s", args, err, out)
		}
	}
	return nil
}
