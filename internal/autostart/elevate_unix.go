//go:build !windows

package autostart

import (
	"fmt"
	"os"
)

// RequireElevation fails unless the process runs as root.
func RequireElevation() error {
	if os.Geteuid() != 0 {
		return fmt.Errorf("service installation requires root privileges; run with sudo")
	}
	return nil
}
