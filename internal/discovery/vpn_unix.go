//go:build !windows

package discovery

import (
	"context"
	"runtime"

	"github.com/pcsuccession/agent/internal/models"
)

const nmConnectionsDir = "/etc/NetworkManager/system-connections"

// vpnConnections reads NetworkManager profiles on Linux. The directory is
// usually root-only; an unprivileged agent reports none.
func vpnConnections(_ context.Context) ([]models.VPNConnection, error) {
	if runtime.GOOS != "linux" {
		return nil, nil
	}
	return nmConnections(nmConnectionsDir)
}
