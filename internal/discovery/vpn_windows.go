//go:build windows

package discovery

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/multierr"

	"github.com/pcsuccession/agent/internal/models"
)

// phonebooks returns the per-user and all-users RAS phonebook paths.
func phonebooks() []string {
	var paths []string
	for _, env := range []string{"APPDATA", "ProgramData"} {
		if base := os.Getenv(env); base != "" {
			paths = append(paths, filepath.Join(base, "Microsoft", "Network", "Connections", "Pbk", "rasphone.pbk"))
		}
	}
	return paths
}

func vpnConnections(ctx context.Context) ([]models.VPNConnection, error) {
	var (
		out  []models.VPNConnection
		errs error
	)
	for _, path := range phonebooks() {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		conns, err := parsePhonebook(path)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		out = append(out, conns...)
	}
	return out, errs
}
