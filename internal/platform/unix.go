//go:build !windows

package platform

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/shirou/gopsutil/v3/process"
)

// UnixPlatform implements Platform for Linux and macOS.
type UnixPlatform struct{}

// New creates the platform instance for the running OS.
func New() Platform {
	return &UnixPlatform{}
}

// Name returns the platform identifier.
func (p *UnixPlatform) Name() string { return "unix" }

// AppDataDir returns /var/lib/pcsuccession when running as root, otherwise
// the user's XDG data directory.
func (p *UnixPlatform) AppDataDir() string {
	if os.Geteuid() == 0 {
		return filepath.Join("/var/lib", "pcsuccession")
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "pcsuccession")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "pcsuccession")
}

// firstInteractiveUID is the lowest uid assigned to human accounts.
func firstInteractiveUID() int32 {
	if runtime.GOOS == "darwin" {
		return 501
	}
	return 1000
}

// VisiblePIDs returns processes owned by interactive user accounts that have
// a resolvable executable. Kernel threads and system daemons are excluded.
func (p *UnixPlatform) VisiblePIDs(ctx context.Context) (map[int32]bool, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	minUID := firstInteractiveUID()
	visible := make(map[int32]bool)
	for _, proc := range procs {
		uids, err := proc.UidsWithContext(ctx)
		if err != nil || len(uids) == 0 || uids[0] < minUID || uids[0] == 65534 {
			continue
		}
		if exe, err := proc.ExeWithContext(ctx); err != nil || exe == "" {
			continue
		}
		visible[proc.Pid] = true
	}
	return visible, nil
}

// ShellCommand runs the script with pwsh when installed, otherwise sh.
// Elevation is prefixed with sudo -n so it fails rather than prompting.
func (p *UnixPlatform) ShellCommand(ctx context.Context, script string, elevated bool) *exec.Cmd {
	args := []string{"sh", "-c", script}
	if pwsh, err := exec.LookPath("pwsh"); err == nil {
		args = []string{pwsh, "-NoProfile", "-NonInteractive", "-Command", script}
	}
	if elevated && os.Geteuid() != 0 {
		args = append([]string{"sudo", "-n"}, args...)
	}
	return exec.CommandContext(ctx, args[0], args[1:]...)
}
