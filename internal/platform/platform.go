// Package platform provides an OS abstraction layer for the pieces of the
// agent that gopsutil cannot cover: where persistent state lives, which
// processes have a user-visible presence, and how scripts are executed.
package platform

import (
	"context"
	"os/exec"
)

// AppName is the directory name used under the platform data root.
const AppName = "PCSuccession"

// Platform provides OS-specific functionality beyond what gopsutil offers.
type Platform interface {
	// Name returns the platform name (windows, unix).
	Name() string

	// AppDataDir returns the per-machine directory holding config.json and
	// persisted agent state.
	AppDataDir() string

	// VisiblePIDs returns the set of processes that have a user-visible
	// presence. On Windows this is a process owning a visible, titled
	// top-level window; elsewhere it is a process owned by an interactive
	// user account. Both are proxies for "user-relevant".
	VisiblePIDs(ctx context.Context) (map[int32]bool, error)

	// ShellCommand builds the command used to run an administrative script.
	ShellCommand(ctx context.Context, script string, elevated bool) *exec.Cmd
}
