// Package autostart registers the agent with the operating system's service
// manager: the Windows Service Control Manager, systemd, or launchd.
package autostart

import "errors"

// ErrUnsupported is returned on platforms without a known service manager.
var ErrUnsupported = errors.New("autostart is not supported on this platform")

// Manager installs and removes the agent service.
type Manager interface {
	IsInstalled() (bool, error)
	Install(execPath string, args []string) error
	Uninstall() error
	ServiceName() string
}
