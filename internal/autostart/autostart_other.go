//go:build !linux && !darwin && !windows

package autostart

type unsupportedManager struct{}

// New returns a Manager whose operations fail with ErrUnsupported.
func New() Manager { return unsupportedManager{} }

func (unsupportedManager) ServiceName() string { return "pcsuccession-agent" }

func (unsupportedManager) IsInstalled() (bool, error) { return false, nil }

func (unsupportedManager) Install(string, []string) error { return ErrUnsupported }

func (unsupportedManager) Uninstall() error { return ErrUnsupported }
