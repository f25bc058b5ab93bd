package usage

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/pcsuccession/agent/internal/platform"
)

// Process is one entry of the process table.
type Process struct {
	PID     int32
	Name    string
	Exe     string
	Visible bool
}

// ProcessSource enumerates running processes.
type ProcessSource interface {
	Processes(ctx context.Context) ([]Process, error)
}

// SystemProcessSource lists processes with gopsutil and marks the ones the
// platform reports as user-visible.
type SystemProcessSource struct {
	platform platform.Platform
}

// NewSystemProcessSource creates a process source backed by the OS.
func NewSystemProcessSource(p platform.Platform) *SystemProcessSource {
	return &SystemProcessSource{platform: p}
}

// Processes returns every process with a resolvable name. Processes that
// disappear or deny access mid-enumeration are skipped.
func (s *SystemProcessSource) Processes(ctx context.Context) ([]Process, error) {
	visible, err := s.platform.VisiblePIDs(ctx)
	if err != nil {
		return nil, err
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Process, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		exe, _ := p.ExeWithContext(ctx)
		out = append(out, Process{
			PID:     p.Pid,
			Name:    processName(name),
			Exe:     exe,
			Visible: visible[p.Pid],
		})
	}
	return out, nil
}

// processName drops a trailing ".exe" so names match across platforms.
func processName(name string) string {
	if len(name) > 4 && strings.EqualFold(name[len(name)-4:], ".exe") {
		return name[:len(name)-4]
	}
	return name
}
