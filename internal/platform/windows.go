//go:build windows

package platform

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// WindowsPlatform implements Platform for Windows systems.
type WindowsPlatform struct{}

// New creates the platform instance for the running OS.
func New() Platform {
	return &WindowsPlatform{}
}

// Name returns the platform identifier.
func (p *WindowsPlatform) Name() string { return "windows" }

// AppDataDir returns %ProgramData%\PCSuccession.
func (p *WindowsPlatform) AppDataDir() string {
	programData := os.Getenv("ProgramData")
	if programData == "" {
		programData = `C:\ProgramData`
	}
	return filepath.Join(programData, AppName)
}

// visibleState accumulates the result of one EnumWindows pass.
type visibleState struct {
	pids  map[int32]bool
	title [2]uint16
}

// enumWindowsProc is created once; Windows callbacks are never released.
var enumWindowsProc = windows.NewCallback(func(hwnd windows.HWND, param uintptr) uintptr {
	state := (*visibleState)(unsafe.Pointer(param))
	if !windows.IsWindowVisible(hwnd) {
		return 1
	}
	if n, _ := windows.GetWindowText(hwnd, &state.title[0], int32(len(state.title))); n == 0 {
		return 1
	}
	var pid uint32
	if _, err := windows.GetWindowThreadProcessId(hwnd, &pid); err == nil && pid != 0 {
		state.pids[int32(pid)] = true
	}
	return 1
})

// VisiblePIDs enumerates top-level windows and returns the owning process of
// every window that is visible and has a title.
func (p *WindowsPlatform) VisiblePIDs(ctx context.Context) (map[int32]bool, error) {
	state := &visibleState{pids: make(map[int32]bool)}
	if err := windows.EnumWindows(enumWindowsProc, unsafe.Pointer(state)); err != nil {
		return nil, err
	}
	return state.pids, nil
}

// ShellCommand runs the script through Windows PowerShell. Elevated scripts
// are wrapped in Start-Process -Verb RunAs.
func (p *WindowsPlatform) ShellCommand(ctx context.Context, script string, elevated bool) *exec.Cmd {
	if elevated {
		quoted := strings.ReplaceAll(script, "'", "''")
		script = "Start-Process powershell -Wait -Verb RunAs -ArgumentList " +
			"'-NoProfile -ExecutionPolicy Bypass -Command " + quoted + "'"
	}
	cmd := exec.CommandContext(ctx, "powershell.exe",
		"-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass", "-Command", script)
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
	return cmd
}
