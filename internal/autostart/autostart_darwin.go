//go:build darwin

package autostart

import (
	"fmt"
	"html"
	"os"
	"os/exec"
	"strings"
)

const (
	serviceLabel = "com.pcsuccession.agent"
	plistPath    = "/Library/LaunchDaemons/com.pcsuccession.agent.plist"
)

const plistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>com.pcsuccession.agent</string>
    <key>ProgramArguments</key>
    <array>
{arguments}    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>/var/log/pcsuccession-agent.log</string>
    <key>StandardErrorPath</key>
    <string>/var/log/pcsuccession-agent.log</string>
</dict>
</plist>
`

type darwinManager struct{}

// New returns a Manager backed by a launchd daemon.
func New() Manager { return &darwinManager{} }

func (d *darwinManager) ServiceName() string { return serviceLabel }

func (d *darwinManager) IsInstalled() (bool, error) {
	_, err := os.Stat(plistPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking plist file: %w", err)
	}
	return true, nil
}

func (d *darwinManager) Install(execPath string, args []string) error {
	var b strings.Builder
	for _, a := range append([]string{execPath}, args...) {
		fmt.Fprintf(&b, "        <string>%s</string>\n", html.EscapeString(a))
	}
	plist := strings.ReplaceAll(plistTemplate, "{arguments}", b.String())
	if err := os.WriteFile(plistPath, []byte(plist), 0644); err != nil {
		return fmt.Errorf("writing plist: %w", err)
	}
	if err := exec.Command("launchctl", "load", "-w", plistPath).Run(); err != nil {
		return fmt.Errorf("loading plist: %w", err)
	}
	return nil
}

func (d *darwinManager) Uninstall() error {
	_ = exec.Command("launchctl", "unload", plistPath).Run()
	if err := os.Remove(plistPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing plist: %w", err)
	}
	return nil
}
