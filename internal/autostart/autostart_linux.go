//go:build linux

package autostart

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

const (
	serviceName = "pcsuccession-agent"
	unitPath    = "/etc/systemd/system/pcsuccession-agent.service"
	dataDir     = "/var/lib/pcsuccession"
)

// unitTemplate uses Type=notify: the agent reports readiness once its loops
// are running.
const unitTemplate = `[Unit]
Description=PC Succession Agent
After=network-online.target
Wants=network-online.target

[Service]
Type=notify
ExecStart={execStart}
Restart=always
RestartSec=10
StandardOutput=journal
StandardError=journal
SyslogIdentifier=pcsuccession-agent

[Install]
WantedBy=multi-user.target
`

type linuxManager struct{}

// New returns a Manager backed by systemd.
func New() Manager {
	return &linuxManager{}
}

func (l *linuxManager) ServiceName() string { return serviceName }

func (l *linuxManager) IsInstalled() (bool, error) {
	_, err := os.Stat(unitPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking unit file: %w", err)
	}
	return true, nil
}

// Install writes the unit file, then enables and starts the service.
func (l *linuxManager) Install(execPath string, args []string) error {
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	if err := os.WriteFile(unitPath, []byte(renderUnit(execPath, args)), 0644); err != nil {
		return fmt.Errorf("writing unit file: %w", err)
	}

	for _, argv := range [][]string{
		{"systemctl", "daemon-reload"},
		{"systemctl", "enable", serviceName},
		{"systemctl", "start", serviceName},
	} {
		if out, err := exec.Command(argv[0], argv[1:]...).CombinedOutput(); err != nil {
			return fmt.Errorf("running %s: %w: %s", strings.Join(argv, " "), err, strings.TrimSpace(string(out)))
		}
	}
	return nil
}

// Uninstall stops and removes the service. Stop and disable failures are
// ignored when the service is already inactive.
func (l *linuxManager) Uninstall() error {
	_ = exec.Command("systemctl", "stop", serviceName).Run()
	_ = exec.Command("systemctl", "disable", serviceName).Run()

	if err := os.Remove(unitPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing unit file: %w", err)
	}
	_ = exec.Command("systemctl", "daemon-reload").Run()
	return nil
}

// commandLine joins the executable and its arguments for ExecStart, quoting
// arguments that contain whitespace, quotes or backslashes.
func commandLine(execPath string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	for _, a := range append([]string{execPath}, args...) {
		if strings.ContainsAny(a, " \t\"\\") {
			a = strconv.Quote(a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

func renderUnit(execPath string, args []string) string {
	return strings.ReplaceAll(unitTemplate, "{execStart}", commandLine(execPath, args))
}
