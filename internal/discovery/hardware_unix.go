//go:build !windows

package discovery

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// hardwareModel reads DMI data on Linux and sysctl on macOS.
func hardwareModel(ctx context.Context) (string, string) {
	switch runtime.GOOS {
	case "linux":
		return readTrimmed("/sys/class/dmi/id/sys_vendor"), readTrimmed("/sys/class/dmi/id/product_name")
	case "darwin":
		out, err := exec.CommandContext(ctx, "sysctl", "-n", "hw.model").Output()
		if err != nil {
			return "Apple Inc.", ""
		}
		return "Apple Inc.", strings.TrimSpace(string(out))
	}
	return "", ""
}

func readTrimmed(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
