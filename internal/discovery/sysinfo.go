package discovery

import (
	"context"
	"os"
	"os/user"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/multierr"

	"github.com/pcsuccession/agent/internal/models"
)

// collectSystemInfo describes the host. Individual readings that fail are
// left empty and reported together.
func collectSystemInfo(ctx context.Context) (models.SystemInfo, error) {
	var errs error
	info := models.SystemInfo{
		Is64Bit:        strings.HasSuffix(runtime.GOARCH, "64"),
		ProcessorCount: runtime.NumCPU(),
		DomainName:     os.Getenv("USERDOMAIN"),
	}

	hostname, err := os.Hostname()
	errs = multierr.Append(errs, err)
	info.MachineName = hostname
	info.ComputerName = strings.ToUpper(strings.SplitN(hostname, ".", 2)[0])
	if info.DomainName == "" {
		if parts := strings.SplitN(hostname, ".", 2); len(parts) == 2 {
			info.DomainName = parts[1]
		}
	}

	if u, err := user.Current(); err == nil {
		info.UserName = u.Username
	} else {
		errs = multierr.Append(errs, err)
	}

	if h, err := host.InfoWithContext(ctx); err == nil {
		info.OSVersion = strings.TrimSpace(h.Platform + " " + h.PlatformVersion)
		if info.OSVersion == "" {
			info.OSVersion = h.OS + " " + h.KernelVersion
		}
	} else {
		errs = multierr.Append(errs, err)
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.TotalMemoryMB = vm.Total / 1024 / 1024
	} else {
		errs = multierr.Append(errs, err)
	}

	if cpus, err := cpu.InfoWithContext(ctx); err == nil && len(cpus) > 0 {
		info.ProcessorName = strings.TrimSpace(cpus[0].ModelName)
	} else if err != nil {
		errs = multierr.Append(errs, err)
	}

	info.Manufacturer, info.Model = hardwareModel(ctx)
	return info, errs
}

// AgentInfo returns the registration summary of this machine. Readings that
// fail are left empty.
func AgentInfo(ctx context.Context) models.AgentInfo {
	info, _ := collectSystemInfo(ctx)
	return models.AgentInfo{
		ComputerName: info.ComputerName,
		UserName:     info.UserName,
		OSVersion:    info.OSVersion,
	}
}
