package usage

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/pcsuccession/agent/internal/models"
)

// ReadFunc reads one utilisation percentage.
type ReadFunc func(ctx context.Context) (float64, error)

// Sampler takes system performance samples. Each reading is independent:
// a failed reading is logged and reported as zero.
type Sampler struct {
	cpu    ReadFunc
	memory ReadFunc
	disk   ReadFunc
	logger *zap.Logger
}

// NewSampler creates a sampler backed by gopsutil. CPU usage is measured
// over a short blocking window; disk usage is for the system volume.
func NewSampler(logger *zap.Logger) *Sampler {
	return NewSamplerWith(readCPU, readMemory, readDisk(systemVolume()), logger)
}

// NewSamplerWith creates a sampler from explicit readers.
func NewSamplerWith(cpuFn, memFn, diskFn ReadFunc, logger *zap.Logger) *Sampler {
	return &Sampler{
		cpu:    cpuFn,
		memory: memFn,
		disk:   diskFn,
		logger: logger.Named("sampler"),
	}
}

// Sample returns one performance sample. It never fails as a whole.
func (s *Sampler) Sample(ctx context.Context) models.SystemPerformance {
	return models.SystemPerformance{
		CPUUsagePercent:    s.read(ctx, "cpu", s.cpu),
		MemoryUsagePercent: s.read(ctx, "memory", s.memory),
		DiskUsagePercent:   s.read(ctx, "disk", s.disk),
	}
}

func (s *Sampler) read(ctx context.Context, name string, fn ReadFunc) (v float64) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("Performance reading panicked", zap.String("metric", name), zap.Any("panic", r))
			v = 0
		}
	}()
	v, err := fn(ctx)
	if err != nil {
		s.logger.Warn("Performance reading failed", zap.String("metric", name), zap.Error(err))
		return 0
	}
	return v
}

func readCPU(ctx context.Context) (float64, error) {
	overall, err := cpu.PercentWithContext(ctx, time.Second, false)
	if err != nil {
		return 0, err
	}
	if len(overall) == 0 {
		return 0, nil
	}
	return overall[0], nil
}

func readMemory(ctx context.Context) (float64, error) {
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return v.UsedPercent, nil
}

func readDisk(path string) ReadFunc {
	return func(ctx context.Context) (float64, error) {
		usage, err := disk.UsageWithContext(ctx, path)
		if err != nil {
			return 0, err
		}
		return usage.UsedPercent, nil
	}
}

func systemVolume() string {
	if runtime.GOOS == "windows" {
		drive := os.Getenv("SystemDrive")
		if drive == "" {
			drive = "C:"
		}
		return drive + `\`
	}
	return "/"
}
