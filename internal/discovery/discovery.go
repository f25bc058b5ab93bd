// Package discovery builds the machine inventory pushed to the orchestration
// service. The inventory is assembled from independently fallible
// sub-collections: a failure in one is logged and leaves that category
// empty (or partial) without touching the others.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/pcsuccession/agent/internal/models"
)

// ErrCollection marks a sub-collection failure.
var ErrCollection = errors.New("collection failure")

// Sources holds one function per inventory category. A nil function leaves
// its category empty.
type Sources struct {
	SystemInfo   func(ctx context.Context) (models.SystemInfo, error)
	Applications func(ctx context.Context) ([]models.Application, error)
	Registry     func(ctx context.Context) ([]models.RegistryItem, error)
	Certificates func(ctx context.Context) ([]models.Certificate, error)
	VPN          func(ctx context.Context) ([]models.VPNConnection, error)
	UserData     func(ctx context.Context) ([]models.FileLocation, error)
}

// Options tunes the OS-backed sources.
type Options struct {
	// RegistryKeys are HKLM/HKCU key paths whose values are inventoried.
	RegistryKeys []string

	// CertificateDirs overrides the PEM directories scanned on Unix, keyed
	// by "<location>/<store>".
	CertificateDirs map[string]string
}

// Collector runs a full discovery.
type Collector struct {
	sources Sources
	logger  *zap.Logger
	now     func() time.Time
}

// NewCollector creates a collector backed by the operating system.
func NewCollector(opts Options, logger *zap.Logger) *Collector {
	return NewCollectorWith(DefaultSources(opts, logger), logger)
}

// NewCollectorWith creates a collector from explicit sources.
func NewCollectorWith(sources Sources, logger *zap.Logger) *Collector {
	return &Collector{
		sources: sources,
		logger:  logger.Named("discovery"),
		now:     time.Now,
	}
}

// DefaultSources returns the OS-backed source set for this platform.
func DefaultSources(opts Options, logger *zap.Logger) Sources {
	certDirs := defaultCertificateDirs()
	for k, v := range opts.CertificateDirs {
		certDirs[k] = v
	}
	return Sources{
		SystemInfo:   collectSystemInfo,
		Applications: installedApplications,
		Registry: func(ctx context.Context) ([]models.RegistryItem, error) {
			return registrySettings(ctx, opts.RegistryKeys)
		},
		Certificates: func(ctx context.Context) ([]models.Certificate, error) {
			return certificates(ctx, certDirs)
		},
		VPN:      vpnConnections,
		UserData: userDataLocations,
	}
}

// PerformFullDiscovery builds a complete inventory. All sub-collections run
// concurrently. The returned inventory is always usable; the error, if any,
// aggregates the sub-collection failures and wraps ErrCollection.
func (c *Collector) PerformFullDiscovery(ctx context.Context) (models.Inventory, error) {
	start := c.now()
	inv := models.Inventory{Timestamp: start.UTC()}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	fail := func(name string, err error) {
		c.logger.Error("Discovery sub-collection failed",
			zap.String("collection", name),
			zap.Error(err))
		mu.Lock()
		errs = multierr.Append(errs, fmt.Errorf("%w: %s: %w", ErrCollection, name, err))
		mu.Unlock()
	}
	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					fail(name, fmt.Errorf("panic: %v", r))
				}
			}()
			if err := fn(); err != nil {
				fail(name, err)
			}
		}()
	}

	// Each goroutine writes only its own field of inv.
	s := c.sources
	if s.SystemInfo != nil {
		run("system_info", func() (err error) {
			inv.SystemInfo, err = s.SystemInfo(ctx)
			return err
		})
	}
	if s.Applications != nil {
		run("applications", func() (err error) {
			inv.InstalledApplications, err = s.Applications(ctx)
			return err
		})
	}
	if s.Registry != nil {
		run("registry", func() (err error) {
			inv.RegistrySettings, err = s.Registry(ctx)
			return err
		})
	}
	if s.Certificates != nil {
		run("certificates", func() (err error) {
			inv.Certificates, err = s.Certificates(ctx)
			return err
		})
	}
	if s.VPN != nil {
		run("vpn", func() (err error) {
			inv.VPNConnections, err = s.VPN(ctx)
			return err
		})
	}
	if s.UserData != nil {
		run("user_data", func() (err error) {
			inv.UserDataLocations, err = s.UserData(ctx)
			return err
		})
	}
	wg.Wait()

	normalize(&inv)

	var userDataMB int64
	for _, loc := range inv.UserDataLocations {
		userDataMB += loc.SizeMB
	}
	fields := []zap.Field{
		zap.Int("applications", len(inv.InstalledApplications)),
		zap.Int("registry_settings", len(inv.RegistrySettings)),
		zap.Int("certificates", len(inv.Certificates)),
		zap.Int("vpn_connections", len(inv.VPNConnections)),
		zap.Int("user_data_locations", len(inv.UserDataLocations)),
		zap.String("user_data_size", humanize.IBytes(uint64(userDataMB)*1024*1024)),
		zap.Duration("elapsed", c.now().Sub(start)),
	}
	if errs != nil {
		c.logger.Warn("Discovery completed with failures",
			append(fields, zap.Int("failed", len(multierr.Errors(errs))))...)
	} else {
		c.logger.Info("Discovery completed", fields...)
	}
	return inv, errs
}

// normalize replaces nil category slices with empty ones so they encode as
// JSON arrays.
func normalize(inv *models.Inventory) {
	if inv.InstalledApplications == nil {
		inv.InstalledApplications = []models.Application{}
	}
	if inv.RegistrySettings == nil {
		inv.RegistrySettings = []models.RegistryItem{}
	}
	if inv.Certificates == nil {
		inv.Certificates = []models.Certificate{}
	}
	if inv.VPNConnections == nil {
		inv.VPNConnections = []models.VPNConnection{}
	}
	if inv.UserDataLocations == nil {
		inv.UserDataLocations = []models.FileLocation{}
	}
}
