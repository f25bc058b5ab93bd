// Package main is the entry point for the PC Succession endpoint agent.
// It loads configuration, wires discovery, usage monitoring, the sync client
// and the command dispatcher into the orchestrator, and runs either under the
// host service manager or as a foreground process.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pcsuccession/agent/internal/config"
	"github.com/pcsuccession/agent/internal/discovery"
	"github.com/pcsuccession/agent/internal/dispatch"
	"github.com/pcsuccession/agent/internal/models"
	"github.com/pcsuccession/agent/internal/orchestrator"
	"github.com/pcsuccession/agent/internal/platform"
	"github.com/pcsuccession/agent/internal/service"
	"github.com/pcsuccession/agent/internal/settings"
	"github.com/pcsuccession/agent/internal/statefile"
	"github.com/pcsuccession/agent/internal/syncclient"
	"github.com/pcsuccession/agent/internal/usage"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pcsuccession-agent",
		Short: "PC Succession endpoint agent",
		Long: "Inventories this computer, tracks application usage and executes\n" +
			"commands issued by the PC Succession orchestration service.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runCommand,
	}
	cmd.PersistentFlags().String("config", "", "Path to configuration file (default: auto-discover)")
	cmd.PersistentFlags().String("url", "", "Orchestration service URL (overrides ApiUrl)")
	cmd.PersistentFlags().String("data-dir", "", "Application data directory")
	cmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newIdentityCmd())
	cmd.AddCommand(newInstallCmd())
	cmd.AddCommand(newUninstallCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// loadConfig resolves the layered configuration from the persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	url, _ := cmd.Flags().GetString("url")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	level, _ := cmd.Flags().GetString("log-level")

	cli := config.CLIOverrides{URL: url, DataDir: dataDir, LogLevel: level}

	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadLayered(cli, embeddedConfig, path)
	} else {
		cfg, err = config.LoadLayered(cli, embeddedConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// runCommand starts the agent and blocks until it is told to stop.
func runCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := initLogger(cfg)
	defer logger.Sync()

	logger.Info("Starting PC Succession agent",
		zap.String("version", version),
		zap.String("server", cfg.Server.URL))

	if service.IsWindowsService() {
		logger.Info("Running as Windows service")
		svc := service.New(logger, func(ctx context.Context) {
			if err := runAgent(ctx, cfg, logger); err != nil {
				logger.Error("Agent failed", zap.Error(err))
			}
		})
		return svc.Run()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runAgent(ctx, cfg, logger); err != nil {
		return err
	}
	logger.Info("Agent stopped")
	return nil
}

// runAgent builds every component and runs the orchestrator until ctx ends.
func runAgent(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	plat := platform.New()

	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = plat.AppDataDir()
	}
	store, err := settings.Open(dataDir, logger)
	if err != nil {
		return err
	}
	logger.Info("Agent identity",
		zap.String("agent_id", store.AgentID()),
		zap.String("settings", store.Path()))

	client := syncclient.New(
		func() string {
			if cfg.Server.URL != "" {
				return cfg.Server.URL
			}
			return store.APIURL()
		},
		store.AgentID,
		cfg.Server.RequestTimeout.Duration,
		logger,
	)

	monitor, err := newUsageMonitor(cfg, plat, dataDir, logger)
	if err != nil {
		return err
	}

	collector := discovery.NewCollector(discovery.Options{
		RegistryKeys:    cfg.Discovery.RegistryKeys,
		CertificateDirs: cfg.Discovery.CertificateDirs,
	}, logger)

	dispatcher := dispatch.New(client, cfg.Commands.RatePerSecond, cfg.Commands.Burst, logger)

	orch := orchestrator.New(orchestrator.Deps{
		Discovery:  collector,
		Metrics:    monitor,
		Sync:       client,
		Dispatcher: dispatcher,
		Settings:   store,
		AgentInfo:  discovery.AgentInfo,
	}, orchestrator.Schedule{
		Discovery: cfg.Schedule.DiscoveryInterval.Duration,
		Metrics:   cfg.Schedule.MetricsInterval.Duration,
		Sync:      cfg.Schedule.SyncInterval.Duration,
	}, logger)

	dispatcher.Register(models.CommandRefreshInventory, dispatch.RefreshInventory(orch.RefreshInventory))
	dispatcher.Register(models.CommandUpdateSetting, dispatch.UpdateSetting(store))
	dispatcher.Register(models.CommandExecPowerShell,
		dispatch.ExecPowerShell(plat, cfg.Commands.ExecTimeout.Duration, logger))

	logger.Info("Agent running",
		zap.String("platform", plat.Name()),
		zap.Duration("discovery_interval", cfg.Schedule.DiscoveryInterval.Duration),
		zap.Duration("metrics_interval", cfg.Schedule.MetricsInterval.Duration),
		zap.Duration("sync_interval", cfg.Schedule.SyncInterval.Duration))

	service.NotifyReady(logger)
	defer service.NotifyStopping(logger)

	return orch.Run(ctx)
}

// newUsageMonitor assembles the usage pipeline and restores counters saved
// by a previous run. An unusable state file only disables persistence.
func newUsageMonitor(cfg *config.Config, plat platform.Platform, dataDir string, logger *zap.Logger) (*usage.Monitor, error) {
	interval := cfg.Schedule.MetricsInterval.Duration

	tracker, err := usage.NewTracker(usage.NewSystemProcessSource(plat), interval, cfg.Usage.Exclude, logger)
	if err != nil {
		return nil, fmt.Errorf("usage tracker: %w", err)
	}

	statePath := cfg.Usage.StatePath
	if statePath == "" {
		statePath = filepath.Join(dataDir, statefile.FileName)
	}
	var state usage.StateStore
	if f, err := statefile.New(statePath, logger); err != nil {
		logger.Warn("Usage state will not be persisted", zap.Error(err))
	} else {
		state = f
	}

	monitor := usage.NewMonitor(
		tracker,
		usage.NewSampler(logger),
		usage.NewFileTracker(cfg.Usage.FileRoots, cfg.Usage.FileMaxDepth, cfg.Usage.FileMaxItems, logger),
		state,
		interval,
		logger,
	)
	monitor.RestoreState()
	return monitor, nil
}

// initLogger creates a zap logger based on the configuration.
// It outputs to both console (human-readable) and optionally a JSON log file.
func initLogger(cfg *config.Config) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		level,
	)

	cores := []zapcore.Core{consoleCore}

	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0750); err == nil {
			file, err := os.OpenFile(cfg.Logging.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
			if err == nil {
				cores = append(cores, zapcore.NewCore(
					zapcore.NewJSONEncoder(encoderConfig),
					zapcore.AddSync(file),
					level,
				))
			}
		}
	}

	return zap.New(zapcore.NewTee(cores...))
}
