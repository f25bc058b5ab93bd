package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pcsuccession/agent/internal/autostart"
	"github.com/pcsuccession/agent/internal/config"
	"github.com/pcsuccession/agent/internal/platform"
	"github.com/pcsuccession/agent/internal/settings"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the agent (default)",
		RunE:  runCommand,
	}
}

func newIdentityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "identity",
		Short: "Print the agent identity, creating it if needed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openSettings(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), store.AgentID())
			return nil
		},
	}
}

func newInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Register the agent with the service manager",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := autostart.RequireElevation(); err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolving executable path: %w", err)
			}
			args, err := serviceArgs(cmd)
			if err != nil {
				return err
			}

			mgr := autostart.New()
			if err := mgr.Install(exe, args); err != nil {
				return fmt.Errorf("installing %s: %w", mgr.ServiceName(), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Installed %s\n", mgr.ServiceName())
			return nil
		},
	}
}

func newUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the agent from the service manager",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := autostart.RequireElevation(); err != nil {
				return err
			}
			mgr := autostart.New()
			if err := mgr.Uninstall(); err != nil {
				return fmt.Errorf("uninstalling %s: %w", mgr.ServiceName(), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", mgr.ServiceName())
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show service registration and local settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			mgr := autostart.New()
			installed, err := mgr.IsInstalled()
			if err != nil {
				fmt.Fprintf(out, "Service:    %s (unknown: %v)\n", mgr.ServiceName(), err)
			} else {
				fmt.Fprintf(out, "Service:    %s (installed: %t)\n", mgr.ServiceName(), installed)
			}

			store, err := openSettings(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Settings:   %s\n", store.Path())
			fmt.Fprintf(out, "Agent ID:   %s\n", store.AgentID())
			fmt.Fprintf(out, "API URL:    %s\n", store.APIURL())
			fmt.Fprintf(out, "Monitoring: %t\n", store.MonitoringEnabled())
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if out, _ := cmd.Flags().GetString("write"); out != "" {
				if err := config.WriteConfig(cfg, out); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", out)
				return nil
			}
			data, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().String("write", "", "Write the configuration to this file instead of stdout")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pcsuccession-agent %s\n", version)
		},
	}
}

// openSettings opens the settings store in the configured data directory.
func openSettings(cmd *cobra.Command) (*settings.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	dir := cfg.DataDir
	if dir == "" {
		dir = platform.New().AppDataDir()
	}
	return settings.Open(dir, zap.NewNop())
}

// serviceArgs are the arguments the service manager starts the agent with.
// Persistent flags given to install are forwarded, with paths made absolute.
func serviceArgs(cmd *cobra.Command) ([]string, error) {
	args := []string{"run"}
	for _, name := range []string{"config", "data-dir"} {
		v, _ := cmd.Flags().GetString(name)
		if v == "" {
			continue
		}
		abs, err := filepath.Abs(v)
		if err != nil {
			return nil, fmt.Errorf("resolving --%s: %w", name, err)
		}
		args = append(args, "--"+name, abs)
	}
	for _, name := range []string{"url", "log-level"} {
		if v, _ := cmd.Flags().GetString(name); v != "" {
			args = append(args, "--"+name, v)
		}
	}
	return args, nil
}
