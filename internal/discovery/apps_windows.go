//go:build windows

package discovery

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"golang.org/x/sys/windows/registry"

	"github.com/pcsuccession/agent/internal/models"
)

// uninstallKeys are the native and 32-bit compatibility install registries.
// Entries are not deduplicated across them.
var uninstallKeys = []string{
	`SOFTWARE\Microsoft\Windows\CurrentVersion\Uninstall`,
	`SOFTWARE\WOW6432Node\Microsoft\Windows\CurrentVersion\Uninstall`,
}

func installedApplications(ctx context.Context) ([]models.Application, error) {
	var (
		apps []models.Application
		errs error
	)
	for _, path := range uninstallKeys {
		if ctx.Err() != nil {
			return apps, ctx.Err()
		}
		found, err := readUninstallKey(path)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		apps = append(apps, found...)
	}
	return apps, errs
}

func readUninstallKey(path string) ([]models.Application, error) {
	root, err := registry.OpenKey(registry.LOCAL_MACHINE, path, registry.ENUMERATE_SUB_KEYS)
	if err != nil {
		return nil, fmt.Errorf("opening HKLM\\%s: %w", path, err)
	}
	defer root.Close()

	names, err := root.ReadSubKeyNames(-1)
	if err != nil {
		return nil, fmt.Errorf("listing HKLM\\%s: %w", path, err)
	}

	apps := make([]models.Application, 0, len(names))
	for _, name := range names {
		keyPath := path + `\` + name
		k, err := registry.OpenKey(registry.LOCAL_MACHINE, keyPath, registry.QUERY_VALUE)
		if err != nil {
			continue
		}
		displayName, _, _ := k.GetStringValue("DisplayName")
		if displayName == "" {
			k.Close()
			continue
		}
		app := models.Application{
			Name:        displayName,
			RegistryKey: keyPath,
		}
		app.Version, _, _ = k.GetStringValue("DisplayVersion")
		app.Publisher, _, _ = k.GetStringValue("Publisher")
		app.InstallDate, _, _ = k.GetStringValue("InstallDate")
		app.InstallLocation, _, _ = k.GetStringValue("InstallLocation")
		app.UninstallString, _, _ = k.GetStringValue("UninstallString")
		k.Close()
		apps = append(apps, app)
	}
	return apps, nil
}
