//go:build !windows

package discovery

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pcsuccession/agent/internal/models"
)

const (
	dpkgStatusPath  = "/var/lib/dpkg/status"
	applicationsDir = "/Applications"
)

func installedApplications(ctx context.Context) ([]models.Application, error) {
	switch runtime.GOOS {
	case "darwin":
		return applicationBundles(ctx, applicationsDir)
	default:
		f, err := os.Open(dpkgStatusPath)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, err
		}
		defer f.Close()
		return parseDpkgStatus(f, dpkgStatusPath)
	}
}

// applicationBundles lists the .app bundles directly under dir.
func applicationBundles(ctx context.Context, dir string) ([]models.Application, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var apps []models.Application
	for _, e := range entries {
		if ctx.Err() != nil {
			return apps, ctx.Err()
		}
		if !e.IsDir() || !strings.HasSuffix(e.Name(), ".app") {
			continue
		}
		app := models.Application{
			Name:            strings.TrimSuffix(e.Name(), ".app"),
			InstallLocation: filepath.Join(dir, e.Name()),
			RegistryKey:     dir,
		}
		if fi, err := e.Info(); err == nil {
			app.InstallDate = fi.ModTime().Format("20060102")
		}
		apps = append(apps, app)
	}
	return apps, nil
}
