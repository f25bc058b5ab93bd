package discovery

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/pcsuccession/agent/internal/models"
)

type userFolder struct {
	kind string
	path string
}

// userFolders lists the well-known user-data folders for this platform.
func userFolders() []userFolder {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	videos := "Videos"
	if runtime.GOOS == "darwin" {
		videos = "Movies"
	}
	folders := []userFolder{
		{"Documents", filepath.Join(home, "Documents")},
		{"Desktop", filepath.Join(home, "Desktop")},
		{"Pictures", filepath.Join(home, "Pictures")},
		{"Videos", filepath.Join(home, videos)},
		{"Music", filepath.Join(home, "Music")},
		{"Downloads", filepath.Join(home, "Downloads")},
	}
	switch runtime.GOOS {
	case "windows":
		folders = append(folders,
			userFolder{"ApplicationData", os.Getenv("APPDATA")},
			userFolder{"LocalApplicationData", os.Getenv("LOCALAPPDATA")})
	case "darwin":
		folders = append(folders,
			userFolder{"ApplicationData", filepath.Join(home, "Library", "Application Support")})
	default:
		folders = append(folders,
			userFolder{"ApplicationData", filepath.Join(home, ".config")},
			userFolder{"LocalApplicationData", filepath.Join(home, ".local", "share")})
	}
	return folders
}

func userDataLocations(ctx context.Context) ([]models.FileLocation, error) {
	return measureFolders(ctx, userFolders())
}

// measureFolders reports size and file count for each folder that exists.
// Unreadable subtrees are left out of the totals.
func measureFolders(ctx context.Context, folders []userFolder) ([]models.FileLocation, error) {
	var out []models.FileLocation
	for _, f := range folders {
		if f.path == "" {
			continue
		}
		if fi, err := os.Stat(f.path); err != nil || !fi.IsDir() {
			continue
		}
		var (
			size  int64
			count int
		)
		err := filepath.WalkDir(f.path, func(_ string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			if info, err := d.Info(); err == nil {
				size += info.Size()
				count++
			}
			return nil
		})
		if err != nil && ctx.Err() != nil {
			return out, ctx.Err()
		}
		out = append(out, models.FileLocation{
			Path:      f.path,
			Type:      f.kind,
			SizeMB:    size / (1024 * 1024),
			FileCount: count,
		})
	}
	return out, nil
}
