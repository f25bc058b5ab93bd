// Package statefile persists the usage tracker's counters to a local JSON
// file so that first-seen times and accumulated minutes survive agent
// restarts. It is not an outbound queue: nothing here is ever re-sent.
package statefile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pcsuccession/agent/internal/models"
)

// FileName is the default state file inside the application-data directory.
const FileName = "usage.json"

// state is the on-disk document.
type state struct {
	SavedAt time.Time            `json:"saved_at"`
	Records []models.UsageRecord `json:"records"`
}

// File stores usage records at a fixed path.
type File struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// New creates a state file handle. The parent directory is created if it
// does not exist.
func New(path string, logger *zap.Logger) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	return &File{
		path:   path,
		logger: logger.Named("statefile"),
	}, nil
}

// Path returns the file location.
func (f *File) Path() string { return f.path }

// Save replaces the stored records with the given snapshot.
func (f *File) Save(records map[string]models.UsageRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc := state{
		SavedAt: time.Now().UTC(),
		Records: make([]models.UsageRecord, 0, len(records)),
	}
	for _, rec := range records {
		doc.Records = append(doc.Records, rec)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding usage state: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0640); err != nil {
		return fmt.Errorf("writing usage state: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing usage state: %w", err)
	}
	return nil
}

// Load reads the stored records keyed by application name. A missing file
// yields an empty map. A corrupted file is removed and logged.
func (f *File) Load() (map[string]models.UsageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]models.UsageRecord)

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return out, fmt.Errorf("reading usage state: %w", err)
	}

	var doc state
	if err := json.Unmarshal(data, &doc); err != nil {
		f.logger.Warn("Failed to parse usage state, removing corrupted file",
			zap.String("file", f.path),
			zap.Error(err))
		os.Remove(f.path)
		return out, nil
	}

	for _, rec := range doc.Records {
		if rec.ApplicationName == "" {
			continue
		}
		out[rec.ApplicationName] = rec
	}
	return out, nil
}
