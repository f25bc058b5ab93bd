// Package settings implements the agent's persisted settings and identity
// store: a flat JSON key/value map kept in the application-data directory.
//
// Persistence is merge-on-write. Set updates a single key in the in-memory
// map and then writes the whole merged map, so every key previously loaded
// or set survives a later partial update.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// Well-known keys.
const (
	KeyAgentID           = "AgentId"
	KeyAPIURL            = "ApiUrl"
	KeyMonitoringEnabled = "MonitoringEnabled"
)

const (
	// FileName is the settings file inside the application-data directory.
	FileName = "config.json"

	// DefaultAPIURL is used when no ApiUrl is stored.
	DefaultAPIURL = "https://api.pcsuccession.local"
)

// ErrConfiguration marks a settings load or save I/O failure.
var ErrConfiguration = errors.New("configuration failure")

// ErrReadOnlyKey is returned by Set for keys the store manages itself.
var ErrReadOnlyKey = errors.New("read-only setting")

// Store holds the settings map. Reads are cheap and concurrent; writes are
// serialized so that the file always reflects the latest merged map.
type Store struct {
	path   string
	logger *zap.Logger

	mu       sync.RWMutex
	settings map[string]any

	writeMu sync.Mutex
	idMu    sync.Mutex
}

// Open creates dir if needed and loads the settings file from it.
// Failure to create dir is the only error: a missing or unreadable file
// falls back to in-memory defaults.
func Open(dir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating application data directory %s: %w", dir, err)
	}
	s := &Store{
		path:   filepath.Join(dir, FileName),
		logger: logger.Named("settings"),
	}
	s.settings = s.load()
	return s, nil
}

// Path returns the settings file location.
func (s *Store) Path() string { return s.path }

func defaults() map[string]any {
	return map[string]any{
		KeyMonitoringEnabled: true,
		KeyAPIURL:            DefaultAPIURL,
	}
}

func (s *Store) load() map[string]any {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("Failed to read settings, using defaults",
				zap.String("path", s.path), zap.Error(err))
		}
		return defaults()
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		s.logger.Error("Failed to parse settings, using defaults",
			zap.String("path", s.path), zap.Error(err))
		return defaults()
	}
	return m
}

// Get returns the raw value stored under key.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.settings[key]
	return v, ok
}

// String returns the value under key as a string, or "" when absent.
func (s *Store) String(key string) string {
	v, _ := s.Get(key)
	return cast.ToString(v)
}

// Bool returns the value under key as a bool, or def when absent or not
// convertible. Numbers count as true when non-zero.
func (s *Store) Bool(key string, def bool) bool {
	v, ok := s.Get(key)
	if !ok || v == nil {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

// All returns a copy of every stored key.
func (s *Store) All() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.settings))
	for k, v := range s.settings {
		out[k] = v
	}
	return out
}

// Set stores value under key and persists the merged map. The in-memory
// value is kept even when persisting fails. AgentId cannot be set: the
// identity is generated once by AgentID and kept for the process lifetime.
func (s *Store) Set(key string, value any) error {
	if key == KeyAgentID {
		return fmt.Errorf("%w: %s", ErrReadOnlyKey, key)
	}
	return s.set(key, value)
}

func (s *Store) set(key string, value any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.settings[key] = value
	snapshot := make(map[string]any, len(s.settings))
	for k, v := range s.settings {
		snapshot[k] = v
	}
	s.mu.Unlock()

	if err := s.persist(snapshot); err != nil {
		s.logger.Error("Failed to save settings",
			zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// persist writes the snapshot via a temp file and rename. Caller holds writeMu.
func (s *Store) persist(snapshot map[string]any) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding settings: %v", ErrConfiguration, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".config-*.json")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %v", ErrConfiguration, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: writing settings: %v", ErrConfiguration, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: closing settings: %v", ErrConfiguration, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: replacing settings: %v", ErrConfiguration, err)
	}
	return nil
}

// AgentID returns the stable agent identity, generating and persisting a new
// UUID on first access. If persisting fails the generated id is still used
// for the life of the process.
func (s *Store) AgentID() string {
	if id := s.String(KeyAgentID); id != "" {
		return id
	}

	s.idMu.Lock()
	defer s.idMu.Unlock()
	if id := s.String(KeyAgentID); id != "" {
		return id
	}

	id := uuid.NewString()
	if err := s.set(KeyAgentID, id); err != nil {
		s.logger.Warn("Agent identity not persisted", zap.String("agent_id", id))
	} else {
		s.logger.Info("Generated agent identity", zap.String("agent_id", id))
	}
	return id
}

// APIURL returns the stored orchestration service URL or the default.
func (s *Store) APIURL() string {
	if url := s.String(KeyAPIURL); url != "" {
		return url
	}
	return DefaultAPIURL
}

// MonitoringEnabled reports whether usage metrics should be collected.
// A settings file without the key counts as enabled.
func (s *Store) MonitoringEnabled() bool {
	return s.Bool(KeyMonitoringEnabled, true)
}
