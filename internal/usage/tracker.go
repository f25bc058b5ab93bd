// Package usage samples running processes and system performance on every
// metrics tick and keeps incremental per-application usage counters.
//
// Usage time is approximated by presence at sample time: every tick in
// which an already tracked application is observed adds one full sampling
// interval to its total. It is not a measurement of foreground time.
// Records restored from a previous run are not credited on their first
// sighting after the restart, since the gap since the last sample is unknown.
package usage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"go.uber.org/zap"

	"github.com/pcsuccession/agent/internal/models"
)

// Tracker owns the per-application usage map. Track is called only from the
// metrics loop; Snapshot may be called from any goroutine.
type Tracker struct {
	source   ProcessSource
	interval time.Duration
	exclude  []glob.Glob
	logger   *zap.Logger

	mu      sync.RWMutex
	records map[string]models.UsageRecord

	// restored names have not been observed since Restore.
	restored map[string]bool
}

// NewTracker creates a tracker that credits interval minutes per observation.
// exclude holds glob patterns matched against process names.
func NewTracker(source ProcessSource, interval time.Duration, exclude []string, logger *zap.Logger) (*Tracker, error) {
	compiled := make([]glob.Glob, 0, len(exclude))
	for _, pattern := range exclude {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, g)
	}
	return &Tracker{
		source:   source,
		interval: interval,
		exclude:  compiled,
		logger:   logger.Named("usage"),
		records:  make(map[string]models.UsageRecord),
		restored: make(map[string]bool),
	}, nil
}

// Track enumerates processes and merges the visible ones into the usage map.
// A name seen for the first time gets launch count 1 and zero minutes; a name
// already tracked gets last-seen = now and one interval of minutes added.
// Several processes sharing a name count once per tick. Records are never
// removed.
func (t *Tracker) Track(ctx context.Context, now time.Time) error {
	procs, err := t.source.Processes(ctx)
	if err != nil {
		return fmt.Errorf("enumerating processes: %w", err)
	}

	minutes := t.interval.Minutes()
	seen := make(map[string]bool)

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, p := range procs {
		if !p.Visible || p.Name == "" || seen[p.Name] || t.excluded(p.Name) {
			continue
		}
		seen[p.Name] = true

		rec, ok := t.records[p.Name]
		if !ok {
			t.records[p.Name] = models.UsageRecord{
				ApplicationName: p.Name,
				ExecutablePath:  p.Exe,
				FirstSeen:       now,
				LastSeen:        now,
				LaunchCount:     1,
			}
			continue
		}

		rec.LastSeen = now
		if t.restored[p.Name] {
			delete(t.restored, p.Name)
		} else {
			rec.TotalMinutesUsed += minutes
		}
		if rec.ExecutablePath == "" {
			rec.ExecutablePath = p.Exe
		}
		t.records[p.Name] = rec
	}

	t.logger.Debug("Tracked application usage",
		zap.Int("visible", len(seen)),
		zap.Int("tracked", len(t.records)))
	return nil
}

func (t *Tracker) excluded(name string) bool {
	for _, g := range t.exclude {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the usage map.
func (t *Tracker) Snapshot() map[string]models.UsageRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]models.UsageRecord, len(t.records))
	for k, v := range t.records {
		out[k] = v
	}
	return out
}

// Restore seeds the map with previously persisted records. Names already
// tracked in this process are left untouched. The next observation of a
// restored name only refreshes its last-seen time.
func (t *Tracker) Restore(records map[string]models.UsageRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, rec := range records {
		if _, ok := t.records[name]; ok {
			continue
		}
		t.records[name] = rec
		t.restored[name] = true
	}
}
