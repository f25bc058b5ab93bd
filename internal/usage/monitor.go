package usage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pcsuccession/agent/internal/models"
)

// StateStore persists usage records between agent runs.
type StateStore interface {
	Save(records map[string]models.UsageRecord) error
	Load() (map[string]models.UsageRecord, error)
}

// Monitor produces UsageMetrics by combining the tracker, the performance
// sampler and the file access tracker.
type Monitor struct {
	tracker  *Tracker
	sampler  *Sampler
	files    *FileTracker
	state    StateStore
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	lastFileScan time.Time
}

// NewMonitor wires the usage components. state may be nil.
func NewMonitor(tracker *Tracker, sampler *Sampler, files *FileTracker, state StateStore, interval time.Duration, logger *zap.Logger) *Monitor {
	return &Monitor{
		tracker:  tracker,
		sampler:  sampler,
		files:    files,
		state:    state,
		interval: interval,
		logger:   logger.Named("monitor"),
		now:      time.Now,
	}
}

// RestoreState seeds the tracker from the state store. Failures are logged
// and tracking starts fresh.
func (m *Monitor) RestoreState() {
	if m.state == nil {
		return
	}
	records, err := m.state.Load()
	if err != nil {
		m.logger.Warn("Failed to restore usage state", zap.Error(err))
		return
	}
	m.tracker.Restore(records)
	m.logger.Info("Restored usage state", zap.Int("records", len(records)))
}

// Collect runs one metrics tick. Process enumeration and file scanning
// failures degrade the sample instead of failing it; an error is returned
// only when ctx is already done.
func (m *Monitor) Collect(ctx context.Context) (models.UsageMetrics, error) {
	now := m.now().UTC()

	if err := m.tracker.Track(ctx, now); err != nil {
		m.logger.Warn("Application usage tracking failed", zap.Error(err))
	}

	since := m.lastFileScan
	if since.IsZero() {
		since = now.Add(-m.interval)
	}
	var files []models.FileAccess
	if m.files != nil {
		files = m.files.Recent(ctx, since)
	}
	m.lastFileScan = now

	perf := m.sampler.Sample(ctx)

	if err := ctx.Err(); err != nil {
		return models.UsageMetrics{}, err
	}

	snapshot := m.tracker.Snapshot()
	if m.state != nil {
		if err := m.state.Save(snapshot); err != nil {
			m.logger.Warn("Failed to persist usage state", zap.Error(err))
		}
	}

	return models.UsageMetrics{
		Timestamp:         now,
		ApplicationUsage:  snapshot,
		FileAccess:        files,
		SystemPerformance: perf,
	}, nil
}
