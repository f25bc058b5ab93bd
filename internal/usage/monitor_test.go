package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pcsuccession/agent/internal/models"
)

type memState struct {
	saved   map[string]models.UsageRecord
	loaded  map[string]models.UsageRecord
	loadErr error
	saveErr error
}

func (m *memState) Save(records map[string]models.UsageRecord) error {
	m.saved = records
	return m.saveErr
}

func (m *memState) Load() (map[string]models.UsageRecord, error) {
	return m.loaded, m.loadErr
}

func newTestMonitor(t *testing.T, src ProcessSource, state StateStore) *Monitor {
	t.Helper()
	tr := newTestTracker(t, src)
	sampler := NewSamplerWith(constant(10), constant(20), constant(30), zap.NewNop())
	return NewMonitor(tr, sampler, NewFileTracker(nil, 0, 0, zap.NewNop()), state, 15*time.Minute, zap.NewNop())
}

func TestCollect_BuildsMetrics(t *testing.T) {
	state := &memState{}
	src := &fakeSource{procs: []Process{{Name: "app", Visible: true}}}
	m := newTestMonitor(t, src, state)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	got, err := m.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if !got.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, now)
	}
	if _, ok := got.ApplicationUsage["app"]; !ok {
		t.Error("app missing from ApplicationUsage")
	}
	if got.SystemPerformance.DiskUsagePercent != 30 {
		t.Errorf("SystemPerformance = %+v", got.SystemPerformance)
	}
	if got.FileAccess == nil {
		t.Error("FileAccess should be an empty list, not nil")
	}
	if _, ok := state.saved["app"]; !ok {
		t.Error("usage state not persisted")
	}
}

func TestCollect_TrackFailureIsNotFatal(t *testing.T) {
	src := &fakeSource{err: errors.New("enumeration failed")}
	m := newTestMonitor(t, src, nil)

	got, err := m.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(got.ApplicationUsage) != 0 {
		t.Errorf("ApplicationUsage = %v, want empty", got.ApplicationUsage)
	}
	if got.SystemPerformance.CPUUsagePercent != 10 {
		t.Errorf("performance sample missing: %+v", got.SystemPerformance)
	}
}

func TestCollect_CancelledContext(t *testing.T) {
	m := newTestMonitor(t, &fakeSource{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Collect(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Collect error = %v, want context.Canceled", err)
	}
}

func TestRestoreState(t *testing.T) {
	state := &memState{loaded: map[string]models.UsageRecord{
		"old": {ApplicationName: "old", LaunchCount: 1, TotalMinutesUsed: 90},
	}}
	m := newTestMonitor(t, &fakeSource{}, state)
	m.RestoreState()
	if got := m.tracker.Snapshot()["old"].TotalMinutesUsed; got != 90 {
		t.Errorf("restored minutes = %v, want 90", got)
	}

	failing := newTestMonitor(t, &fakeSource{}, &memState{loadErr: errors.New("corrupt")})
	failing.RestoreState()
	if len(failing.tracker.Snapshot()) != 0 {
		t.Error("failed restore should leave the tracker empty")
	}
}
