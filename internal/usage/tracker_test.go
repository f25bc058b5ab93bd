package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pcsuccession/agent/internal/models"
)

type fakeSource struct {
	procs []Process
	err   error
}

func (f *fakeSource) Processes(context.Context) ([]Process, error) {
	return f.procs, f.err
}

func newTestTracker(t *testing.T, src ProcessSource, exclude ...string) *Tracker {
	t.Helper()
	tr, err := NewTracker(src, 15*time.Minute, exclude, zap.NewNop())
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	return tr
}

func TestTrack_AccumulatesAcrossTicks(t *testing.T) {
	src := &fakeSource{procs: []Process{{PID: 10, Name: "notepad", Exe: "/usr/bin/notepad", Visible: true}}}
	tr := newTestTracker(t, src)

	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	const ticks = 5
	for i := 0; i < ticks; i++ {
		if err := tr.Track(context.Background(), start.Add(time.Duration(i)*15*time.Minute)); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	rec, ok := tr.Snapshot()["notepad"]
	if !ok {
		t.Fatal("notepad not tracked")
	}
	if rec.LaunchCount != 1 {
		t.Errorf("LaunchCount = %d, want 1", rec.LaunchCount)
	}
	if want := float64((ticks - 1) * 15); rec.TotalMinutesUsed != want {
		t.Errorf("TotalMinutesUsed = %v, want %v", rec.TotalMinutesUsed, want)
	}
	if !rec.FirstSeen.Equal(start) {
		t.Errorf("FirstSeen = %v, want %v", rec.FirstSeen, start)
	}
	if want := start.Add((ticks - 1) * 15 * time.Minute); !rec.LastSeen.Equal(want) {
		t.Errorf("LastSeen = %v, want %v", rec.LastSeen, want)
	}
	if rec.ExecutablePath != "/usr/bin/notepad" {
		t.Errorf("ExecutablePath = %q", rec.ExecutablePath)
	}
}

func TestTrack_FirstObservation(t *testing.T) {
	src := &fakeSource{procs: []Process{{Name: "editor", Visible: true}}}
	tr := newTestTracker(t, src)
	now := time.Now().UTC()
	if err := tr.Track(context.Background(), now); err != nil {
		t.Fatal(err)
	}
	rec := tr.Snapshot()["editor"]
	if rec.TotalMinutesUsed != 0 || rec.LaunchCount != 1 {
		t.Errorf("first observation = %+v, want 0 minutes and launch count 1", rec)
	}
	if !rec.FirstSeen.Equal(now) || !rec.LastSeen.Equal(now) {
		t.Errorf("first/last seen = %v/%v, want %v", rec.FirstSeen, rec.LastSeen, now)
	}
}

func TestTrack_SkipsInvisibleAndExcluded(t *testing.T) {
	src := &fakeSource{procs: []Process{
		{Name: "browser", Visible: true},
		{Name: "daemon", Visible: false},
		{Name: "svchost", Visible: true},
		{Name: "", Visible: true},
	}}
	tr := newTestTracker(t, src, "svc*")
	if err := tr.Track(context.Background(), time.Now()); err != nil {
		t.Fatal(err)
	}
	snap := tr.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("tracked %d apps, want 1: %v", len(snap), snap)
	}
	if _, ok := snap["browser"]; !ok {
		t.Error("browser should be tracked")
	}
}

func TestTrack_SameNameCountsOncePerTick(t *testing.T) {
	src := &fakeSource{procs: []Process{
		{PID: 1, Name: "chrome", Visible: true},
		{PID: 2, Name: "chrome", Visible: true},
		{PID: 3, Name: "chrome", Visible: true},
	}}
	tr := newTestTracker(t, src)
	now := time.Now()
	for i := 0; i < 3; i++ {
		if err := tr.Track(context.Background(), now.Add(time.Duration(i)*15*time.Minute)); err != nil {
			t.Fatal(err)
		}
	}
	if got := tr.Snapshot()["chrome"].TotalMinutesUsed; got != 30 {
		t.Errorf("TotalMinutesUsed = %v, want 30", got)
	}
}

func TestTrack_SourceErrorLeavesMapUnchanged(t *testing.T) {
	src := &fakeSource{procs: []Process{{Name: "app", Visible: true}}}
	tr := newTestTracker(t, src)
	if err := tr.Track(context.Background(), time.Now()); err != nil {
		t.Fatal(err)
	}
	src.err = errors.New("access denied")
	if err := tr.Track(context.Background(), time.Now()); err == nil {
		t.Fatal("expected error from failing source")
	}
	if got := tr.Snapshot()["app"].TotalMinutesUsed; got != 0 {
		t.Errorf("TotalMinutesUsed = %v after failed tick, want 0", got)
	}
}

func TestTrack_RecordsNeverRemoved(t *testing.T) {
	src := &fakeSource{procs: []Process{{Name: "app", Visible: true}}}
	tr := newTestTracker(t, src)
	if err := tr.Track(context.Background(), time.Now()); err != nil {
		t.Fatal(err)
	}
	src.procs = nil
	if err := tr.Track(context.Background(), time.Now()); err != nil {
		t.Fatal(err)
	}
	if _, ok := tr.Snapshot()["app"]; !ok {
		t.Error("record removed after the process exited")
	}
}

func TestSnapshot_IsCopy(t *testing.T) {
	src := &fakeSource{procs: []Process{{Name: "app", Visible: true}}}
	tr := newTestTracker(t, src)
	if err := tr.Track(context.Background(), time.Now()); err != nil {
		t.Fatal(err)
	}
	snap := tr.Snapshot()
	snap["app"] = models.UsageRecord{LaunchCount: 99}
	delete(snap, "app")
	if tr.Snapshot()["app"].LaunchCount != 1 {
		t.Error("mutating a snapshot changed the tracker")
	}
}

func TestRestore_KeepsLiveRecords(t *testing.T) {
	src := &fakeSource{procs: []Process{{Name: "live", Visible: true}}}
	tr := newTestTracker(t, src)
	if err := tr.Track(context.Background(), time.Now()); err != nil {
		t.Fatal(err)
	}
	tr.Restore(map[string]models.UsageRecord{
		"live":     {ApplicationName: "live", LaunchCount: 7},
		"restored": {ApplicationName: "restored", LaunchCount: 1, TotalMinutesUsed: 45},
	})
	snap := tr.Snapshot()
	if snap["live"].LaunchCount != 1 {
		t.Errorf("live record overwritten: %+v", snap["live"])
	}
	if snap["restored"].TotalMinutesUsed != 45 {
		t.Errorf("restored record = %+v", snap["restored"])
	}
}

func TestRestore_FirstSightingAfterRestartNotCredited(t *testing.T) {
	src := &fakeSource{procs: []Process{{Name: "editor", Visible: true}}}
	tr := newTestTracker(t, src)

	lastRun := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	tr.Restore(map[string]models.UsageRecord{
		"editor": {ApplicationName: "editor", FirstSeen: lastRun, LastSeen: lastRun, LaunchCount: 1, TotalMinutesUsed: 30},
	})

	restart := lastRun.Add(72 * time.Hour)
	if err := tr.Track(context.Background(), restart); err != nil {
		t.Fatal(err)
	}
	rec := tr.Snapshot()["editor"]
	if rec.TotalMinutesUsed != 30 {
		t.Errorf("TotalMinutesUsed = %v after first tick since restart, want 30", rec.TotalMinutesUsed)
	}
	if !rec.LastSeen.Equal(restart) {
		t.Errorf("LastSeen = %v, want %v", rec.LastSeen, restart)
	}

	if err := tr.Track(context.Background(), restart.Add(15*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if got := tr.Snapshot()["editor"].TotalMinutesUsed; got != 45 {
		t.Errorf("TotalMinutesUsed = %v after second tick, want 45", got)
	}
}

func TestNewTracker_InvalidPattern(t *testing.T) {
	if _, err := NewTracker(&fakeSource{}, time.Minute, []string{"[unclosed"}, zap.NewNop()); err == nil {
		t.Fatal("expected error for invalid glob")
	}
}

func TestProcessName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"notepad.exe", "notepad"},
		{"WINWORD.EXE", "WINWORD"},
		{"bash", "bash"},
		{".exe", ".exe"},
	}
	for _, tt := range tests {
		if got := processName(tt.in); got != tt.want {
			t.Errorf("processName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
