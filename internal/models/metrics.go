// Package models defines the data structures exchanged with the orchestration
// service. These structures are serialized to JSON for transmission to the API.
package models

import (
	"encoding/json"
	"sort"
	"time"
)

// UsageMetrics is a point-in-time sample of application usage and system performance.
// ApplicationUsage is keyed by process name; it is sent as a list ordered by name.
type UsageMetrics struct {
	AgentID           string                 `json:"agent_id"`
	Timestamp         time.Time              `json:"timestamp"`
	ApplicationUsage  map[string]UsageRecord `json:"-"`
	FileAccess        []FileAccess           `json:"file_access"`
	SystemPerformance SystemPerformance      `json:"system_performance"`
}

// UsageRecord holds the accumulated counters for one process name.
// TotalMinutesUsed counts sampling intervals in which the process was present,
// not measured foreground time.
type UsageRecord struct {
	ApplicationName  string    `json:"application_name"`
	ExecutablePath   string    `json:"executable_path"`
	FirstSeen        time.Time `json:"first_seen"`
	LastSeen         time.Time `json:"last_seen"`
	TotalMinutesUsed float64   `json:"total_minutes_used"`
	LaunchCount      int       `json:"launch_count"`
}

// FileAccess represents a recently accessed file under a tracked user-data root.
type FileAccess struct {
	FilePath     string    `json:"file_path"`
	LastAccessed time.Time `json:"last_accessed"`
	AccessType   string    `json:"access_type"`
	ContentType  string    `json:"content_type,omitempty"`
}

// SystemPerformance holds one utilisation sample. Each field is zero when
// the corresponding reading failed.
type SystemPerformance struct {
	CPUUsagePercent    float64 `json:"cpu_usage_percent"`
	MemoryUsagePercent float64 `json:"memory_usage_percent"`
	DiskUsagePercent   float64 `json:"disk_usage_percent"`
}

// UsageList returns the usage records ordered by application name.
func (m UsageMetrics) UsageList() []UsageRecord {
	list := make([]UsageRecord, 0, len(m.ApplicationUsage))
	for _, rec := range m.ApplicationUsage {
		list = append(list, rec)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ApplicationName < list[j].ApplicationName
	})
	return list
}

// metricsWire is the JSON shape accepted by POST /api/v1/agents/metrics.
type metricsWire struct {
	AgentID           string            `json:"agent_id"`
	Timestamp         time.Time         `json:"timestamp"`
	ApplicationUsage  []UsageRecord     `json:"application_usage"`
	FileAccess        []FileAccess      `json:"file_access"`
	SystemPerformance SystemPerformance `json:"system_performance"`
}

// MarshalJSON flattens the usage map into an ordered list.
func (m UsageMetrics) MarshalJSON() ([]byte, error) {
	files := m.FileAccess
	if files == nil {
		files = []FileAccess{}
	}
	return json.Marshal(metricsWire{
		AgentID:           m.AgentID,
		Timestamp:         m.Timestamp,
		ApplicationUsage:  m.UsageList(),
		FileAccess:        files,
		SystemPerformance: m.SystemPerformance,
	})
}

// UnmarshalJSON rebuilds the usage map from the wire list.
func (m *UsageMetrics) UnmarshalJSON(data []byte) error {
	var w metricsWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.AgentID = w.AgentID
	m.Timestamp = w.Timestamp
	m.FileAccess = w.FileAccess
	m.SystemPerformance = w.SystemPerformance
	m.ApplicationUsage = make(map[string]UsageRecord, len(w.ApplicationUsage))
	for _, rec := range w.ApplicationUsage {
		m.ApplicationUsage[rec.ApplicationName] = rec
	}
	return nil
}
