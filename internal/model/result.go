package model

import (
	"time"
)

// EngineStatus values used by the registry.
const (
	EngineAvailable   = "available"
	EngineUnavailable = "unavailable"
	EngineDegraded    = "degraded"
)

// Engine describes a registered detection engine. Immutable once registered,
// the registry may only refresh Status.
type Engine struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

// Threat levels derived from the malware score. The thresholds are a
// contract, see ThreatLevel.
const (
	ThreatLow    = "low"
	ThreatMedium = "medium"
	ThreatHigh   = "high"
)

// ThreatLevel buckets a malware score:
// score < 0.3 is low, 0.3 <= score < 0.7 is medium, score >= 0.7 is high.
func ThreatLevel(malwareScore float64) string {
	switch {
	case malwareScore >= 0.7:
		return ThreatHigh
	case malwareScore >= 0.3:
		return ThreatMedium
	default:
		return ThreatLow
	}
}

// Confidence buckets used by downstream consumers. Reference only, never
// stored on the result.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// ConfidenceBucket classifies a detection confidence:
// >= 0.9 high, 0.7 <= c < 0.9 medium, < 0.7 low.
func ConfidenceBucket(confidence float64) string {
	switch {
	case confidence >= 0.9:
		return ConfidenceHigh
	case confidence >= 0.7:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Hashes are content digests of the scanned file.
type Hashes struct {
	MD5    string `json:"md5"`
	SHA1   string `json:"sha1"`
	SHA256 string `json:"sha256"`
	CRC32  string `json:"crc32"`
}

// Embedded counts objects found inside the file during deep analysis.
type Embedded struct {
	Files   int `json:"files"`
	Scripts int `json:"scripts"`
	Forms   int `json:"forms"`
}

// Security is the threat assessment sub-record.
type Security struct {
	MalwareScore float64  `json:"malware_score"`
	ThreatLevel  string   `json:"threat_level"`
	Signatures   []string `json:"signatures"`
	Anomalies    []string `json:"anomalies"`
	Embedded     Embedded `json:"embedded"`
}

// ScanError is the failure marker recorded in place of a successful result.
type ScanError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ScanResult is the canonical output of one file scan. It is immutable after
// creation and appended to the history exactly once. Optional sub-records are
// nil when the corresponding step did not run, so "not computed" stays
// distinguishable from "computed empty".
type ScanResult struct {
	ID             string         `json:"id"`
	Filename       string         `json:"filename"`
	SizeBytes      int64          `json:"size_bytes"`
	DetectedType   string         `json:"detected_type"`
	MIMEType       string         `json:"mime_type"`
	Confidence     float64        `json:"confidence"`
	Extension      string         `json:"extension,omitempty"`
	EnginesUsed    []string       `json:"engines_used"`
	ScanDurationMs int64          `json:"scan_duration_ms"`
	Timestamp      time.Time      `json:"timestamp"`
	Hashes         *Hashes        `json:"hashes,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Structure      map[string]any `json:"structure,omitempty"`
	Security       *Security      `json:"security,omitempty"`
	Error          *ScanError     `json:"error,omitempty"`
}

// Failed reports whether the result is a failure marker.
func (r ScanResult) Failed() bool {
	return r.Error != nil
}

// Batch job states. A batch walks queued -> running -> complete/failed,
// with paused and cancelled reachable from running.
const (
	BatchQueued    = "queued"
	BatchRunning   = "running"
	BatchPaused    = "paused"
	BatchComplete  = "complete"
	BatchFailed    = "failed"
	BatchCancelled = "cancelled"
)

// BatchJob is a snapshot of one batch scan. Results appear in completion
// order, not submission order. Completed and Failed only ever grow until the
// batch reaches a terminal state.
type BatchJob struct {
	BatchID    string       `json:"batch_id"`
	TotalFiles int          `json:"total_files"`
	Completed  int          `json:"completed"`
	Failed     int          `json:"failed"`
	Skipped    int          `json:"skipped,omitempty"`
	Status     string       `json:"status"`
	Results    []ScanResult `json:"results"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}

// EngineStats is the per-engine slice of the system metrics.
type EngineStats struct {
	ScansCompleted int64      `json:"scans_completed"`
	AvgTimeMs      float64    `json:"avg_time_ms"`
	LastUsed       *time.Time `json:"last_used,omitempty"`
}

// SystemMetrics is a point-in-time snapshot, recomputed on each request and
// never persisted.
type SystemMetrics struct {
	CPUUsage      float64                `json:"cpu_usage"`
	MemoryUsage   float64                `json:"memory_usage"`
	MemoryTotal   uint64                 `json:"memory_total"`
	MemoryUsed    uint64                 `json:"memory_used"`
	DiskUsage     float64                `json:"disk_usage"`
	DiskTotal     uint64                 `json:"disk_total"`
	DiskUsed      uint64                 `json:"disk_used"`
	ActiveWorkers int                    `json:"active_workers"`
	TotalScans    int64                  `json:"total_scans"`
	EngineStats   map[string]EngineStats `json:"engine_stats"`
	Timestamp     time.Time              `json:"timestamp"`
}
