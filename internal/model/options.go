package model

import (
	"fmt"
	"time"
)

// Worker pool bounds. Batch concurrency is clamped to this range.
const (
	MinWorkers = 1
	MaxWorkers = 32
)

// ScanOptions configure one submission. Immutable per job.
type ScanOptions struct {
	// Engines restricts the scan to the named engines. Empty means all
	// available ones.
	Engines []string `json:"engines,omitempty"`

	DeepAnalysis       bool `json:"deep_analysis"`
	GenerateHashes     bool `json:"generate_hashes"`
	ExtractMetadata    bool `json:"extract_metadata"`
	ValidateSignatures bool `json:"validate_signatures"`

	// SkipDuplicates reuses the result of an identical file already scanned
	// within the same batch. Forces content hashing before any engine call.
	SkipDuplicates bool `json:"skip_duplicates"`

	TimeoutMs        int64 `json:"timeout_ms"`
	MaxFileSizeBytes int64 `json:"max_file_size_bytes"`
}

// DefaultScanOptions mirror the original service defaults.
func DefaultScanOptions() ScanOptions {
	return ScanOptions{
		DeepAnalysis:       true,
		GenerateHashes:     true,
		ExtractMetadata:    true,
		ValidateSignatures: true,
		TimeoutMs:          30_000,
		MaxFileSizeBytes:   100 * 1024 * 1024,
	}
}

// Timeout returns the per-engine invocation timeout.
func (o ScanOptions) Timeout() time.Duration {
	return time.Duration(o.TimeoutMs) * time.Millisecond
}

// Validate returns ErrInvalidOptions for out-of-range values.
func (o ScanOptions) Validate() error {
	if o.TimeoutMs <= 0 {
		return fmt.Errorf("timeout_ms must be > 0, got %d: %w", o.TimeoutMs, ErrInvalidOptions)
	}
	if o.MaxFileSizeBytes <= 0 {
		return fmt.Errorf("max_file_size_bytes must be > 0, got %d: %w", o.MaxFileSizeBytes, ErrInvalidOptions)
	}
	for _, name := range o.Engines {
		if name == "" {
			return fmt.Errorf("empty engine name: %w", ErrInvalidOptions)
		}
	}
	return nil
}

// ClampWorkers bounds a requested pool size into [MinWorkers, MaxWorkers],
// falling back to def when n is zero or negative.
func ClampWorkers(n, def int) int {
	if n <= 0 {
		n = def
	}
	if n < MinWorkers {
		return MinWorkers
	}
	if n > MaxWorkers {
		return MaxWorkers
	}
	return n
}
