package model

import (
	"errors"
)

var (
	// ErrFileTooLarge is returned before any engine is consulted when the
	// submitted file exceeds ScanOptions.MaxFileSizeBytes.
	ErrFileTooLarge = errors.New("file too large")

	// ErrEngineTimeout is returned when an engine did not answer within
	// ScanOptions.Timeout. The invocation is cancelled, never left running.
	ErrEngineTimeout = errors.New("engine timeout")

	// ErrEngineFailure is returned when an engine ran but reported an error
	// (non-zero exit, malformed output). Distinct from a low-confidence result.
	ErrEngineFailure = errors.New("engine failure")

	// ErrRegistryUnavailable means engine discovery itself could not run,
	// which is different from zero engines being configured.
	ErrRegistryUnavailable = errors.New("engine registry unavailable")

	// ErrNotFound reports an unknown job or result id.
	ErrNotFound = errors.New("not found")

	// ErrInvalidOptions reports malformed ScanOptions.
	ErrInvalidOptions = errors.New("invalid scan options")

	// ErrStorageWrite reports a failed history append.
	ErrStorageWrite = errors.New("storage write failure")

	// ErrSkipped marks files left in the queue when a batch is cancelled.
	// Skipped is not failed.
	ErrSkipped = errors.New("skipped")

	// ErrNoMatch is reported by an engine which found nothing it recognizes.
	ErrNoMatch = errors.New("no match")
)

// ErrorKind maps a scan error onto the wire-level kind string used in
// failure markers and API error payloads.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrFileTooLarge):
		return "FileTooLarge"
	case errors.Is(err, ErrEngineTimeout):
		return "EngineTimeout"
	case errors.Is(err, ErrEngineFailure):
		return "EngineFailure"
	case errors.Is(err, ErrRegistryUnavailable):
		return "EngineRegistryUnavailable"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrInvalidOptions):
		return "InvalidOptions"
	case errors.Is(err, ErrStorageWrite):
		return "StorageWriteFailure"
	case errors.Is(err, ErrSkipped):
		return "Skipped"
	default:
		return "Internal"
	}
}
