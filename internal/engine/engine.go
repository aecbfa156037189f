// Package engine defines the detection engine capability and the engines
// shipped with the service. An engine classifies file content and returns a
// loosely structured response which the normalizer turns into the canonical
// scan result.
package engine

import (
	"context"
)

// Raw is the unnormalized response of a single engine invocation. Engines
// differ in what they can report, the open Metadata mapping carries anything
// engine specific. Validation happens at the normalizer boundary.
type Raw struct {
	Engine     string            `json:"engine"`
	Version    string            `json:"version"`
	MediaType  string            `json:"media_type"`
	Extension  string            `json:"extension,omitempty"`
	Confidence float64           `json:"confidence"`
	ElapsedMs  int64             `json:"elapsed_ms"`
	Hashes     map[string]string `json:"hashes,omitempty"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
}

// Engine is an opaque detection capability. Implementations must be safe for
// concurrent use, the invoker calls them from multiple workers.
//
// Detect returns model.ErrNoMatch when the engine recognizes nothing, any
// other error means the engine itself failed.
type Engine interface {
	Name() string
	Version() string
	Detect(ctx context.Context, data []byte, filename string) (Raw, error)
}

// Prober is implemented by engines whose availability can change at runtime,
// e.g. engines backed by an external binary.
type Prober interface {
	Probe(ctx context.Context) error
}
