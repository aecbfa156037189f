package threat_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/typesift/typesift/internal/model"
	"github.com/typesift/typesift/internal/threat"
)

func TestAssess_Clean(t *testing.T) {
	t.Parallel()

	sec := threat.Assess(model.ScanResult{
		Filename:     "photo.png",
		SizeBytes:    1024,
		DetectedType: "image/png",
		Extension:    "png",
	})
	require.NotNil(t, sec)
	require.Zero(t, sec.MalwareScore)
	require.Equal(t, model.ThreatLow, sec.ThreatLevel)
	require.Empty(t, sec.Anomalies)
	require.Empty(t, sec.Signatures)
}

func TestAssess_ExtensionMismatch(t *testing.T) {
	t.Parallel()

	sec := threat.Assess(model.ScanResult{
		Filename:     "invoice.pdf",
		SizeBytes:    2048,
		DetectedType: "application/zip",
		Extension:    "zip",
	})
	require.InDelta(t, 0.2, sec.MalwareScore, 1e-9)
	require.Equal(t, model.ThreatLow, sec.ThreatLevel)
	require.Contains(t, sec.Anomalies, "Extension mismatch")
}

func TestAssess_ScriptContent(t *testing.T) {
	t.Parallel()

	sec := threat.Assess(model.ScanResult{
		Filename:     "setup.sh",
		SizeBytes:    100,
		DetectedType: "text/x-shellscript",
		Extension:    "sh",
	})
	require.InDelta(t, 0.3, sec.MalwareScore, 1e-9)
	require.Equal(t, model.ThreatMedium, sec.ThreatLevel)
	require.Contains(t, sec.Anomalies, "Executable script content")
	require.Equal(t, 1, sec.Embedded.Scripts)
}

// All three heuristics together cross the medium threshold but stay under
// high: 0.1 + 0.2 + 0.3 = 0.6.
func TestAssess_Accumulates(t *testing.T) {
	t.Parallel()

	sec := threat.Assess(model.ScanResult{
		Filename:     "archive.zip",
		SizeBytes:    200 * 1024 * 1024,
		DetectedType: "application/javascript",
		Extension:    "js",
	})
	require.InDelta(t, 0.6, sec.MalwareScore, 1e-9)
	require.Equal(t, model.ThreatMedium, sec.ThreatLevel)
	require.Len(t, sec.Anomalies, 3)
}

// A missing extension on either side is not a mismatch.
func TestAssess_NoExtensionNoMismatch(t *testing.T) {
	t.Parallel()

	sec := threat.Assess(model.ScanResult{
		Filename:     "README",
		SizeBytes:    10,
		DetectedType: "text/plain",
		Extension:    "txt",
	})
	require.Zero(t, sec.MalwareScore)
}
