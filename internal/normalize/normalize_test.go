package normalize_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/typesift/typesift/internal/engine"
	"github.com/typesift/typesift/internal/model"
	"github.com/typesift/typesift/internal/normalize"
)

func TestNormalize_BestCandidateWins(t *testing.T) {
	t.Parallel()

	raws := []engine.Raw{
		{Engine: "mime", MediaType: "text/plain", Extension: "txt", Confidence: 0.95, ElapsedMs: 2},
		{Engine: "magic", MediaType: "image/png", Extension: "png", Confidence: 0.99, ElapsedMs: 1},
	}

	res := normalize.Normalize("photo.png", 1024, []string{"magic", "mime", "pem"}, raws)
	require.NotEmpty(t, res.ID)
	require.Equal(t, "photo.png", res.Filename)
	require.EqualValues(t, 1024, res.SizeBytes)
	require.Equal(t, "image/png", res.DetectedType)
	require.Equal(t, "image/png", res.MIMEType)
	require.Equal(t, "png", res.Extension)
	require.InDelta(t, 0.99, res.Confidence, 1e-9)
	// every consulted engine is recorded, matched or not
	require.Equal(t, []string{"magic", "mime", "pem"}, res.EnginesUsed)
	require.EqualValues(t, 3, res.ScanDurationMs)
	require.False(t, res.Failed())
}

func TestNormalize_TieBreaksOnEngineName(t *testing.T) {
	t.Parallel()

	raws := []engine.Raw{
		{Engine: "zeta", MediaType: "application/zip", Confidence: 0.9},
		{Engine: "alpha", MediaType: "application/gzip", Confidence: 0.9},
	}

	res := normalize.Normalize("a.bin", 1, []string{"alpha", "zeta"}, raws)
	require.Equal(t, "application/gzip", res.DetectedType)

	// same inputs in the opposite order give the same answer
	res2 := normalize.Normalize("a.bin", 1, []string{"alpha", "zeta"}, []engine.Raw{raws[1], raws[0]})
	require.Equal(t, res.DetectedType, res2.DetectedType)
	require.Equal(t, res.Confidence, res2.Confidence)
}

// Re-running on the same raw outputs reproduces the result except for the
// generated identity.
func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()

	raws := []engine.Raw{
		{Engine: "mime", MediaType: "text/plain", Extension: "txt", Confidence: 0.95, ElapsedMs: 2,
			Hashes: map[string]string{"sha256": "abc"}, Metadata: map[string]any{"k": "v"}},
		{Engine: "magic", MediaType: "image/png", Extension: "png", Confidence: 0.99, ElapsedMs: 1},
	}

	a := normalize.Normalize("f.png", 10, []string{"magic", "mime"}, raws)
	b := normalize.Normalize("f.png", 10, []string{"magic", "mime"}, raws)
	require.NotEqual(t, a.ID, b.ID)

	a.ID, b.ID = "", ""
	a.Timestamp, b.Timestamp = time.Time{}, time.Time{}
	require.Equal(t, a, b)
}

func TestNormalize_ClampsConfidence(t *testing.T) {
	t.Parallel()

	raws := []engine.Raw{
		{Engine: "wild", MediaType: "application/pdf", Confidence: 40.0},
	}
	res := normalize.Normalize("doc.pdf", 10, []string{"wild"}, raws)
	require.InDelta(t, 1.0, res.Confidence, 1e-9)

	raws[0].Confidence = -3
	res = normalize.Normalize("doc.pdf", 10, []string{"wild"}, raws)
	require.InDelta(t, 0.0, res.Confidence, 1e-9)
}

func TestNormalize_NoMatches(t *testing.T) {
	t.Parallel()

	res := normalize.Normalize("mystery.bin", 42, []string{"magic", "mime"}, nil)
	require.Equal(t, normalize.UnknownType, res.DetectedType)
	require.Equal(t, normalize.UnknownMIME, res.MIMEType)
	require.Zero(t, res.Confidence)
	require.Equal(t, []string{"magic", "mime"}, res.EnginesUsed)
	require.False(t, res.Failed())
	require.Nil(t, res.Hashes)
	require.Nil(t, res.Metadata)
}

func TestNormalize_MergesHashesAndMetadata(t *testing.T) {
	t.Parallel()

	raws := []engine.Raw{
		{
			Engine:     "exif",
			MediaType:  "image/jpeg",
			Confidence: 0.8,
			Hashes:     map[string]string{"md5": "aaa", "sha256": "bbb"},
			Metadata:   map[string]any{"camera": "X100"},
		},
		{
			Engine:     "magic",
			MediaType:  "image/jpeg",
			Confidence: 0.99,
			Hashes:     map[string]string{"md5": "should-not-clobber", "sha1": "ccc"},
		},
	}

	res := normalize.Normalize("img.jpg", 100, []string{"exif", "magic"}, raws)
	require.NotNil(t, res.Hashes)
	// highest confidence candidate is merged first
	require.Equal(t, "should-not-clobber", res.Hashes.MD5)
	require.Equal(t, "ccc", res.Hashes.SHA1)
	require.Equal(t, "bbb", res.Hashes.SHA256)
	require.Empty(t, res.Hashes.CRC32)

	require.Equal(t, map[string]any{"camera": "X100"}, res.Metadata["exif"])
	require.NotContains(t, res.Metadata, "magic")
}

func TestFailureMarker(t *testing.T) {
	t.Parallel()

	res := normalize.FailureMarker("bad.bin", 7, []string{"magic"}, model.ErrEngineTimeout)
	require.True(t, res.Failed())
	require.Equal(t, "EngineTimeout", res.Error.Kind)
	require.Equal(t, model.ErrEngineTimeout.Error(), res.Error.Message)
	require.Equal(t, normalize.UnknownType, res.DetectedType)
	require.Equal(t, []string{"magic"}, res.EnginesUsed)
	require.NotEmpty(t, res.ID)
}
