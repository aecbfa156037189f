package engine_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/typesift/typesift/internal/engine"
)

func TestMime_Detect(t *testing.T) {
	t.Parallel()

	eng := engine.NewMime()
	require.Equal(t, "mime", eng.Name())

	raw, err := eng.Detect(t.Context(), []byte("%PDF-1.7\n%\xE2\xE3\xCF\xD3\n"), "doc.pdf")
	require.NoError(t, err)
	require.Equal(t, "application/pdf", raw.MediaType)
	require.Equal(t, "pdf", raw.Extension)
	require.InDelta(t, 0.95, raw.Confidence, 1e-9)
}

// Media type parameters like charset are stripped from the answer.
func TestMime_StripsParameters(t *testing.T) {
	t.Parallel()

	eng := engine.NewMime()
	raw, err := eng.Detect(t.Context(), []byte("hello, plain text\n"), "notes.txt")
	require.NoError(t, err)
	require.Equal(t, "text/plain", raw.MediaType)
	require.NotContains(t, raw.MediaType, ";")
}
