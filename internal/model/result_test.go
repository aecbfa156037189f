package model_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/typesift/typesift/internal/model"
)

func TestThreatLevel(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		score float64
		level string
	}{
		{0, model.ThreatLow},
		{0.29, model.ThreatLow},
		{0.3, model.ThreatMedium},
		{0.69, model.ThreatMedium},
		{0.7, model.ThreatHigh},
		{1, model.ThreatHigh},
	}

	for _, tt := range testCases {
		require.Equal(t, tt.level, model.ThreatLevel(tt.score), "score %v", tt.score)
	}
}

func TestConfidenceBucket(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		confidence float64
		bucket     string
	}{
		{0, model.ConfidenceLow},
		{0.69, model.ConfidenceLow},
		{0.7, model.ConfidenceMedium},
		{0.89, model.ConfidenceMedium},
		{0.9, model.ConfidenceHigh},
		{1, model.ConfidenceHigh},
	}

	for _, tt := range testCases {
		require.Equal(t, tt.bucket, model.ConfidenceBucket(tt.confidence), "confidence %v", tt.confidence)
	}
}

func TestScanResult_Failed(t *testing.T) {
	t.Parallel()

	ok := model.ScanResult{ID: "a"}
	require.False(t, ok.Failed())

	failed := model.ScanResult{ID: "b", Error: &model.ScanError{Kind: "EngineFailure", Message: "boom"}}
	require.True(t, failed.Failed())
}
