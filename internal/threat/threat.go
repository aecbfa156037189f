// Package threat derives a coarse risk assessment from a normalized scan
// result. Detection engines only classify content, they do not score risk,
// so the assessment is a separate downstream step run by the orchestrator.
package threat

import (
	"path/filepath"
	"strings"

	"github.com/typesift/typesift/internal/model"
)

// Score contributions of the individual heuristics.
const (
	largeFileBytes = 100 * 1024 * 1024
	largeFileScore = 0.1
	mismatchScore  = 0.2
	scriptScore    = 0.3
)

// Assess builds the security sub-record for a completed detection. The
// malware score accumulates over the triggered heuristics and the threat
// level buckets it through the fixed thresholds.
func Assess(res model.ScanResult) *model.Security {
	sec := &model.Security{
		Signatures: []string{},
		Anomalies:  []string{},
	}

	if res.SizeBytes > largeFileBytes {
		sec.Anomalies = append(sec.Anomalies, "Large file size")
		sec.MalwareScore += largeFileScore
	}

	if ext := fileExtension(res.Filename); ext != "" && res.Extension != "" && ext != res.Extension {
		sec.Anomalies = append(sec.Anomalies, "Extension mismatch")
		sec.MalwareScore += mismatchScore
	}

	if isScriptType(res.DetectedType) {
		sec.Anomalies = append(sec.Anomalies, "Executable script content")
		sec.MalwareScore += scriptScore
		sec.Embedded.Scripts = 1
	}

	sec.ThreatLevel = model.ThreatLevel(sec.MalwareScore)
	return sec
}

func fileExtension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

func isScriptType(mediaType string) bool {
	switch mediaType {
	case "text/x-shellscript", "text/x-powershell", "application/javascript":
		return true
	}
	return strings.HasPrefix(mediaType, "text/x-script")
}
