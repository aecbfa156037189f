// Package normalize maps heterogeneous engine responses onto the canonical
// scan result. This is the validation boundary for the loosely typed data
// engines return, nothing past this package trusts raw engine output.
package normalize

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/typesift/typesift/internal/engine"
	"github.com/typesift/typesift/internal/model"
)

// Fallbacks used when no engine recognized the content.
const (
	UnknownType = "unknown"
	UnknownMIME = "application/octet-stream"
)

// Normalize builds a ScanResult from the raw responses of the consulted
// engines. enginesUsed lists every engine that was consulted, matched or not,
// and is recorded as-is. The highest-confidence candidate wins, ties break on
// lexicographic engine name so results stay reproducible. Confidence values
// are clamped into [0,1] here, engines are not trusted on that.
//
// Apart from ID and Timestamp the output depends only on the inputs.
func Normalize(filename string, size int64, enginesUsed []string, raws []engine.Raw) model.ScanResult {
	res := model.ScanResult{
		ID:           uuid.NewString(),
		Filename:     filename,
		SizeBytes:    size,
		DetectedType: UnknownType,
		MIMEType:     UnknownMIME,
		EnginesUsed:  append([]string(nil), enginesUsed...),
		Timestamp:    time.Now().UTC(),
	}

	if len(raws) == 0 {
		return res
	}

	ordered := append([]engine.Raw(nil), raws...)
	sort.SliceStable(ordered, func(i, j int) bool {
		ci, cj := clamp(ordered[i].Confidence), clamp(ordered[j].Confidence)
		if ci != cj {
			return ci > cj
		}
		return ordered[i].Engine < ordered[j].Engine
	})

	best := ordered[0]
	res.DetectedType = best.MediaType
	res.MIMEType = best.MediaType
	res.Confidence = clamp(best.Confidence)
	res.Extension = best.Extension
	if res.DetectedType == "" {
		res.DetectedType = UnknownType
		res.MIMEType = UnknownMIME
	}

	var durationMs int64
	for _, raw := range ordered {
		durationMs += raw.ElapsedMs
	}
	res.ScanDurationMs = durationMs

	res.Hashes = mergeHashes(ordered)
	res.Metadata = mergeMetadata(ordered)

	return res
}

// mergeHashes collects digests supplied by the engines. Nothing is computed
// here, absent digests stay absent.
func mergeHashes(raws []engine.Raw) *model.Hashes {
	var h model.Hashes
	var any bool
	for _, raw := range raws {
		if raw.Hashes == nil {
			continue
		}
		if v := raw.Hashes["md5"]; v != "" && h.MD5 == "" {
			h.MD5, any = v, true
		}
		if v := raw.Hashes["sha1"]; v != "" && h.SHA1 == "" {
			h.SHA1, any = v, true
		}
		if v := raw.Hashes["sha256"]; v != "" && h.SHA256 == "" {
			h.SHA256, any = v, true
		}
		if v := raw.Hashes["crc32"]; v != "" && h.CRC32 == "" {
			h.CRC32, any = v, true
		}
	}
	if !any {
		return nil
	}
	return &h
}

// mergeMetadata namespaces engine specific metadata under the engine name,
// so engines cannot clobber each other.
func mergeMetadata(raws []engine.Raw) map[string]any {
	var out map[string]any
	for _, raw := range raws {
		if len(raw.Metadata) == 0 {
			continue
		}
		if out == nil {
			out = make(map[string]any)
		}
		out[raw.Engine] = raw.Metadata
	}
	return out
}

func clamp(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

// FailureMarker builds the result recorded in place of a successful scan.
// The consulted engines are preserved when known.
func FailureMarker(filename string, size int64, enginesUsed []string, err error) model.ScanResult {
	return model.ScanResult{
		ID:           uuid.NewString(),
		Filename:     filename,
		SizeBytes:    size,
		DetectedType: UnknownType,
		MIMEType:     UnknownMIME,
		EnginesUsed:  append([]string(nil), enginesUsed...),
		Timestamp:    time.Now().UTC(),
		Error: &model.ScanError{
			Kind:    model.ErrorKind(err),
			Message: err.Error(),
		},
	}
}
