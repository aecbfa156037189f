package orchestrator

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"hash/crc32"
	"strings"

	"github.com/typesift/typesift/internal/model"
)

// computeHashes digests the file content. Hashing runs before any engine is
// consulted when duplicate skipping is on, so it must not depend on
// detection output.
func computeHashes(data []byte) *model.Hashes {
	return &model.Hashes{
		MD5:    fmt.Sprintf("%x", md5.Sum(data)),
		SHA1:   fmt.Sprintf("%x", sha1.Sum(data)),
		SHA256: fmt.Sprintf("%x", sha256.Sum256(data)),
		CRC32:  fmt.Sprintf("%08x", crc32.ChecksumIEEE(data)),
	}
}

// fileMetadata is the submission-level metadata entry, kept apart from the
// engine-supplied metadata namespaces.
func fileMetadata(filename string, size int64, mediaType string) map[string]any {
	m := map[string]any{
		"filename": filename,
		"size":     size,
	}
	switch {
	case strings.HasPrefix(mediaType, "image/"):
		m["family"] = "image"
	case strings.HasPrefix(mediaType, "audio/"), strings.HasPrefix(mediaType, "video/"):
		m["family"] = "media"
	case mediaType == "application/pdf":
		m["family"] = "document"
	case strings.HasPrefix(mediaType, "text/"):
		m["family"] = "text"
	}
	return m
}

// structureFor is the deep-analysis structure summary.
func structureFor(mediaType string, matched bool) map[string]any {
	return map[string]any{
		"valid":      matched,
		"corrupted":  false,
		"suspicious": false,
		"media_type": mediaType,
	}
}
