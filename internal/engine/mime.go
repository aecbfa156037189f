package engine

import (
	"context"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/typesift/typesift/internal/model"
)

// mimeConfidence is what the engine claims for a concrete mimetype match.
// The library does not score its answers, a non-fallback match is treated as
// a strong one.
const (
	mimeConfidence  = 0.95
	mimetypeVersion = "1.4"
)

// Mime detects content types with the mimetype library.
type Mime struct{}

func NewMime() Mime {
	return Mime{}
}

func (Mime) Name() string { return "mime" }

func (Mime) Version() string { return mimetypeVersion }

func (Mime) Detect(ctx context.Context, data []byte, filename string) (Raw, error) {
	if ctx.Err() != nil {
		return Raw{}, ctx.Err()
	}
	start := time.Now()
	mt := mimetype.Detect(data)

	mediaType := mt.String()
	if mediaType == "" || mediaType == "application/octet-stream" {
		// the library fallback, nothing was recognized
		return Raw{}, model.ErrNoMatch
	}

	return Raw{
		Engine:     "mime",
		Version:    mimetypeVersion,
		MediaType:  baseMediaType(mediaType),
		Extension:  strings.TrimPrefix(mt.Extension(), "."),
		Confidence: mimeConfidence,
		ElapsedMs:  time.Since(start).Milliseconds(),
	}, nil
}

// baseMediaType strips parameters like "; charset=utf-8".
func baseMediaType(mt string) string {
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		return strings.TrimSpace(mt[:i])
	}
	return mt
}
