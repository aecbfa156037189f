package engine

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"time"

	"github.com/typesift/typesift/internal/model"
)

const pemConfidence = 0.9

// Pem recognizes PEM encoded cryptographic material. It decodes every PEM
// block found in the payload, leading free text before the first block is
// tolerated.
type Pem struct{}

func NewPem() Pem {
	return Pem{}
}

func (Pem) Name() string { return "pem" }

func (Pem) Version() string { return "1.0" }

func (Pem) Detect(ctx context.Context, data []byte, filename string) (Raw, error) {
	if ctx.Err() != nil {
		return Raw{}, ctx.Err()
	}
	start := time.Now()

	var (
		certs      int
		keys       int
		blockTypes []string
	)
	rest := data
	for {
		p, r := pem.Decode(rest)
		if p == nil {
			break
		}
		blockTypes = append(blockTypes, p.Type)
		switch p.Type {
		case "CERTIFICATE", "TRUSTED CERTIFICATE":
			if cs, err := x509.ParseCertificates(p.Bytes); err == nil {
				certs += len(cs)
			}
		case "PRIVATE KEY", "RSA PRIVATE KEY", "EC PRIVATE KEY", "PUBLIC KEY":
			keys++
		}
		rest = r
	}

	if len(blockTypes) == 0 {
		return Raw{}, model.ErrNoMatch
	}

	return Raw{
		Engine:     "pem",
		Version:    "1.0",
		MediaType:  "application/x-pem-file",
		Extension:  "pem",
		Confidence: pemConfidence,
		ElapsedMs:  time.Since(start).Milliseconds(),
		Metadata: map[string]any{
			"blocks":       len(blockTypes),
			"block_types":  blockTypes,
			"certificates": certs,
			"keys":         keys,
		},
	}, nil
}
