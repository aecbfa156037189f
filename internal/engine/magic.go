package engine

import (
	"bytes"
	"context"
	"time"

	"github.com/typesift/typesift/internal/model"
)

// magicConfidence is reported for a header signature hit. A byte-exact
// header match leaves very little room for doubt.
const magicConfidence = 0.99

type signature struct {
	prefix    []byte
	mediaType string
	extension string
}

// File header signatures, most specific first for shared prefixes
// (e.g. GIF87a before the bare RIFF fallback ordering does not matter here
// because prefixes are disjoint).
var fileSignatures = []signature{
	{[]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, "image/png", "png"},
	{[]byte{0xFF, 0xD8, 0xFF}, "image/jpeg", "jpg"},
	{[]byte("GIF87a"), "image/gif", "gif"},
	{[]byte("GIF89a"), "image/gif", "gif"},
	{[]byte("%PDF"), "application/pdf", "pdf"},
	{[]byte("PK\x03\x04"), "application/zip", "zip"},
	{[]byte("ID3"), "audio/mpeg", "mp3"},
	{[]byte("OggS"), "application/ogg", "ogx"},
	{[]byte("fLaC"), "audio/flac", "flac"},
	{[]byte("RIFF"), "audio/wav", "wav"},
	{[]byte{0x1f, 0x8b}, "application/gzip", "gz"},
	{[]byte("BZh"), "application/x-bzip", "bz2"},
	{[]byte("7z\xBC\xAF\x27\x1C"), "application/x-7z-compressed", "7z"},
	{[]byte{0xFD, '7', 'z', 'X', 'Z', 0x00}, "application/x-xz", "xz"},
	{[]byte("Rar!"), "application/vnd.rar", "rar"},
	{[]byte("SQLite format 3\x00"), "application/vnd.sqlite3", "sqlite"},
	{[]byte("BM"), "image/bmp", "bmp"},
	{[]byte{0x00, 0x00, 0x01, 0x00}, "image/x-icon", "ico"},
}

// Shebang and opener patterns for scripting languages.
var langSignatures = []signature{
	{[]byte("#!/usr/bin/env python"), "text/x-python", "py"},
	{[]byte("#!/usr/bin/python"), "text/x-python", "py"},
	{[]byte("#!/usr/bin/env php"), "text/x-php", "php"},
	{[]byte("<?php"), "text/x-php", "php"},
	{[]byte("#!/usr/bin/env bash"), "text/x-shellscript", "sh"},
	{[]byte("#!/bin/bash"), "text/x-shellscript", "sh"},
	{[]byte("#!/usr/bin/env sh"), "text/x-shellscript", "sh"},
	{[]byte("#!/usr/bin/env node"), "application/javascript", "js"},
	{[]byte("#!/usr/bin/env perl"), "text/x-perl", "pl"},
	{[]byte("#!/usr/bin/env ruby"), "text/x-ruby", "rb"},
	{[]byte("#!/usr/bin/env powershell"), "text/x-powershell", "ps1"},
}

// Magic detects types from well known file header bytes.
type Magic struct{}

func NewMagic() Magic {
	return Magic{}
}

func (Magic) Name() string { return "magic" }

func (Magic) Version() string { return "1.0" }

func (Magic) Detect(ctx context.Context, data []byte, filename string) (Raw, error) {
	if ctx.Err() != nil {
		return Raw{}, ctx.Err()
	}
	start := time.Now()
	for _, sigs := range [][]signature{fileSignatures, langSignatures} {
		for _, s := range sigs {
			if bytes.HasPrefix(data, s.prefix) {
				return Raw{
					Engine:     "magic",
					Version:    "1.0",
					MediaType:  s.mediaType,
					Extension:  s.extension,
					Confidence: magicConfidence,
					ElapsedMs:  time.Since(start).Milliseconds(),
				}, nil
			}
		}
	}
	return Raw{}, model.ErrNoMatch
}
