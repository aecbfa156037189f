package model

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
)

// ConfigErrorDetail is a single humanized CUE validation error.
type ConfigErrorDetail struct {
	Path    string // e.g. scan.workers
	Code    string // missing_required | unknown_field | type_mismatch | conflict | validation_error
	Message string
	Line    int
	Column  int
	Raw     string
}

func (c ConfigErrorDetail) Attr(name string) slog.Attr {
	return slog.GroupAttrs(
		name,
		slog.String("code", c.Code),
		slog.String("path", c.Path),
		slog.String("message", c.Message),
		slog.Int("line", c.Line),
		slog.Int("column", c.Column),
	)
}

var (
	reIncomplete = regexp.MustCompile(`(?i)incomplete value`)
	reNotAllowed = regexp.MustCompile(`(?i)not allowed|unknown field`)
	reConflict   = regexp.MustCompile(`(?i)conflicting values|cannot unify|incompatible`)
)

// ConfigErrDetails turns a CUE validation error into per-field details
// suitable for logging. Non-CUE errors produce a single generic detail.
func ConfigErrDetails(err error) []ConfigErrorDetail {
	if err == nil {
		return nil
	}

	var out []ConfigErrorDetail
	for _, e := range cueerrors.Errors(err) {
		raw, _ := e.Msg()
		path := normalizePath(e.Path())
		code, msg := classify(raw, path)

		detail := ConfigErrorDetail{
			Path:    path,
			Code:    code,
			Message: msg,
			Raw:     err.Error(),
		}
		for _, p := range cueerrors.Positions(e) {
			if p.Filename() == "" {
				continue
			}
			detail.Line = p.Line()
			detail.Column = p.Column()
			break
		}
		out = append(out, detail)
	}

	if out == nil {
		out = []ConfigErrorDetail{{
			Code:    "validation_error",
			Message: err.Error(),
			Raw:     err.Error(),
		}}
	}
	return out
}

func normalizePath(p []string) string {
	if len(p) == 0 {
		return ""
	}
	// drop the leading #Config definition
	if strings.HasPrefix(p[0], "#") {
		p = p[1:]
	}
	return strings.Join(p, ".")
}

func classify(raw, path string) (code, msg string) {
	switch {
	case reNotAllowed.MatchString(raw):
		return "unknown_field", fmt.Sprintf("Field %s is not allowed", last(path))
	case reIncomplete.MatchString(raw):
		return "missing_required", fmt.Sprintf("Field %s is required", last(path))
	case reConflict.MatchString(raw):
		return "conflict", fmt.Sprintf("Conflicting values for %s", last(path))
	default:
		return "validation_error", raw
	}
}

func last(p string) string {
	if i := strings.LastIndexByte(p, '.'); i >= 0 {
		return p[i+1:]
	}
	return p
}
