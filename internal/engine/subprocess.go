package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/typesift/typesift/internal/model"
)

// Subprocess adapts an external binary to the Engine interface. The protocol
// is intentionally small: file bytes on stdin, one JSON object matching Raw
// on stdout, diagnostics on stderr, exit code 0 on success and 3 for
// "nothing recognized".
type Subprocess struct {
	name    string
	version string
	path    string
	args    []string
}

// noMatchExitCode lets an external engine report a clean no-match without
// being treated as failed.
const noMatchExitCode = 3

func NewSubprocess(name, version, path string, args ...string) *Subprocess {
	return &Subprocess{
		name:    name,
		version: version,
		path:    path,
		args:    args,
	}
}

func (s *Subprocess) Name() string { return s.name }

func (s *Subprocess) Version() string { return s.version }

// Probe checks that the engine binary can be located. Bare names are
// resolved through PATH, paths are checked directly.
func (s *Subprocess) Probe(_ context.Context) error {
	if _, err := exec.LookPath(s.path); err != nil {
		return fmt.Errorf("engine %s binary: %w", s.name, err)
	}
	return nil
}

// Detect runs the engine binary under ctx. Cancelling ctx kills the process,
// there is no way for an invocation to outlive its deadline.
func (s *Subprocess) Detect(ctx context.Context, data []byte, filename string) (Raw, error) {
	start := time.Now()

	args := append(append([]string(nil), s.args...), filename)
	cmd := exec.CommandContext(ctx, s.path, args...)
	cmd.Stdin = bytes.NewReader(data)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// give the process a moment to exit after the kill signal
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if ctx.Err() != nil {
		return Raw{}, ctx.Err()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == noMatchExitCode {
			return Raw{}, model.ErrNoMatch
		}
		slog.DebugContext(ctx, "engine process failed",
			"engine", s.name, "error", err, "stderr", trimDiag(stderr.String()))
		return Raw{}, fmt.Errorf("engine %s: %v: %s", s.name, err, trimDiag(stderr.String()))
	}

	var raw Raw
	if err := json.Unmarshal(stdout.Bytes(), &raw); err != nil {
		return Raw{}, fmt.Errorf("engine %s: decoding response: %w", s.name, err)
	}
	if raw.Engine == "" {
		raw.Engine = s.name
	}
	if raw.Version == "" {
		raw.Version = s.version
	}
	if raw.ElapsedMs == 0 {
		raw.ElapsedMs = time.Since(start).Milliseconds()
	}
	return raw, nil
}

// trimDiag bounds the stderr text carried inside errors.
func trimDiag(s string) string {
	const max = 512
	s = strings.TrimSpace(s)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
