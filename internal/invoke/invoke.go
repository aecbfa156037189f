// Package invoke runs detection engines against a single file with strict
// timeout and size discipline.
package invoke

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/typesift/typesift/internal/engine"
	"github.com/typesift/typesift/internal/log"
	"github.com/typesift/typesift/internal/metrics"
	"github.com/typesift/typesift/internal/model"
)

// Invoker calls engines on behalf of the orchestrator. It holds no per-file
// state and is safe for concurrent use.
type Invoker struct {
	recorder *metrics.Recorder
}

func New(recorder *metrics.Recorder) *Invoker {
	return &Invoker{recorder: recorder}
}

// Invoke runs one engine against one file. The options timeout is enforced
// via context, on expiry the invocation is cancelled and ErrEngineTimeout
// returned. model.ErrNoMatch passes through untouched, every other engine
// error is reported as ErrEngineFailure with the diagnostic preserved.
func (inv *Invoker) Invoke(ctx context.Context, eng engine.Engine, data []byte, filename string, opts model.ScanOptions) (engine.Raw, error) {
	if int64(len(data)) > opts.MaxFileSizeBytes {
		return engine.Raw{}, fmt.Errorf("%d bytes exceeds limit %d: %w",
			len(data), opts.MaxFileSizeBytes, model.ErrFileTooLarge)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout())
	defer cancel()

	start := time.Now()
	raw, err := eng.Detect(ctx, data, filename)
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return engine.Raw{}, fmt.Errorf("engine %s after %s: %w", eng.Name(), elapsed, model.ErrEngineTimeout)
	case errors.Is(err, context.Canceled):
		return engine.Raw{}, err
	case errors.Is(err, model.ErrNoMatch):
		if inv.recorder != nil {
			inv.recorder.EngineUsed(eng.Name(), elapsed)
		}
		return engine.Raw{}, err
	case err != nil:
		return engine.Raw{}, fmt.Errorf("engine %s: %v: %w", eng.Name(), err, model.ErrEngineFailure)
	}

	if inv.recorder != nil {
		inv.recorder.EngineUsed(eng.Name(), elapsed)
	}
	return raw, nil
}

// InvokeAll consults the given engines in order for one file and returns the
// successful raw results. The file size gate runs exactly once, before any
// engine is touched. Engines reporting no match are still counted as
// consulted. A hard engine failure fails the whole file, matching the
// per-file failure policy, no partial result is fabricated next to an error.
func (inv *Invoker) InvokeAll(ctx context.Context, engines []engine.Engine, data []byte, filename string, opts model.ScanOptions) ([]engine.Raw, error) {
	if int64(len(data)) > opts.MaxFileSizeBytes {
		return nil, fmt.Errorf("%d bytes exceeds limit %d: %w",
			len(data), opts.MaxFileSizeBytes, model.ErrFileTooLarge)
	}

	var invocationErrors []error
	raws := make([]engine.Raw, 0, len(engines))
	for _, eng := range engines {
		ectx := log.ContextAttrs(ctx, slog.String("engine", eng.Name()))
		raw, err := inv.Invoke(ectx, eng, data, filename, opts)
		switch {
		case err == nil:
			raws = append(raws, raw)
		case errors.Is(err, model.ErrNoMatch):
			slog.DebugContext(ectx, "engine found no match", "filename", filename)
		default:
			invocationErrors = append(invocationErrors, err)
		}
	}

	if len(invocationErrors) > 0 {
		return nil, errors.Join(invocationErrors...)
	}
	return raws, nil
}
