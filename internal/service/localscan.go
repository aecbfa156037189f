package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/typesift/typesift/internal/log"
	"github.com/typesift/typesift/internal/model"
	"github.com/typesift/typesift/internal/orchestrator"
	"github.com/typesift/typesift/internal/walk"
)

// LocalScan walks the given paths and scans every regular file, writing one
// JSON result per line to out. Files over the size limit are skipped with a
// log line instead of failing the whole run. The worker pool bound applies
// the same way it does for HTTP batches.
func (s *Service) LocalScan(ctx context.Context, out io.Writer, paths ...string) error {
	if len(paths) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting working directory: %w", err)
		}
		paths = []string{cwd}
	}

	roots := make([]*os.Root, 0, len(paths))
	for _, path := range paths {
		root, err := os.OpenRoot(path)
		if err != nil {
			slog.WarnContext(ctx, "can't open dir, skipping", "dir", path, "error", err)
			continue
		}
		roots = append(roots, root)
	}
	if len(roots) == 0 {
		return errors.New("no scannable paths")
	}
	defer func() {
		for _, root := range roots {
			_ = root.Close()
		}
	}()

	opts := s.cfg.Scan.Options()
	enc := json.NewEncoder(out)

	results := make(chan model.ScanResult)
	done := make(chan error, 1)
	go func() {
		for res := range results { // closed after g.Wait()
			if err := enc.Encode(res); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(model.ClampWorkers(s.cfg.Scan.Workers, 4))

	for entry, err := range walk.Roots(gctx, roots...) {
		if err != nil {
			slog.DebugContext(ctx, "walk error", "error", err)
			continue
		}
		if entry.Size() > opts.MaxFileSizeBytes {
			slog.DebugContext(ctx, "skipping, too big",
				"path", entry.Path(), "size", entry.Size())
			continue
		}
		g.Go(func() error {
			ectx := log.ContextAttrs(gctx, slog.String("path", entry.Path()))
			data, err := entry.ReadAll()
			if err != nil {
				slog.WarnContext(ectx, "read failed", "error", err)
				return nil
			}
			res, err := s.orch.ScanFile(ectx, orchestrator.File{Name: entry.Path(), Data: data}, opts)
			if err != nil {
				slog.WarnContext(ectx, "scan failed", "error", err)
				return nil
			}
			select {
			case results <- res:
			case <-gctx.Done():
				return gctx.Err()
			}
			return nil
		})
	}

	err := g.Wait()
	close(results)
	if encErr := <-done; encErr != nil {
		return fmt.Errorf("writing results: %w", encErr)
	}
	return err
}
