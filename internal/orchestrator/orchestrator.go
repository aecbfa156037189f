// Package orchestrator coordinates scan jobs: it accepts single files and
// batches, drives the engine invoker under the configured concurrency,
// normalizes and enriches the outcome and records it in the history store.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/typesift/typesift/internal/engine"
	"github.com/typesift/typesift/internal/history"
	"github.com/typesift/typesift/internal/invoke"
	"github.com/typesift/typesift/internal/log"
	"github.com/typesift/typesift/internal/metrics"
	"github.com/typesift/typesift/internal/model"
	"github.com/typesift/typesift/internal/normalize"
	"github.com/typesift/typesift/internal/registry"
	"github.com/typesift/typesift/internal/threat"
)

// File is one submitted file.
type File struct {
	Name string
	Data []byte
}

// Orchestrator owns every running batch job for its lifetime. Construct it
// once per service with New, it is safe for concurrent submissions.
type Orchestrator struct {
	registry *registry.Registry
	invoker  *invoke.Invoker
	store    *history.Store
	recorder *metrics.Recorder
	defaults model.ScanDefaults

	// baseCtx bounds asynchronous batch work to the service lifetime,
	// not to the HTTP request that submitted the batch.
	baseCtx context.Context

	mx   sync.RWMutex
	jobs map[string]*batchJob
}

func New(baseCtx context.Context, reg *registry.Registry, inv *invoke.Invoker, store *history.Store, rec *metrics.Recorder, defaults model.ScanDefaults) *Orchestrator {
	return &Orchestrator{
		registry: reg,
		invoker:  inv,
		store:    store,
		recorder: rec,
		defaults: defaults,
		baseCtx:  baseCtx,
		jobs:     make(map[string]*batchJob),
	}
}

// ScanFile runs the full invoke/normalize/persist pipeline for one file and
// returns the result synchronously. Submission errors (invalid options, file
// too large, registry problems) are returned as typed errors without a
// result. An engine failure is persisted as a failure marker and returned as
// an error.
func (o *Orchestrator) ScanFile(ctx context.Context, file File, opts model.ScanOptions) (model.ScanResult, error) {
	if err := opts.Validate(); err != nil {
		return model.ScanResult{}, err
	}
	engines, err := o.selectEngines(opts)
	if err != nil {
		return model.ScanResult{}, err
	}
	if int64(len(file.Data)) > opts.MaxFileSizeBytes {
		return model.ScanResult{}, fmt.Errorf("%s is %d bytes, limit %d: %w",
			file.Name, len(file.Data), opts.MaxFileSizeBytes, model.ErrFileTooLarge)
	}

	ctx = log.ContextAttrs(ctx, slog.String("filename", file.Name))
	res, err := o.scanOne(ctx, file, opts, engines, nil)
	if err != nil {
		return model.ScanResult{}, err
	}
	if res.Failed() {
		// marker is already persisted, the caller gets the typed error
		return model.ScanResult{}, fmt.Errorf("scanning %s: %s: %w",
			file.Name, res.Error.Message, kindErr(res.Error.Kind))
	}
	return res, nil
}

// scanOne is the shared per-file pipeline. dup is the per-batch duplicate
// cache, nil for single scans. The returned result is already persisted.
// Only storage failures and cancellation are returned as errors.
func (o *Orchestrator) scanOne(ctx context.Context, file File, opts model.ScanOptions, engines []engine.Engine, dup *dupCache) (model.ScanResult, error) {
	start := time.Now()
	size := int64(len(file.Data))

	// the size gate comes before everything else, an oversized file touches
	// neither the hashers nor any engine
	if size > opts.MaxFileSizeBytes {
		res := normalize.FailureMarker(file.Name, size, nil,
			fmt.Errorf("%d bytes exceeds limit %d: %w", size, opts.MaxFileSizeBytes, model.ErrFileTooLarge))
		if err := o.store.Append(ctx, res); err != nil {
			return model.ScanResult{}, err
		}
		return res, nil
	}

	// hashing is a gating step: with duplicate skipping on, the digest must
	// exist before any engine runs
	var hashes *model.Hashes
	if opts.SkipDuplicates || opts.GenerateHashes {
		hashes = computeHashes(file.Data)
	}

	if opts.SkipDuplicates && dup != nil {
		if prior, ok := dup.lookup(hashes.SHA256); ok {
			res := reuseResult(prior, file.Name)
			if err := o.store.Append(ctx, res); err != nil {
				return model.ScanResult{}, err
			}
			o.recorder.ScanFinished()
			slog.DebugContext(ctx, "duplicate content, engines skipped", "prior_id", prior.ID)
			return res, nil
		}
	}

	names := engineNames(engines)
	raws, invErr := o.invoker.InvokeAll(ctx, engines, file.Data, file.Name, opts)

	var res model.ScanResult
	switch {
	case invErr == nil:
		res = normalize.Normalize(file.Name, size, names, raws)
		o.enrich(&res, file, opts, hashes, len(raws) > 0)
	case errors.Is(invErr, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return model.ScanResult{}, fmt.Errorf("scan of %s interrupted: %w", file.Name, model.ErrSkipped)
	default:
		res = normalize.FailureMarker(file.Name, size, names, invErr)
	}
	res.ScanDurationMs = time.Since(start).Milliseconds()

	if err := o.store.Append(ctx, res); err != nil {
		if ctx.Err() != nil {
			return model.ScanResult{}, fmt.Errorf("scan of %s interrupted: %w", file.Name, model.ErrSkipped)
		}
		return model.ScanResult{}, err
	}
	if opts.SkipDuplicates && dup != nil && !res.Failed() {
		dup.remember(hashes.SHA256, res)
	}
	o.recorder.ScanFinished()
	return res, nil
}

// enrich applies the option-gated post-processing to a successful result.
func (o *Orchestrator) enrich(res *model.ScanResult, file File, opts model.ScanOptions, hashes *model.Hashes, matched bool) {
	if opts.GenerateHashes {
		res.Hashes = hashes
	}
	if opts.ExtractMetadata {
		if res.Metadata == nil {
			res.Metadata = make(map[string]any)
		}
		res.Metadata["file"] = fileMetadata(file.Name, res.SizeBytes, res.MIMEType)
	}
	if opts.DeepAnalysis {
		res.Structure = structureFor(res.MIMEType, matched)
	}
	res.Security = threat.Assess(*res)
}

func (o *Orchestrator) selectEngines(opts model.ScanOptions) ([]engine.Engine, error) {
	engines, err := o.registry.Select(opts.Engines)
	if err != nil {
		return nil, err
	}
	if len(engines) == 0 {
		return nil, fmt.Errorf("no engines available for this scan: %w", model.ErrRegistryUnavailable)
	}
	return engines, nil
}

// JobStatus returns a snapshot of the batch job, or ErrNotFound.
func (o *Orchestrator) JobStatus(batchID string) (model.BatchJob, error) {
	o.mx.RLock()
	job, ok := o.jobs[batchID]
	o.mx.RUnlock()
	if !ok {
		return model.BatchJob{}, fmt.Errorf("batch %s: %w", batchID, model.ErrNotFound)
	}
	return job.snapshot(), nil
}

// Pause suspends admission of new files into the batch. In-flight
// invocations are left to finish.
func (o *Orchestrator) Pause(batchID string) error {
	return o.withJob(batchID, (*batchJob).pause)
}

// Resume readmits work into a paused batch.
func (o *Orchestrator) Resume(batchID string) error {
	return o.withJob(batchID, (*batchJob).resume)
}

// Cancel aborts the batch: in-flight invocations are cancelled through the
// same context path that enforces timeouts, queued files are marked skipped.
func (o *Orchestrator) Cancel(batchID string) error {
	return o.withJob(batchID, (*batchJob).cancelJob)
}

// finished batches stay around for status polling, but not forever
const maxRetainedJobs = 64

// pruneJobs evicts the oldest finished batches once more than
// maxRetainedJobs of them are retained. Running and paused jobs are never
// evicted, and history records are unaffected.
func (o *Orchestrator) pruneJobs() {
	o.mx.Lock()
	defer o.mx.Unlock()
	type finished struct {
		id string
		at time.Time
	}
	var done []finished
	for id, job := range o.jobs {
		if at, ok := job.finishedAt(); ok {
			done = append(done, finished{id, at})
		}
	}
	if len(done) <= maxRetainedJobs {
		return
	}
	slices.SortFunc(done, func(a, b finished) int { return a.at.Compare(b.at) })
	for _, f := range done[:len(done)-maxRetainedJobs] {
		delete(o.jobs, f.id)
	}
}

func (o *Orchestrator) withJob(batchID string, fn func(*batchJob)) error {
	o.mx.RLock()
	job, ok := o.jobs[batchID]
	o.mx.RUnlock()
	if !ok {
		return fmt.Errorf("batch %s: %w", batchID, model.ErrNotFound)
	}
	fn(job)
	return nil
}

func engineNames(engines []engine.Engine) []string {
	names := make([]string, 0, len(engines))
	for _, e := range engines {
		names = append(names, e.Name())
	}
	return names
}

// reuseResult derives a fresh record from a duplicate hit. The new record
// gets its own identity, detection fields are carried over and no engine
// runs again.
func reuseResult(prior model.ScanResult, filename string) model.ScanResult {
	res := prior
	res.ID = uuid.NewString()
	res.Filename = filename
	res.Timestamp = time.Now().UTC()
	// no engine ran for the duplicate, the prior duration does not apply
	res.ScanDurationMs = 0
	if prior.Metadata != nil {
		res.Metadata = make(map[string]any, len(prior.Metadata)+1)
		for k, v := range prior.Metadata {
			res.Metadata[k] = v
		}
	} else {
		res.Metadata = make(map[string]any, 1)
	}
	res.Metadata["duplicate_of"] = prior.ID
	return res
}

// kindErr maps a persisted failure kind back to its sentinel for the
// caller-facing error chain.
func kindErr(kind string) error {
	switch kind {
	case "FileTooLarge":
		return model.ErrFileTooLarge
	case "EngineTimeout":
		return model.ErrEngineTimeout
	case "Skipped":
		return model.ErrSkipped
	default:
		return model.ErrEngineFailure
	}
}
