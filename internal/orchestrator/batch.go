package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/typesift/typesift/internal/engine"
	"github.com/typesift/typesift/internal/log"
	"github.com/typesift/typesift/internal/model"
	"github.com/typesift/typesift/internal/normalize"
)

// ScanBatch validates the submission, registers a batch job and returns its
// id. Processing happens asynchronously under the orchestrator's base
// context, progress is observable through JobStatus. At most concurrency
// files are in flight at any moment, the rest queue in submission order.
func (o *Orchestrator) ScanBatch(ctx context.Context, files []File, opts model.ScanOptions, concurrency int) (string, error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("batch with no files: %w", model.ErrInvalidOptions)
	}
	engines, err := o.selectEngines(opts)
	if err != nil {
		return "", err
	}
	concurrency = model.ClampWorkers(concurrency, o.defaults.Workers)

	jctx, cancel := context.WithCancel(o.baseCtx)
	job := &batchJob{
		id:      "batch_" + uuid.NewString(),
		total:   len(files),
		status:  model.BatchQueued,
		started: time.Now().UTC(),
		gate:    newGate(),
		cancel:  cancel,
	}

	o.mx.Lock()
	o.jobs[job.id] = job
	o.mx.Unlock()

	jctx = log.ContextAttrs(jctx, slog.String("batch_id", job.id))
	go o.runBatch(jctx, job, files, opts, engines, concurrency)

	return job.id, nil
}

func (o *Orchestrator) runBatch(ctx context.Context, job *batchJob, files []File, opts model.ScanOptions, engines []engine.Engine, concurrency int) {
	defer job.cancel()

	job.setStatus(model.BatchRunning)
	slog.InfoContext(ctx, "batch started", "files", len(files), "concurrency", concurrency)

	dup := newDupCache()
	g := new(errgroup.Group)
	g.SetLimit(concurrency)

	admitted := 0
	for _, file := range files {
		// the pause gate and the errgroup limit together form the
		// admission control: files enter strictly in submission order
		// and never more than concurrency at once
		if err := job.gate.wait(ctx); err != nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
		admitted++
		g.Go(func() error {
			// a file can pass the gate and then sit here waiting for a
			// slot; if the batch was paused in the meantime it must not
			// start, so the gate is checked again once the slot is held
			if err := job.gate.wait(ctx); err != nil {
				o.recordSkipped(job, file)
				return nil
			}
			o.recorder.WorkerStarted()
			defer o.recorder.WorkerDone()
			o.runBatchFile(ctx, job, file, opts, engines, dup)
			return nil
		})
	}

	_ = g.Wait()

	// everything not admitted was cancelled out of the queue
	for _, file := range files[admitted:] {
		o.recordSkipped(job, file)
	}

	job.finish()
	snap := job.snapshot()
	slog.InfoContext(ctx, "batch finished",
		"status", snap.Status,
		"completed", snap.Completed, "failed", snap.Failed, "skipped", snap.Skipped)
	o.pruneJobs()
}

func (o *Orchestrator) runBatchFile(ctx context.Context, job *batchJob, file File, opts model.ScanOptions, engines []engine.Engine, dup *dupCache) {
	ctx = log.ContextAttrs(ctx, slog.String("filename", file.Name))

	res, err := o.scanOne(ctx, file, opts, engines, dup)
	switch {
	case err == nil:
		job.record(res)
	case errors.Is(err, model.ErrSkipped):
		o.recordSkipped(job, file)
	default:
		// storage failure: a single submission aborts, the batch cannot
		// guarantee exactly-once persistence anymore
		slog.ErrorContext(ctx, "persisting result failed, aborting batch", "error", err)
		job.abort()
	}
}

// recordSkipped persists a skipped marker for a file the batch never (or no
// longer) processed. Markers survive cancellation, so they are written under
// the service context rather than the cancelled batch context.
func (o *Orchestrator) recordSkipped(job *batchJob, file File) {
	marker := normalize.FailureMarker(file.Name, int64(len(file.Data)), nil, model.ErrSkipped)
	if err := o.store.Append(o.baseCtx, marker); err != nil {
		slog.Error("persisting skipped marker failed", "filename", file.Name, "error", err)
	}
	job.recordSkip(marker)
}

// batchJob is the mutable state of one batch. Only the orchestrator that
// created it mutates it, everyone else sees snapshots.
type batchJob struct {
	id      string
	total   int
	gate    *gate
	cancel  context.CancelFunc
	started time.Time

	mx        sync.Mutex
	completed int
	failed    int
	skipped   int
	status    string
	results   []model.ScanResult
	finished  *time.Time
	cancelled bool
	aborted   bool
}

func (j *batchJob) record(res model.ScanResult) {
	j.mx.Lock()
	defer j.mx.Unlock()
	if res.Failed() {
		j.failed++
	} else {
		j.completed++
	}
	j.results = append(j.results, res)
}

func (j *batchJob) recordSkip(marker model.ScanResult) {
	j.mx.Lock()
	defer j.mx.Unlock()
	j.skipped++
	j.results = append(j.results, marker)
}

func (j *batchJob) setStatus(status string) {
	j.mx.Lock()
	defer j.mx.Unlock()
	if !terminal(j.status) {
		j.status = status
	}
}

func (j *batchJob) pause() {
	j.mx.Lock()
	if terminal(j.status) {
		j.mx.Unlock()
		return
	}
	j.status = model.BatchPaused
	j.mx.Unlock()
	j.gate.pause()
}

func (j *batchJob) resume() {
	j.mx.Lock()
	if j.status == model.BatchPaused {
		j.status = model.BatchRunning
	}
	j.mx.Unlock()
	j.gate.resume()
}

func (j *batchJob) cancelJob() {
	j.mx.Lock()
	if !terminal(j.status) {
		j.cancelled = true
	}
	j.mx.Unlock()
	j.cancel()
}

func (j *batchJob) abort() {
	j.mx.Lock()
	j.aborted = true
	j.mx.Unlock()
	j.cancel()
}

func (j *batchJob) finish() {
	j.mx.Lock()
	defer j.mx.Unlock()
	now := time.Now().UTC()
	j.finished = &now
	switch {
	case j.aborted:
		j.status = model.BatchFailed
	case j.cancelled:
		j.status = model.BatchCancelled
	default:
		j.status = model.BatchComplete
	}
}

func (j *batchJob) finishedAt() (time.Time, bool) {
	j.mx.Lock()
	defer j.mx.Unlock()
	if j.finished == nil {
		return time.Time{}, false
	}
	return *j.finished, true
}

func (j *batchJob) snapshot() model.BatchJob {
	j.mx.Lock()
	defer j.mx.Unlock()
	snap := model.BatchJob{
		BatchID:    j.id,
		TotalFiles: j.total,
		Completed:  j.completed,
		Failed:     j.failed,
		Skipped:    j.skipped,
		Status:     j.status,
		Results:    append([]model.ScanResult(nil), j.results...),
		StartedAt:  j.started,
	}
	if j.finished != nil {
		t := *j.finished
		snap.FinishedAt = &t
	}
	return snap
}

func terminal(status string) bool {
	switch status {
	case model.BatchComplete, model.BatchFailed, model.BatchCancelled:
		return true
	}
	return false
}

// gate implements the pause switch. Open means admission may proceed.
type gate struct {
	mx   sync.Mutex
	open chan struct{}
}

func newGate() *gate {
	g := &gate{open: make(chan struct{})}
	close(g.open)
	return g
}

func (g *gate) wait(ctx context.Context) error {
	g.mx.Lock()
	ch := g.open
	g.mx.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gate) pause() {
	g.mx.Lock()
	defer g.mx.Unlock()
	select {
	case <-g.open:
		g.open = make(chan struct{})
	default:
		// already paused
	}
}

func (g *gate) resume() {
	g.mx.Lock()
	defer g.mx.Unlock()
	select {
	case <-g.open:
		// already open
	default:
		close(g.open)
	}
}

// dupCache remembers the first result per content digest within one batch.
type dupCache struct {
	mx     sync.Mutex
	byHash map[string]model.ScanResult
}

func newDupCache() *dupCache {
	return &dupCache{byHash: make(map[string]model.ScanResult)}
}

func (d *dupCache) lookup(sha256Hex string) (model.ScanResult, bool) {
	d.mx.Lock()
	defer d.mx.Unlock()
	r, ok := d.byHash[sha256Hex]
	return r, ok
}

func (d *dupCache) remember(sha256Hex string, r model.ScanResult) {
	d.mx.Lock()
	defer d.mx.Unlock()
	if _, exists := d.byHash[sha256Hex]; !exists {
		d.byHash[sha256Hex] = r
	}
}
