package orchestrator_test

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/typesift/typesift/internal/model"
	"github.com/typesift/typesift/internal/orchestrator"
)

func batchFiles(n int) []orchestrator.File {
	files := make([]orchestrator.File, 0, n)
	for i := range n {
		files = append(files, orchestrator.File{
			Name: fmt.Sprintf("file-%d.png", i),
			Data: fmt.Appendf(nil, "content of file %d", i),
		})
	}
	return files
}

func TestScanBatch(t *testing.T) {
	t.Parallel()

	h := newHarness(t, failOnEngine{pngEngine(), "file-2.png"})

	id, err := h.orch.ScanBatch(t.Context(), batchFiles(5), model.DefaultScanOptions(), 2)
	require.NoError(t, err)
	require.Contains(t, id, "batch_")

	job := waitTerminal(t, h.orch, id)
	require.Equal(t, model.BatchComplete, job.Status)
	require.Equal(t, 5, job.TotalFiles)
	require.Equal(t, 4, job.Completed)
	require.Equal(t, 1, job.Failed)
	require.Zero(t, job.Skipped)
	require.Len(t, job.Results, 5)
	require.NotNil(t, job.FinishedAt)

	var marker *model.ScanResult
	for i := range job.Results {
		if job.Results[i].Failed() {
			marker = &job.Results[i]
		}
	}
	require.NotNil(t, marker)
	require.Equal(t, "file-2.png", marker.Filename)
	require.Equal(t, "EngineFailure", marker.Error.Kind)

	// every file, failed one included, went to the history
	n, err := h.store.Count(t.Context())
	require.NoError(t, err)
	require.EqualValues(t, 5, n)
}

func TestScanBatch_NoFiles(t *testing.T) {
	t.Parallel()

	h := newHarness(t, pngEngine())
	_, err := h.orch.ScanBatch(t.Context(), nil, model.DefaultScanOptions(), 2)
	require.ErrorIs(t, err, model.ErrInvalidOptions)
}

func TestScanBatch_ConcurrencyBound(t *testing.T) {
	t.Parallel()

	var cur, peak atomic.Int64
	h := newHarness(t, meterEngine{pngEngine(), &cur, &peak})

	id, err := h.orch.ScanBatch(t.Context(), batchFiles(8), model.DefaultScanOptions(), 2)
	require.NoError(t, err)

	job := waitTerminal(t, h.orch, id)
	require.Equal(t, model.BatchComplete, job.Status)
	require.Equal(t, 8, job.Completed)
	require.LessOrEqual(t, peak.Load(), int64(2))
	require.Positive(t, peak.Load())
}

func TestScanBatch_Cancel(t *testing.T) {
	t.Parallel()

	eng := newGatedEngine(3)
	h := newHarness(t, eng)

	id, err := h.orch.ScanBatch(t.Context(), batchFiles(3), model.DefaultScanOptions(), 1)
	require.NoError(t, err)

	// first file is inside the engine, the rest are queued
	<-eng.started
	require.NoError(t, h.orch.Cancel(id))

	job := waitTerminal(t, h.orch, id)
	require.Equal(t, model.BatchCancelled, job.Status)
	require.Zero(t, job.Completed)
	require.Zero(t, job.Failed)
	require.Equal(t, 3, job.Skipped)

	// skipped files leave markers
	n, err := h.store.Count(t.Context())
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
	for _, res := range job.Results {
		require.True(t, res.Failed())
		require.Equal(t, "Skipped", res.Error.Kind)
	}
}

func TestScanBatch_PauseResume(t *testing.T) {
	t.Parallel()

	eng := newGatedEngine(3)
	h := newHarness(t, eng)

	id, err := h.orch.ScanBatch(t.Context(), batchFiles(3), model.DefaultScanOptions(), 1)
	require.NoError(t, err)

	<-eng.started
	require.NoError(t, h.orch.Pause(id))

	// the in-flight file runs to completion, admission stays closed
	eng.release <- struct{}{}
	require.Eventually(t, func() bool {
		job, err := h.orch.JobStatus(id)
		return err == nil && job.Completed >= 1
	}, 10*time.Second, 10*time.Millisecond)

	// the next file may already hold a worker slot, but while paused it
	// must not reach an engine
	select {
	case <-eng.started:
		t.Fatal("engine invocation started while the batch was paused")
	case <-time.After(300 * time.Millisecond):
	}

	job, err := h.orch.JobStatus(id)
	require.NoError(t, err)
	require.Equal(t, model.BatchPaused, job.Status)

	require.NoError(t, h.orch.Resume(id))
	for range 2 {
		<-eng.started
		eng.release <- struct{}{}
	}

	job = waitTerminal(t, h.orch, id)
	require.Equal(t, model.BatchComplete, job.Status)
	require.Equal(t, 3, job.Completed)
	require.Zero(t, job.Skipped)
}

func TestScanBatch_RetiresOldJobs(t *testing.T) {
	t.Parallel()

	h := newHarness(t, pngEngine())

	ids := make([]string, 0, 70)
	for range cap(ids) {
		id, err := h.orch.ScanBatch(t.Context(), batchFiles(1), model.DefaultScanOptions(), 1)
		require.NoError(t, err)
		waitTerminal(t, h.orch, id)
		ids = append(ids, id)
	}

	// the oldest finished batches are evicted, the newest stay pollable
	require.Eventually(t, func() bool {
		_, err := h.orch.JobStatus(ids[0])
		return errors.Is(err, model.ErrNotFound)
	}, 10*time.Second, 10*time.Millisecond)
	_, err := h.orch.JobStatus(ids[len(ids)-1])
	require.NoError(t, err)
}

func TestScanBatch_SkipDuplicates(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	h := newHarness(t, countingEngine{pngEngine(), &calls})

	same := []byte("identical payload")
	files := []orchestrator.File{
		{Name: "one.png", Data: same},
		{Name: "two.png", Data: same},
		{Name: "three.png", Data: same},
	}
	opts := model.DefaultScanOptions()
	opts.SkipDuplicates = true

	id, err := h.orch.ScanBatch(t.Context(), files, opts, 1)
	require.NoError(t, err)

	job := waitTerminal(t, h.orch, id)
	require.Equal(t, model.BatchComplete, job.Status)
	require.Equal(t, 3, job.Completed)
	// the engines ran once, the duplicates reused the result
	require.EqualValues(t, 1, calls.Load())

	var reused int
	for _, res := range job.Results {
		if res.Metadata["duplicate_of"] != nil {
			reused++
			require.Equal(t, "image/png", res.DetectedType)
			// no engine ran for the reuse, the prior duration is not carried
			require.Zero(t, res.ScanDurationMs)
		}
	}
	require.Equal(t, 2, reused)

	// each reuse is still its own history record
	n, err := h.store.Count(t.Context())
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
}
