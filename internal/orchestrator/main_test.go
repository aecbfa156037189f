package orchestrator_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/typesift/typesift/internal/engine"
	"github.com/typesift/typesift/internal/history"
	"github.com/typesift/typesift/internal/invoke"
	"github.com/typesift/typesift/internal/metrics"
	"github.com/typesift/typesift/internal/model"
	"github.com/typesift/typesift/internal/orchestrator"
	"github.com/typesift/typesift/internal/registry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	orch  *orchestrator.Orchestrator
	store *history.Store
	rec   *metrics.Recorder
}

func newHarness(t *testing.T, engines ...engine.Engine) harness {
	t.Helper()

	reg, err := registry.New(engines...)
	require.NoError(t, err)
	require.NoError(t, reg.Refresh(t.Context()))

	store, err := history.Open(t.Context(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	rec := metrics.NewRecorder()
	inv := invoke.New(rec)
	defaults := model.ScanDefaults{Workers: 4, TimeoutMs: 30_000, MaxFileSizeBytes: 100 * 1024 * 1024}
	return harness{
		orch:  orchestrator.New(t.Context(), reg, inv, store, rec, defaults),
		store: store,
		rec:   rec,
	}
}

// waitTerminal polls the job until it reaches a terminal state.
func waitTerminal(t *testing.T, orch *orchestrator.Orchestrator, batchID string) model.BatchJob {
	t.Helper()
	require.Eventually(t, func() bool {
		job, err := orch.JobStatus(batchID)
		if err != nil {
			return false
		}
		switch job.Status {
		case model.BatchComplete, model.BatchFailed, model.BatchCancelled:
			return true
		}
		return false
	}, 10*time.Second, 10*time.Millisecond)

	job, err := orch.JobStatus(batchID)
	require.NoError(t, err)
	return job
}

// fixedEngine answers every file with the same classification.
type fixedEngine struct {
	name string
	raw  engine.Raw
}

func (f fixedEngine) Name() string    { return f.name }
func (f fixedEngine) Version() string { return "1.0" }
func (f fixedEngine) Detect(context.Context, []byte, string) (engine.Raw, error) {
	return f.raw, nil
}

func pngEngine() fixedEngine {
	return fixedEngine{
		name: "fixed",
		raw: engine.Raw{
			Engine:     "fixed",
			Version:    "1.0",
			MediaType:  "image/png",
			Extension:  "png",
			Confidence: 0.99,
		},
	}
}

// failOnEngine fails hard for one specific filename.
type failOnEngine struct {
	fixedEngine
	badName string
}

func (f failOnEngine) Detect(ctx context.Context, data []byte, filename string) (engine.Raw, error) {
	if filename == f.badName {
		return engine.Raw{}, errDetector
	}
	return f.fixedEngine.Detect(ctx, data, filename)
}

var errDetector = &detectorError{}

type detectorError struct{}

func (*detectorError) Error() string { return "detector crashed" }

// countingEngine counts invocations.
type countingEngine struct {
	fixedEngine
	calls *atomic.Int64
}

func (c countingEngine) Detect(ctx context.Context, data []byte, filename string) (engine.Raw, error) {
	c.calls.Add(1)
	return c.fixedEngine.Detect(ctx, data, filename)
}

// meterEngine records the highest number of concurrent invocations it saw.
type meterEngine struct {
	fixedEngine
	cur, max *atomic.Int64
}

func (p meterEngine) Detect(ctx context.Context, data []byte, filename string) (engine.Raw, error) {
	n := p.cur.Add(1)
	defer p.cur.Add(-1)
	for {
		m := p.max.Load()
		if n <= m || p.max.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return p.fixedEngine.Detect(ctx, data, filename)
}

// gatedEngine blocks each invocation until released, signalling starts.
type gatedEngine struct {
	fixedEngine
	started chan struct{}
	release chan struct{}
}

func newGatedEngine(capacity int) *gatedEngine {
	return &gatedEngine{
		fixedEngine: pngEngine(),
		started:     make(chan struct{}, capacity),
		release:     make(chan struct{}),
	}
}

func (g *gatedEngine) Detect(ctx context.Context, data []byte, filename string) (engine.Raw, error) {
	g.started <- struct{}{}
	select {
	case <-g.release:
		return g.fixedEngine.Detect(ctx, data, filename)
	case <-ctx.Done():
		return engine.Raw{}, ctx.Err()
	}
}

// brokenProber registers fine but never probes healthy.
type brokenProber struct {
	fixedEngine
}

func (brokenProber) Probe(context.Context) error {
	return errDetector
}
