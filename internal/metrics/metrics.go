// Package metrics tracks live scan counters and produces point-in-time
// system snapshots. Nothing here is persisted, every snapshot is recomputed
// from the live counters and the host.
package metrics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/typesift/typesift/internal/model"
)

type engineCounters struct {
	scans    int64
	totalMs  int64
	lastUsed time.Time
}

// Recorder accumulates per-engine and global counters. Safe for concurrent
// use from orchestrator workers.
type Recorder struct {
	mx            sync.Mutex
	engines       map[string]*engineCounters
	totalScans    atomic.Int64
	activeWorkers atomic.Int64
}

func NewRecorder() *Recorder {
	return &Recorder{
		engines: make(map[string]*engineCounters),
	}
}

// EngineUsed records one completed invocation of the named engine.
func (r *Recorder) EngineUsed(name string, elapsed time.Duration) {
	r.mx.Lock()
	defer r.mx.Unlock()
	c, ok := r.engines[name]
	if !ok {
		c = &engineCounters{}
		r.engines[name] = c
	}
	c.scans++
	c.totalMs += elapsed.Milliseconds()
	c.lastUsed = time.Now().UTC()
}

// ScanFinished bumps the global scan counter.
func (r *Recorder) ScanFinished() {
	r.totalScans.Add(1)
}

// WorkerStarted and WorkerDone track the in-flight worker gauge.
func (r *Recorder) WorkerStarted() { r.activeWorkers.Add(1) }
func (r *Recorder) WorkerDone()    { r.activeWorkers.Add(-1) }

// ActiveWorkers returns the current in-flight worker count.
func (r *Recorder) ActiveWorkers() int {
	return int(r.activeWorkers.Load())
}

// EngineStats snapshots the per-engine counters.
func (r *Recorder) EngineStats() map[string]model.EngineStats {
	r.mx.Lock()
	defer r.mx.Unlock()

	out := make(map[string]model.EngineStats, len(r.engines))
	for name, c := range r.engines {
		st := model.EngineStats{
			ScansCompleted: c.scans,
		}
		if c.scans > 0 {
			st.AvgTimeMs = float64(c.totalMs) / float64(c.scans)
		}
		if !c.lastUsed.IsZero() {
			t := c.lastUsed
			st.LastUsed = &t
		}
		out[name] = st
	}
	return out
}

// System produces a full metrics snapshot. Host probe failures degrade the
// snapshot instead of failing it, the counters are always present.
func (r *Recorder) System(ctx context.Context) model.SystemMetrics {
	m := model.SystemMetrics{
		ActiveWorkers: r.ActiveWorkers(),
		TotalScans:    r.totalScans.Load(),
		EngineStats:   r.EngineStats(),
		Timestamp:     time.Now().UTC(),
	}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		slog.DebugContext(ctx, "cpu probe failed", "error", err)
	} else if len(percents) > 0 {
		m.CPUUsage = percents[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		slog.DebugContext(ctx, "memory probe failed", "error", err)
	} else {
		m.MemoryUsage = vm.UsedPercent
		m.MemoryTotal = vm.Total
		m.MemoryUsed = vm.Used
	}

	if du, err := disk.UsageWithContext(ctx, "/"); err != nil {
		slog.DebugContext(ctx, "disk probe failed", "error", err)
	} else {
		m.DiskUsage = du.UsedPercent
		m.DiskTotal = du.Total
		m.DiskUsed = du.Used
	}

	return m
}
