// Package simulation drives the replication loop: one full pass submits a
// trajectory job for every non-blocked cell, the worker pool runs them, and
// progress is reported after each replication.
package simulation

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ocx/gridwalk/internal/aggregate"
	"github.com/ocx/gridwalk/internal/grid"
	"github.com/ocx/gridwalk/internal/metrics"
	"github.com/ocx/gridwalk/internal/rng"
	"github.com/ocx/gridwalk/internal/trajectory"
	"github.com/ocx/gridwalk/internal/workerpool"
)

// Config holds the parameters of one simulation batch.
type Config struct {
	Workers    int
	QueueDepth int
	Probs      trajectory.MoveProbs
	K          uint64
	TotalReps  uint32
}

// Manager owns the background goroutine that drives replications against a
// world/aggregate pair. Safe for concurrent RequestStop calls from any
// goroutine; Start/Restart must not be called concurrently with one another.
type Manager struct {
	world *grid.World
	agg   *aggregate.Store

	mu       sync.Mutex
	cfg      Config
	progress uint32
	running  bool
	stopFlag atomic.Bool

	onProgress func(current, total uint32)
	onEnd      func(stopped bool)

	wg sync.WaitGroup
}

// New builds a manager bound to a world/aggregate pair. onProgress is invoked
// after each completed replication; onEnd is invoked once after the batch
// finishes (normally or by cooperative stop).
func New(world *grid.World, agg *aggregate.Store, onProgress func(current, total uint32), onEnd func(stopped bool)) *Manager {
	return &Manager{
		world:      world,
		agg:        agg,
		onProgress: onProgress,
		onEnd:      onEnd,
	}
}

// Progress returns the current replication index.
func (m *Manager) Progress() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress
}

// Running reports whether a batch is currently in flight.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// RequestStop flags cooperative cancellation; safe from any goroutine. The
// manager checks this flag between cells and between replications.
func (m *Manager) RequestStop() {
	m.stopFlag.Store(true)
}

// Start clears the aggregate, resets progress, and launches the replication
// loop in a background goroutine. Returns immediately.
func (m *Manager) Start(cfg Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.progress = 0
	m.running = true
	m.mu.Unlock()

	m.stopFlag.Store(false)
	m.agg.Clear()

	m.wg.Add(1)
	go m.run()
}

// Restart reconfigures total reps, resets progress, and starts a fresh batch.
// Callers must ensure the manager is not currently running.
func (m *Manager) Restart(totalReps uint32) {
	m.mu.Lock()
	cfg := m.cfg
	cfg.TotalReps = totalReps
	m.mu.Unlock()
	m.Start(cfg)
}

func (m *Manager) run() {
	defer m.wg.Done()

	pool, err := workerpool.New(m.cfg.Workers, m.cfg.QueueDepth, m.trajectoryRunner())
	if err != nil {
		// workerpool.New fails only for Workers or QueueDepth below 1; the
		// batch then ends at once and onEnd reports it as stopped.
		m.finish(true)
		return
	}

	stopped := false
	width, height := m.world.Width, m.world.Height

outer:
	for rep := uint32(1); rep <= m.cfg.TotalReps; rep++ {
		if m.stopFlag.Load() {
			stopped = true
			break
		}

		repStart := time.Now()
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				if m.world.IsObstacleXY(x, y) {
					continue
				}
				if m.stopFlag.Load() {
					stopped = true
					break outer
				}
				metrics.JobsSubmitted.Inc()
				metrics.QueueDepth.Inc()
				_ = pool.Submit(workerpool.Job{CellIndex: m.world.Index(x, y), StartX: x, StartY: y})
			}
		}

		pool.WaitAll()
		metrics.ReplicationDuration.Observe(time.Since(repStart).Seconds())

		m.mu.Lock()
		m.progress = rep
		m.mu.Unlock()

		if m.onProgress != nil {
			m.onProgress(rep, m.cfg.TotalReps)
		}
	}

	pool.Destroy()
	m.finish(stopped)
}

func (m *Manager) finish(stopped bool) {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
	if m.onEnd != nil {
		m.onEnd(stopped)
	}
}

// trajectoryRunner builds the per-job runner closure. Every job gets a fresh
// RNG source, seeded with a disambiguator from a counter local to this runner
// mixed with the job's cell index, so no two jobs share generator state.
// Sources are per job, not per worker goroutine: a worker builds a new one
// for each job it runs.
func (m *Manager) trajectoryRunner() workerpool.Runner {
	var counter atomic.Uint64
	return func(job workerpool.Job) {
		metrics.QueueDepth.Dec()
		disambig := counter.Add(1) ^ uint64(job.CellIndex)<<32
		source := rng.New(disambig)
		result := trajectory.Run(m.world, grid.Point{X: job.StartX, Y: job.StartY}, m.cfg.Probs, m.cfg.K, source)
		m.agg.Update(job.CellIndex, result.Steps, result.ReachedOrigin, result.SuccessLeqK)
		metrics.JobsCompleted.Inc()
	}
}
