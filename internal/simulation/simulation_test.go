package simulation

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/gridwalk/internal/aggregate"
	"github.com/ocx/gridwalk/internal/grid"
	"github.com/ocx/gridwalk/internal/trajectory"
)

func uniformCfg(reps uint32) Config {
	return Config{
		Workers:    4,
		QueueDepth: 16,
		Probs:      trajectory.MoveProbs{Up: 0.25, Down: 0.25, Left: 0.25, Right: 0.25},
		K:          500,
		TotalReps:  reps,
	}
}

func waitForEnd(t *testing.T, done chan bool, timeout time.Duration) bool {
	t.Helper()
	select {
	case stopped := <-done:
		return stopped
	case <-time.After(timeout):
		t.Fatal("simulation did not finish within timeout")
		return false
	}
}

func TestManager_RunsToCompletion(t *testing.T) {
	w, err := grid.New(grid.Wrap, 4, 4)
	require.NoError(t, err)
	agg, err := aggregate.New(4, 4)
	require.NoError(t, err)

	var lastProgress uint32
	var mu sync.Mutex
	done := make(chan bool, 1)

	mgr := New(w, agg, func(current, total uint32) {
		mu.Lock()
		lastProgress = current
		mu.Unlock()
	}, func(stopped bool) {
		done <- stopped
	})

	mgr.Start(uniformCfg(3))
	stopped := waitForEnd(t, done, 5*time.Second)

	assert.False(t, stopped)
	assert.False(t, mgr.Running())
	assert.Equal(t, uint32(3), mgr.Progress())

	mu.Lock()
	assert.Equal(t, uint32(3), lastProgress)
	mu.Unlock()

	// every cell should have accumulated exactly TotalReps trials.
	for _, trials := range agg.Trials() {
		assert.Equal(t, uint32(3), trials)
	}
}

func TestManager_RequestStopHaltsEarly(t *testing.T) {
	w, err := grid.New(grid.Wrap, 6, 6)
	require.NoError(t, err)
	agg, err := aggregate.New(6, 6)
	require.NoError(t, err)

	done := make(chan bool, 1)
	mgr := New(w, agg, nil, func(stopped bool) { done <- stopped })

	cfg := uniformCfg(1000000)
	mgr.Start(cfg)
	mgr.RequestStop()

	stopped := waitForEnd(t, done, 5*time.Second)
	assert.True(t, stopped)
	assert.False(t, mgr.Running())
	assert.Less(t, mgr.Progress(), uint32(1000000))
}

func TestManager_ObstacleCellsNeverSubmitted(t *testing.T) {
	w, err := grid.New(grid.Obstacles, 3, 3)
	require.NoError(t, err)
	w.SetObstacle(1, 1, true)
	agg, err := aggregate.New(3, 3)
	require.NoError(t, err)

	done := make(chan bool, 1)
	mgr := New(w, agg, nil, func(stopped bool) { done <- stopped })
	mgr.Start(uniformCfg(2))
	waitForEnd(t, done, 5*time.Second)

	blockedIdx := w.Index(1, 1)
	assert.Zero(t, agg.Trials()[blockedIdx])
}

func TestManager_RestartUsesNewTotalReps(t *testing.T) {
	w, err := grid.New(grid.Wrap, 2, 2)
	require.NoError(t, err)
	agg, err := aggregate.New(2, 2)
	require.NoError(t, err)

	done := make(chan bool, 1)
	mgr := New(w, agg, nil, func(stopped bool) { done <- stopped })

	mgr.Start(uniformCfg(1))
	waitForEnd(t, done, 5*time.Second)

	mgr.Restart(5)
	waitForEnd(t, done, 5*time.Second)

	assert.Equal(t, uint32(5), mgr.Progress())
	for _, trials := range agg.Trials() {
		assert.Equal(t, uint32(5), trials)
	}
}
