package server

import (
	"sync"

	"github.com/ocx/gridwalk/internal/aggregate"
	"github.com/ocx/gridwalk/internal/grid"
	"github.com/ocx/gridwalk/internal/simulation"
)

// WorldHolder owns the current world/aggregate/manager triple, swapped as a
// unit by CREATE_SIM, LOAD_WORLD, and LOAD_RESULTS (CREATE_SIM and
// LOAD_WORLD are refused while State is RUNNING; LOAD_RESULTS is accepted in
// any state). Guarded by its own mutex — independent of
// State's and Registry's — and never held across a socket write.
type WorldHolder struct {
	mu    sync.RWMutex
	world *grid.World
	agg   *aggregate.Store
	mgr   *simulation.Manager
}

// NewWorldHolder wraps an initial world/aggregate/manager triple.
func NewWorldHolder(world *grid.World, agg *aggregate.Store, mgr *simulation.Manager) *WorldHolder {
	return &WorldHolder{world: world, agg: agg, mgr: mgr}
}

// Get returns the current triple.
func (h *WorldHolder) Get() (*grid.World, *aggregate.Store, *simulation.Manager) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.world, h.agg, h.mgr
}

// Set swaps in a new triple, e.g. after CREATE_SIM/LOAD_WORLD/LOAD_RESULTS
// reinitialize the world to new dimensions.
func (h *WorldHolder) Set(world *grid.World, agg *aggregate.Store, mgr *simulation.Manager) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.world, h.agg, h.mgr = world, agg, mgr
}
