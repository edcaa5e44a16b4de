// Package server holds the control-plane state machine and client registry
// shared by the IPC loop: config, current_rep, sim_state, owner, and the
// connected-client set, each behind its own mutex so state mutation never
// blocks on client-registry lookups or vice versa.
package server

import (
	"sync"

	"github.com/ocx/gridwalk/internal/grid"
	"github.com/ocx/gridwalk/internal/trajectory"
)

// SimState is the control-plane lifecycle state.
type SimState uint8

const (
	Lobby SimState = iota + 1
	Running
	Finished
)

func (s SimState) String() string {
	switch s {
	case Lobby:
		return "LOBBY"
	case Running:
		return "RUNNING"
	case Finished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// SimConfig is the active simulation configuration: world kind/size, move
// distribution, step cap, and replication count.
type SimConfig struct {
	Kind      grid.Kind
	Width     int
	Height    int
	Probs     trajectory.MoveProbs
	K         uint64
	TotalReps uint32
}

// DisplayMode is the client-visible display mode. Purely informational: it
// never gates control capability, which remains owner-only (spec.md §9).
type DisplayMode uint8

const (
	ModeInteractive DisplayMode = iota + 1
	ModeSummary
)

// State holds the mutable control-plane fields behind one mutex: sim_state,
// current_rep, multi_user, mode, and config. Never held while performing
// socket I/O on a client.
type State struct {
	mu sync.Mutex

	cfg        SimConfig
	simState   SimState
	currentRep uint32
	multiUser  bool
	mode       DisplayMode
}

// NewState constructs a fresh LOBBY-state control plane.
func NewState(cfg SimConfig) *State {
	return &State{cfg: cfg, simState: Lobby, mode: ModeInteractive}
}

// Snapshot returns a consistent copy of config + state + progress under one
// lock acquisition.
func (s *State) Snapshot() (SimConfig, SimState, uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.simState, s.currentRep, s.multiUser
}

// Mode returns the current display mode.
func (s *State) Mode() DisplayMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode sets the display mode; purely informational, never consulted by
// CanControl.
func (s *State) SetMode(m DisplayMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
}

// Config returns the current configuration.
func (s *State) Config() SimConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// SimState returns the current lifecycle state.
func (s *State) SimState() SimState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.simState
}

// CurrentRep returns the current replication index.
func (s *State) CurrentRep() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentRep
}

// Reconfigure applies a new config while in LOBBY. Returns false if the
// state is RUNNING (caller should report a state-conflict error).
func (s *State) Reconfigure(cfg SimConfig) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.simState == Running {
		return false
	}
	s.cfg = cfg
	s.simState = Lobby
	s.currentRep = 0
	return true
}

// SetMultiUser sets the informational multi-user flag; it never widens
// control capability, which remains gated on ownership alone.
func (s *State) SetMultiUser(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.multiUser = v
}

// BeginRunning transitions to RUNNING with progress reset to 0. Returns
// false if already RUNNING.
func (s *State) BeginRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.simState == Running {
		return false
	}
	s.simState = Running
	s.currentRep = 0
	return true
}

// BeginRunningWithReps transitions to RUNNING after overwriting total_reps
// (used by RESTART_SIM). Returns false if already RUNNING or reps == 0.
func (s *State) BeginRunningWithReps(reps uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.simState == Running || reps == 0 {
		return false
	}
	s.cfg.TotalReps = reps
	s.simState = Lobby
	s.currentRep = 0
	s.simState = Running
	return true
}

// AdvanceRep records a completed replication's progress.
func (s *State) AdvanceRep(rep uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentRep = rep
}

// Finish transitions RUNNING -> FINISHED; a no-op guard for any other state.
func (s *State) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.simState == Running {
		s.simState = Finished
	}
}

// ApplyLoadedWorld overwrites dimensions/kind from a loaded world file and
// moves to LOBBY, per LOAD_WORLD semantics.
func (s *State) ApplyLoadedWorld(kind grid.Kind, width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Kind = kind
	s.cfg.Width = width
	s.cfg.Height = height
	s.simState = Lobby
	s.currentRep = 0
}

// ApplyLoadedResults overwrites config fields from a loaded results file and
// moves to FINISHED, per LOAD_RESULTS semantics.
func (s *State) ApplyLoadedResults(cfg SimConfig, currentRep uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.currentRep = currentRep
	s.simState = Finished
}
