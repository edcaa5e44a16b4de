package server

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ocx/gridwalk/internal/grid"
	"github.com/ocx/gridwalk/internal/trajectory"
)

func baseConfig() SimConfig {
	return SimConfig{
		Kind:      grid.Wrap,
		Width:     8,
		Height:    8,
		Probs:     trajectory.MoveProbs{Up: 0.25, Down: 0.25, Left: 0.25, Right: 0.25},
		K:         1000,
		TotalReps: 10,
	}
}

func TestState_InitialSnapshot(t *testing.T) {
	s := NewState(baseConfig())
	cfg, simState, rep, multiUser := s.Snapshot()
	assert.Equal(t, Lobby, simState)
	assert.Zero(t, rep)
	assert.False(t, multiUser)
	assert.Equal(t, 8, cfg.Width)
	assert.Equal(t, ModeInteractive, s.Mode())
}

func TestState_BeginRunningTwiceFails(t *testing.T) {
	s := NewState(baseConfig())
	assert.True(t, s.BeginRunning())
	assert.False(t, s.BeginRunning())
	assert.Equal(t, Running, s.SimState())
}

func TestState_ReconfigureRejectedWhileRunning(t *testing.T) {
	s := NewState(baseConfig())
	require := assert.New(t)
	require.True(s.BeginRunning())

	cfg := baseConfig()
	cfg.Width = 16
	require.False(s.Reconfigure(cfg))
	require.Equal(8, s.Config().Width)
}

func TestState_ReconfigureAllowedInLobby(t *testing.T) {
	s := NewState(baseConfig())
	cfg := baseConfig()
	cfg.Width = 32
	assert.True(t, s.Reconfigure(cfg))
	assert.Equal(t, 32, s.Config().Width)
	assert.Equal(t, Lobby, s.SimState())
}

func TestState_BeginRunningWithRepsRejectsZero(t *testing.T) {
	s := NewState(baseConfig())
	assert.False(t, s.BeginRunningWithReps(0))
	assert.Equal(t, Lobby, s.SimState())
}

func TestState_BeginRunningWithRepsOverwritesTotalReps(t *testing.T) {
	s := NewState(baseConfig())
	assert.True(t, s.BeginRunningWithReps(50))
	assert.Equal(t, uint32(50), s.Config().TotalReps)
	assert.Equal(t, Running, s.SimState())
	assert.Zero(t, s.CurrentRep())
}

func TestState_AdvanceRepAndFinish(t *testing.T) {
	s := NewState(baseConfig())
	s.BeginRunning()
	s.AdvanceRep(3)
	assert.Equal(t, uint32(3), s.CurrentRep())

	s.Finish()
	assert.Equal(t, Finished, s.SimState())
}

func TestState_ApplyLoadedWorldResetsToLobby(t *testing.T) {
	s := NewState(baseConfig())
	s.BeginRunning()
	s.AdvanceRep(5)

	s.ApplyLoadedWorld(grid.Obstacles, 20, 20)
	cfg, simState, rep, _ := s.Snapshot()
	assert.Equal(t, grid.Obstacles, cfg.Kind)
	assert.Equal(t, 20, cfg.Width)
	assert.Equal(t, 20, cfg.Height)
	assert.Equal(t, Lobby, simState)
	assert.Zero(t, rep)
}

func TestState_ApplyLoadedResultsMovesToFinished(t *testing.T) {
	s := NewState(baseConfig())
	loaded := baseConfig()
	loaded.TotalReps = 99
	s.ApplyLoadedResults(loaded, 42)

	cfg, simState, rep, _ := s.Snapshot()
	assert.Equal(t, uint32(99), cfg.TotalReps)
	assert.Equal(t, Finished, simState)
	assert.Equal(t, uint32(42), rep)
}

func TestState_SetMultiUserAndMode(t *testing.T) {
	s := NewState(baseConfig())
	s.SetMultiUser(true)
	_, _, _, multiUser := s.Snapshot()
	assert.True(t, multiUser)

	s.SetMode(ModeSummary)
	assert.Equal(t, ModeSummary, s.Mode())
}

func TestSimState_String(t *testing.T) {
	assert.Equal(t, "LOBBY", Lobby.String())
	assert.Equal(t, "RUNNING", Running.String())
	assert.Equal(t, "FINISHED", Finished.String())
	assert.Equal(t, "UNKNOWN", SimState(99).String())
}
