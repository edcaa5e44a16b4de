// Package persistence implements the opaque save/load operations invoked by
// control-plane handlers (C11): SAVE_RESULTS, LOAD_RESULTS, and LOAD_WORLD.
// The on-disk/row format is explicitly out of core scope per spec.md §4.11;
// this package just needs *a* concrete, runnable default plus the pluggable
// interface the domain stack calls for.
package persistence

import "fmt"

// WorldRecord is the persisted shape of a grid.World.
type WorldRecord struct {
	Kind     uint8
	Width    int
	Height   int
	Obstacle []uint8
}

// ResultsRecord is the persisted shape of a full simulation: world, config,
// progress, and the three aggregate arrays.
type ResultsRecord struct {
	World      WorldRecord
	ProbUp     float64
	ProbDown   float64
	ProbLeft   float64
	ProbRight  float64
	K          uint64
	TotalReps  uint32
	CurrentRep uint32
	Trials     []uint32
	SumSteps   []uint64
	Successes  []uint32
}

// Store is the persistence interface consumed by the IPC handlers. Every
// method returns ok/err only; on success LoadResults/LoadWorld return a
// record whose dimensions the caller re-initializes world/aggregate to.
type Store interface {
	SaveResults(key string, rec ResultsRecord) error
	LoadResults(key string) (ResultsRecord, error)
	LoadWorld(key string) (WorldRecord, error)
}

// ErrNotFound is returned by LoadResults/LoadWorld when key has never been
// saved.
var ErrNotFound = fmt.Errorf("persistence: not found")
