package persistence

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() ResultsRecord {
	return ResultsRecord{
		World:      WorldRecord{Kind: 2, Width: 4, Height: 4, Obstacle: []uint8{0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}},
		ProbUp:     0.25,
		ProbDown:   0.25,
		ProbLeft:   0.25,
		ProbRight:  0.25,
		K:          1000,
		TotalReps:  50,
		CurrentRep: 50,
		Trials:     []uint32{1, 2, 3, 4},
		SumSteps:   []uint64{10, 20, 30, 40},
		Successes:  []uint32{1, 1, 2, 3},
	}
}

func TestFileStore_SaveLoadResultsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)

	rec := sampleRecord()
	require.NoError(t, fs.SaveResults("run-1", rec))

	got, err := fs.LoadResults("run-1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestFileStore_LoadWorldReturnsOnlyGeometry(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)

	rec := sampleRecord()
	require.NoError(t, fs.SaveResults("run-2", rec))

	world, err := fs.LoadWorld("run-2")
	require.NoError(t, err)
	assert.Equal(t, rec.World, world)
}

func TestFileStore_LoadMissingKeyReturnsErrNotFound(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)

	_, err = fs.LoadResults("does-not-exist")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = fs.LoadWorld("does-not-exist")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFileStore_SaveOverwritesPriorKey(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)

	first := sampleRecord()
	require.NoError(t, fs.SaveResults("run-3", first))

	second := sampleRecord()
	second.CurrentRep = 99
	second.TotalReps = 200
	require.NoError(t, fs.SaveResults("run-3", second))

	got, err := fs.LoadResults("run-3")
	require.NoError(t, err)
	assert.Equal(t, uint32(99), got.CurrentRep)
	assert.Equal(t, uint32(200), got.TotalReps)
}

func TestFileStore_KeyIsBasenamedAgainstPathTraversal(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)

	rec := sampleRecord()
	require.NoError(t, fs.SaveResults("../escape", rec))

	got, err := fs.LoadResults("../escape")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}
