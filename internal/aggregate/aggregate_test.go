package aggregate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidDimensions(t *testing.T) {
	_, err := New(0, 4)
	assert.Error(t, err)
	_, err = New(4, 0)
	assert.Error(t, err)
}

func TestStore_Update(t *testing.T) {
	s, err := New(4, 4)
	require.NoError(t, err)

	s.Update(0, 10, true, true)
	assert.Equal(t, uint32(1), s.Trials()[0])
	assert.Equal(t, uint64(10), s.SumSteps()[0])
	assert.Equal(t, uint32(1), s.Successes()[0])

	// a trial that never reached the origin still counts but contributes no
	// steps and no success.
	s.Update(0, 999, false, false)
	assert.Equal(t, uint32(2), s.Trials()[0])
	assert.Equal(t, uint64(10), s.SumSteps()[0])
	assert.Equal(t, uint32(1), s.Successes()[0])
}

func TestStore_Clear(t *testing.T) {
	s, err := New(2, 2)
	require.NoError(t, err)

	s.Update(0, 5, true, true)
	s.Update(3, 7, true, false)
	s.Clear()

	for i := 0; i < s.CellCount(); i++ {
		assert.Zero(t, s.Trials()[i])
		assert.Zero(t, s.SumSteps()[i])
		assert.Zero(t, s.Successes()[i])
	}
}

func TestStore_SuccessesNeverExceedTrials(t *testing.T) {
	s, err := New(1, 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update(0, 3, true, true)
		}()
	}
	wg.Wait()

	assert.Equal(t, uint32(200), s.Trials()[0])
	assert.Equal(t, uint32(200), s.Successes()[0])
	assert.LessOrEqual(t, s.Successes()[0], s.Trials()[0])
}

func TestStore_WidthHeightCellCount(t *testing.T) {
	s, err := New(5, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, s.Width())
	assert.Equal(t, 3, s.Height())
	assert.Equal(t, 15, s.CellCount())
}
