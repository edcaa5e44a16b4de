package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidDimensions(t *testing.T) {
	_, err := New(Wrap, 0, 4)
	assert.Error(t, err)

	_, err = New(Wrap, 4, -1)
	assert.Error(t, err)
}

func TestWorld_IndexCoordsRoundTrip(t *testing.T) {
	w, err := New(Wrap, 5, 3)
	require.NoError(t, err)

	for y := 0; y < w.Height; y++ {
		for x := 0; x < w.Width; x++ {
			idx := w.Index(x, y)
			p := w.Coords(idx)
			assert.Equal(t, x, p.X)
			assert.Equal(t, y, p.Y)
		}
	}
}

func TestWorld_WrapPoint(t *testing.T) {
	w, err := New(Wrap, 4, 4)
	require.NoError(t, err)

	assert.Equal(t, Point{X: 0, Y: 0}, w.WrapPoint(Point{X: 4, Y: 4}))
	assert.Equal(t, Point{X: 3, Y: 3}, w.WrapPoint(Point{X: -1, Y: -1}))
	assert.Equal(t, Point{X: 1, Y: 2}, w.WrapPoint(Point{X: 1, Y: 2}))
}

func TestWorld_IsObstacleXY_OutOfRangeIsBlocked(t *testing.T) {
	w, err := New(Obstacles, 4, 4)
	require.NoError(t, err)

	assert.True(t, w.IsObstacleXY(-1, 0))
	assert.True(t, w.IsObstacleXY(0, 10))
	assert.False(t, w.IsObstacleXY(0, 0))
}

func TestWorld_SetObstacle(t *testing.T) {
	w, err := New(Obstacles, 4, 4)
	require.NoError(t, err)

	w.SetObstacle(2, 2, true)
	assert.True(t, w.IsObstacleXY(2, 2))

	w.SetObstacle(2, 2, false)
	assert.False(t, w.IsObstacleXY(2, 2))

	// out of range is a no-op, not a panic
	w.SetObstacle(-1, -1, true)
}

func TestGenerateObstacles_OriginAlwaysFree(t *testing.T) {
	for _, seed := range []uint32{1, 42, 999, 0xDEADBEEF} {
		w, err := New(Obstacles, 16, 16)
		require.NoError(t, err)
		w.GenerateObstacles(40, seed)
		assert.False(t, w.IsObstacleXY(0, 0), "seed %d left origin blocked", seed)
	}
}

func TestGenerateObstacles_AllFreeCellsReachable(t *testing.T) {
	for _, seed := range []uint32{1, 7, 1234, 0xCAFEBABE} {
		for _, pct := range []int{0, 10, 30, 60, 90} {
			w, err := New(Obstacles, 12, 12)
			require.NoError(t, err)
			w.GenerateObstacles(pct, seed)
			assert.True(t, w.AllFreeReachable(), "seed %d pct %d left unreachable free cells", seed, pct)
		}
	}
}

func TestGenerateObstacles_Deterministic(t *testing.T) {
	w1, err := New(Obstacles, 10, 10)
	require.NoError(t, err)
	w1.GenerateObstacles(25, 777)

	w2, err := New(Obstacles, 10, 10)
	require.NoError(t, err)
	w2.GenerateObstacles(25, 777)

	assert.Equal(t, w1.Obstacle, w2.Obstacle)
}

func TestGenerateObstacles_PercentClamped(t *testing.T) {
	w, err := New(Obstacles, 8, 8)
	require.NoError(t, err)
	w.GenerateObstacles(500, 1)
	// fully clamped to 100% would leave only the origin free, but repair
	// must still guarantee reachability for whatever stays free.
	assert.True(t, w.AllFreeReachable())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "WRAP", Wrap.String())
	assert.Equal(t, "OBSTACLES", Obstacles.String())
	assert.Contains(t, Kind(99).String(), "UNKNOWN")
}
