// Package trajectory runs single random-walk trials against a grid.World
// until the walker reaches the origin or exhausts a step cap.
package trajectory

import (
	"github.com/ocx/gridwalk/internal/grid"
	"github.com/ocx/gridwalk/internal/rng"
)

// MoveProbs holds the four move-direction probabilities. Accepted iff their
// sum lies in [0.999, 1.001].
type MoveProbs struct {
	Up, Down, Left, Right float64
}

// Valid reports whether the probabilities sum close enough to 1 to be
// accepted.
func (p MoveProbs) Valid() bool {
	sum := p.Up + p.Down + p.Left + p.Right
	return sum >= 0.999 && sum <= 1.001
}

// thresholds holds the cumulative distribution used to pick a direction from
// one uniform draw.
type thresholds struct {
	c1, c2, c3, c4 float64
}

func (p MoveProbs) thresholds() thresholds {
	c1 := p.Up
	c2 := c1 + p.Down
	c3 := c2 + p.Left
	c4 := c3 + p.Right
	return thresholds{c1: c1, c2: c2, c3: c3, c4: c4}
}

// Result is the outcome of one trajectory.
type Result struct {
	Steps         uint64
	ReachedOrigin bool
	SuccessLeqK   bool
}

// Run executes one random walk starting at start, up to K steps, using the
// given per-goroutine RNG source. It never shares rng with another caller.
func Run(w *grid.World, start grid.Point, probs MoveProbs, k uint64, r *rng.Source) Result {
	if !w.InBounds(start.X, start.Y) || w.IsObstacleXY(start.X, start.Y) {
		return Result{}
	}
	if start.X == 0 && start.Y == 0 {
		return Result{Steps: 0, ReachedOrigin: true, SuccessLeqK: true}
	}

	th := probs.thresholds()
	if th.c4 <= 0 {
		return Result{Steps: k, ReachedOrigin: false, SuccessLeqK: false}
	}

	cur := start
	for step := uint64(1); step <= k; step++ {
		draw := r.Float64() * th.c4

		next := cur
		switch {
		case draw < th.c1:
			next.Y--
		case draw < th.c2:
			next.Y++
		case draw < th.c3:
			next.X--
		default:
			next.X++
		}

		if w.Kind == grid.Wrap {
			next = w.WrapPoint(next)
		}

		if !w.InBounds(next.X, next.Y) || w.IsObstacleXY(next.X, next.Y) {
			// Walker stays in place for this step; it still counts toward K.
			next = cur
		}

		cur = next
		if cur.X == 0 && cur.Y == 0 {
			return Result{Steps: step, ReachedOrigin: true, SuccessLeqK: true}
		}
	}

	return Result{Steps: k, ReachedOrigin: false, SuccessLeqK: false}
}
