// Package anim provides the pure counter interpolation behind animated
// follower and like counts, decoupled from any rendering framework.
package anim

import (
	"math"
	"time"
)

// DefaultDuration matches the counter transition length used on the
// profile screens.
const DefaultDuration = 500 * time.Millisecond

// DisplayedValue returns the value to display at elapsed time into a
// transition from start to target. Easing is cubic ease-in-out; the result
// is clamped to the transition endpoints.
func DisplayedValue(start, target float64, elapsed, duration time.Duration) float64 {
	if duration <= 0 || elapsed >= duration {
		return target
	}
	if elapsed <= 0 {
		return start
	}
	t := float64(elapsed) / float64(duration)
	return start + (target-start)*easeInOutCubic(t)
}

// DisplayedCount is DisplayedValue rounded to the nearest integer, for
// whole-number counters.
func DisplayedCount(start, target int, elapsed, duration time.Duration) int {
	return int(math.Round(DisplayedValue(float64(start), float64(target), elapsed, duration)))
}

func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}
