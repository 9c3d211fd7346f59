package anim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDisplayedValueEndpoints(t *testing.T) {
	require.Equal(t, 10.0, DisplayedValue(10, 50, 0, DefaultDuration))
	require.Equal(t, 50.0, DisplayedValue(10, 50, DefaultDuration, DefaultDuration))
	require.Equal(t, 50.0, DisplayedValue(10, 50, 2*DefaultDuration, DefaultDuration))
	require.Equal(t, 50.0, DisplayedValue(10, 50, time.Second, 0))
}

func TestDisplayedValueMidpoint(t *testing.T) {
	// cubic ease-in-out crosses exactly half way at t=0.5
	got := DisplayedValue(0, 100, 250*time.Millisecond, 500*time.Millisecond)
	require.InDelta(t, 50.0, got, 1e-9)
}

func TestDisplayedValueMonotonic(t *testing.T) {
	prev := -1.0
	for ms := 0; ms <= 500; ms += 25 {
		v := DisplayedValue(0, 100, time.Duration(ms)*time.Millisecond, 500*time.Millisecond)
		require.GreaterOrEqual(t, v, prev)
		require.GreaterOrEqual(t, v, 0.0)
		require.LessOrEqual(t, v, 100.0)
		prev = v
	}
}

func TestDisplayedValueDecreasing(t *testing.T) {
	// unfollow animates the count downward
	v := DisplayedValue(100, 99, 250*time.Millisecond, 500*time.Millisecond)
	require.Greater(t, v, 99.0)
	require.Less(t, v, 100.0)
}

func TestDisplayedCountRounds(t *testing.T) {
	require.Equal(t, 2, DisplayedCount(2, 3, 0, DefaultDuration))
	require.Equal(t, 3, DisplayedCount(2, 3, DefaultDuration, DefaultDuration))

	mid := DisplayedCount(0, 100, 250*time.Millisecond, 500*time.Millisecond)
	require.Equal(t, 50, mid)
}
