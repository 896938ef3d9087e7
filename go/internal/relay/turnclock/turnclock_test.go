package turnclock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relaygame/relay/go/internal/relay/turnclock"
)

func TestComputeOwnerIndex_RoundRobin(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	const players = 3
	const limit = 10

	tests := []struct {
		name    string
		elapsed time.Duration
		want    int
	}{
		{"first turn start", 0, 0},
		{"mid first turn", 5 * time.Minute, 0},
		{"just before hand-off", 9*time.Minute + 59*time.Second, 0},
		{"second turn", 12 * time.Minute, 1},
		{"third turn", 25 * time.Minute, 2},
		{"wraps back to first player", 65 * time.Minute, 0}, // floor(65/10)=6, 6 mod 3 = 0
		{"clock behind start clamps to zero", -5 * time.Minute, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := turnclock.ComputeOwnerIndex(t0, players, limit, t0.Add(tt.elapsed))
			require.True(t, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestComputeOwnerIndex_Deterministic(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	now := t0.Add(37 * time.Minute)

	first, ok := turnclock.ComputeOwnerIndex(t0, 4, 7, now)
	require.True(t, ok)
	for i := 0; i < 100; i++ {
		got, ok := turnclock.ComputeOwnerIndex(t0, 4, 7, now)
		require.True(t, ok)
		require.Equal(t, first, got)
	}
}

func TestComputeOwnerIndex_NoOwner(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	_, ok := turnclock.ComputeOwnerIndex(t0, 0, 10, t0.Add(time.Minute))
	require.False(t, ok, "zero players must yield no owner, not a division by zero")

	_, ok = turnclock.ComputeOwnerIndex(t0, 3, 0, t0.Add(time.Minute))
	require.False(t, ok, "non-positive time limit must yield no owner")
}

func TestRemaining(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.Equal(t, 10*time.Minute, turnclock.Remaining(t0, 10, t0))
	require.Equal(t, 8*time.Minute, turnclock.Remaining(t0, 10, t0.Add(12*time.Minute)))
	require.Equal(t, 30*time.Second, turnclock.Remaining(t0, 1, t0.Add(90*time.Second)))
	require.Equal(t, 10*time.Minute, turnclock.Remaining(t0, 10, t0.Add(-time.Minute)))
}
