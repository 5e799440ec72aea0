package stamina

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLevel(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	period := 24 * time.Minute

	tests := []struct {
		name     string
		baseline int
		elapsed  time.Duration
		want     int
	}{
		{"no time elapsed", 10, 0, 10},
		{"one period", 10, 24 * time.Minute, 11},
		{"just under one period", 10, 23 * time.Minute, 10},
		{"thirty periods", 10, 720 * time.Minute, 40},
		{"capped", 10, 2000 * time.Minute, 60},
		{"already at cap", 60, 24 * time.Minute, 60},
		{"clock skew", 10, -time.Hour, 10},
		{"baseline above cap clamps", 70, 0, 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Level(tt.baseline, now.Add(-tt.elapsed), now, period, 60)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestLevelZeroUpdatedAt(t *testing.T) {
	now := time.Now()
	// Never stamped: the baseline is returned as-is, even above cap.
	require.Equal(t, 17, Level(17, time.Time{}, now, 24*time.Minute, 60))
	require.Equal(t, 70, Level(70, time.Time{}, now, 24*time.Minute, 60))
}

func TestLevelDeterministic(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	at := now.Add(-719 * time.Minute)
	a := Level(10, at, now, 24*time.Minute, 60)
	b := Level(10, at, now, 24*time.Minute, 60)
	require.Equal(t, a, b)
	require.Equal(t, 39, a) // floor(719/24) = 29
}
