package scheduler

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNextRunMidnightJST(t *testing.T) {
	d := &Daily{runHour: 0, logger: zerolog.Nop()}

	// 2024-05-01 10:00 JST -> next run is 2024-05-02 00:00 JST, which is
	// 2024-05-01 15:00 UTC.
	now := time.Date(2024, 5, 1, 1, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC), d.nextRun(now))
}

func TestNextRunSkipsCurrentInstant(t *testing.T) {
	d := &Daily{runHour: 0, logger: zerolog.Nop()}

	// Exactly at the run instant the next run is a full day away.
	now := time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2024, 5, 2, 15, 0, 0, 0, time.UTC), d.nextRun(now))
}

func TestNextRunCustomHour(t *testing.T) {
	d := &Daily{runHour: 4, logger: zerolog.Nop()}

	// 2024-05-01 01:00 JST with a 04:00 JST run hour -> later the same day.
	now := time.Date(2024, 4, 30, 16, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2024, 4, 30, 19, 0, 0, 0, time.UTC), d.nextRun(now))
}
