package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTiming_Elapsed(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("running uses now", func(t *testing.T) {
		timing := &Timing{Start: start}
		require.True(t, timing.Running())
		require.Equal(t, 42*time.Second, timing.Elapsed(start.Add(42*time.Second)))
	})

	t.Run("stopped ignores now", func(t *testing.T) {
		timing := &Timing{Start: start, Stop: start.Add(5 * time.Second)}
		require.False(t, timing.Running())
		require.Equal(t, 5*time.Second, timing.Elapsed(start.Add(time.Hour)))
	})
}
