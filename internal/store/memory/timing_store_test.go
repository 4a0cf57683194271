package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/htmx-go-timer/internal/store"
)

func TestMemoryTimingStore_StartTiming(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("start first timing", func(t *testing.T) {
		st := NewTimingStore()
		ctx := context.Background()

		timing, err := st.StartTiming(ctx, start)
		require.NoError(t, err)
		require.NotEqual(t, [16]byte{}, [16]byte(timing.ID))
		require.Equal(t, start, timing.Start)
		require.True(t, timing.Running())
	})

	t.Run("start while running returns error", func(t *testing.T) {
		st := NewTimingStore()
		ctx := context.Background()

		_, err := st.StartTiming(ctx, start)
		require.NoError(t, err)

		_, err = st.StartTiming(ctx, start.Add(time.Second))
		require.ErrorIs(t, err, store.ErrTimingRunning)

		timings, err := st.List(ctx)
		require.NoError(t, err)
		require.Len(t, timings, 1)
	})

	t.Run("start after stop appends", func(t *testing.T) {
		st := NewTimingStore()
		ctx := context.Background()

		_, err := st.StartTiming(ctx, start)
		require.NoError(t, err)
		_, err = st.StopTiming(ctx, start.Add(time.Second))
		require.NoError(t, err)
		second, err := st.StartTiming(ctx, start.Add(2*time.Second))
		require.NoError(t, err)

		latest, err := st.Latest(ctx)
		require.NoError(t, err)
		require.Equal(t, second.ID, latest.ID)
	})
}

func TestMemoryTimingStore_StopTiming(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("stop without timings", func(t *testing.T) {
		st := NewTimingStore()

		_, err := st.StopTiming(context.Background(), start)
		require.ErrorIs(t, err, store.ErrNoTimings)
	})

	t.Run("stop running timing", func(t *testing.T) {
		st := NewTimingStore()
		ctx := context.Background()

		_, err := st.StartTiming(ctx, start)
		require.NoError(t, err)

		stopped, err := st.StopTiming(ctx, start.Add(3*time.Second))
		require.NoError(t, err)
		require.False(t, stopped.Running())
		require.Equal(t, 3*time.Second, stopped.Elapsed(time.Now()))
	})

	t.Run("stop twice returns error", func(t *testing.T) {
		st := NewTimingStore()
		ctx := context.Background()

		_, err := st.StartTiming(ctx, start)
		require.NoError(t, err)
		_, err = st.StopTiming(ctx, start.Add(time.Second))
		require.NoError(t, err)

		_, err = st.StopTiming(ctx, start.Add(2*time.Second))
		require.ErrorIs(t, err, store.ErrTimingStopped)
	})
}

func TestMemoryTimingStore_Latest(t *testing.T) {
	st := NewTimingStore()
	ctx := context.Background()

	_, err := st.Latest(ctx)
	require.ErrorIs(t, err, store.ErrNoTimings)

	started, err := st.StartTiming(ctx, time.Now())
	require.NoError(t, err)

	latest, err := st.Latest(ctx)
	require.NoError(t, err)

	// mutating the copy must not leak into the store
	latest.Stop = time.Now()
	again, err := st.Latest(ctx)
	require.NoError(t, err)
	require.True(t, again.Running())
	require.Equal(t, started.ID, again.ID)
}

func TestMemoryTimingStore_List(t *testing.T) {
	st := NewTimingStore()
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	timings, err := st.List(ctx)
	require.NoError(t, err)
	require.Empty(t, timings)

	for i := range 3 {
		at := start.Add(time.Duration(i) * time.Minute)
		_, err := st.StartTiming(ctx, at)
		require.NoError(t, err)
		_, err = st.StopTiming(ctx, at.Add(time.Second))
		require.NoError(t, err)
	}

	timings, err = st.List(ctx)
	require.NoError(t, err)
	require.Len(t, timings, 3)
	for i, timing := range timings {
		require.Equal(t, start.Add(time.Duration(i)*time.Minute), timing.Start)
	}
}

func TestMemoryTimingStore_ConcurrentStart(t *testing.T) {
	st := NewTimingStore()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := st.StartTiming(ctx, time.Now()); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, success)
}
