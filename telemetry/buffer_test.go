package telemetry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferBasicOperations(t *testing.T) {
	buf := NewSampleBuffer(3)

	_, ok := buf.Latest()
	assert.False(t, ok, "empty buffer has no latest sample")

	require.NoError(t, buf.Append(makeSample(1)))
	require.NoError(t, buf.Append(makeSample(2)))

	assert.Equal(t, 2, buf.Len())
	assert.Equal(t, 3, buf.Capacity())

	latest, ok := buf.Latest()
	require.True(t, ok)
	assert.Equal(t, "s-2", latest.ID)
}

func TestBufferNeverExceedsCapacityAndEvictsFIFO(t *testing.T) {
	buf := NewSampleBuffer(5)

	for i := 0; i < 100; i++ {
		require.NoError(t, buf.Append(makeSample(i)))
		assert.LessOrEqual(t, buf.Len(), 5)
	}

	assert.Equal(t, 5, buf.Len())
	assert.Equal(t, int64(95), buf.Stats().Evictions())

	// Survivors are the 5 newest in insertion order
	snap := buf.Snapshot()
	require.Len(t, snap, 5)
	for i, s := range snap {
		assert.Equal(t, fmt.Sprintf("s-%d", 95+i), s.ID)
	}
}

func TestBufferSnapshotOrder(t *testing.T) {
	buf := NewSampleBuffer(10)
	for i := 0; i < 4; i++ {
		require.NoError(t, buf.Append(makeSample(i)))
	}

	snap := buf.Snapshot()
	require.Len(t, snap, 4)
	for i, s := range snap {
		assert.Equal(t, fmt.Sprintf("s-%d", i), s.ID, "insertion order preserved")
	}
}

func TestBufferRecentNewestFirst(t *testing.T) {
	buf := NewSampleBuffer(10)
	for i := 0; i < 6; i++ {
		require.NoError(t, buf.Append(makeSample(i)))
	}

	recent := buf.Recent(3)
	require.Len(t, recent, 3)
	assert.Equal(t, "s-5", recent[0].ID)
	assert.Equal(t, "s-4", recent[1].ID)
	assert.Equal(t, "s-3", recent[2].ID)

	// Asking for more than available returns what exists
	assert.Len(t, buf.Recent(100), 6)
	assert.Nil(t, buf.Recent(0))
}

func TestBufferRejectsNilAndClosed(t *testing.T) {
	buf := NewSampleBuffer(2)
	require.Error(t, buf.Append(nil))

	require.NoError(t, buf.Append(makeSample(1)))
	require.NoError(t, buf.Close())
	require.Error(t, buf.Append(makeSample(2)))

	// Reads still work after close
	latest, ok := buf.Latest()
	require.True(t, ok)
	assert.Equal(t, "s-1", latest.ID)
}

func TestBufferStats(t *testing.T) {
	buf := NewSampleBuffer(2)
	require.NoError(t, buf.Append(makeSample(1)))
	require.NoError(t, buf.Append(makeSample(2)))
	require.NoError(t, buf.Append(makeSample(3)))

	stats := buf.Stats().Summary()
	assert.Equal(t, int64(3), stats.Writes)
	assert.Equal(t, int64(1), stats.Evictions)
	assert.Equal(t, int64(2), stats.CurrentSize)
	assert.Equal(t, int64(2), stats.MaxSize)
}

// TestBufferConcurrentAccess exercises the single-writer/many-reader pattern the
// scheduler relies on. Run with -race.
func TestBufferConcurrentAccess(t *testing.T) {
	buf := NewSampleBuffer(64)

	var wg sync.WaitGroup
	done := make(chan struct{})

	// Single writer, as in the ingestion loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			_ = buf.Append(makeSample(i))
		}
		close(done)
	}()

	// Concurrent readers, as in the physics and inference loops
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					if s, ok := buf.Latest(); ok {
						require.NotNil(t, s)
					}
					_ = buf.Snapshot()
				}
			}
		}()
	}

	wg.Wait()
	assert.LessOrEqual(t, buf.Len(), 64)
}
