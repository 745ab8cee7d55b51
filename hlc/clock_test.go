package hlc

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNowIsMonotonic(t *testing.T) {
	clock := NewClock(1)
	prev := clock.Now()
	for i := 0; i < 10_000; i++ {
		ts := clock.Now()
		require.Equal(t, 1, Compare(ts, prev), "timestamp %d went backwards", i)
		require.Greater(t, ts.ToVersion(), prev.ToVersion())
		prev = ts
	}
}

func TestNowConcurrentUnique(t *testing.T) {
	clock := NewClock(3)
	const workers, perWorker = 8, 500

	var mu sync.Mutex
	seen := make(map[uint64]struct{}, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				v := clock.Now().ToVersion()
				mu.Lock()
				seen[v] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

func TestUpdateMovesPastRemote(t *testing.T) {
	clock := NewClock(1)
	future := Timestamp{WallTime: time.Now().Add(time.Hour).UnixNano(), Logical: 7, NodeID: 2}

	updated := clock.Update(future)
	assert.Equal(t, future.WallTime, updated.WallTime)
	assert.Equal(t, int32(8), updated.Logical)

	next := clock.Now()
	assert.Equal(t, 1, Compare(next, future))
}

func TestUpdateWithPastRemote(t *testing.T) {
	clock := NewClock(1)
	before := clock.Now()

	updated := clock.Update(Timestamp{WallTime: 1, Logical: 1, NodeID: 9})
	assert.Equal(t, 1, Compare(updated, before))
}

func TestCompare(t *testing.T) {
	base := Timestamp{WallTime: 100, Logical: 5, NodeID: 2}

	tests := []struct {
		name     string
		other    Timestamp
		expected int
	}{
		{"equal", base, 0},
		{"later wall", Timestamp{WallTime: 101}, -1},
		{"earlier wall", Timestamp{WallTime: 99, Logical: 50}, 1},
		{"later logical", Timestamp{WallTime: 100, Logical: 6}, -1},
		{"higher node", Timestamp{WallTime: 100, Logical: 5, NodeID: 3}, -1},
		{"lower node", Timestamp{WallTime: 100, Logical: 5, NodeID: 1}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Compare(base, tt.other))
			assert.Equal(t, -tt.expected, Compare(tt.other, base))
		})
	}
}

func TestVersionRoundTrip(t *testing.T) {
	ts := Timestamp{WallTime: 1_700_000_000_123_456_789, Logical: 42, NodeID: 5}

	got := FromVersion(ts.ToVersion())
	assert.Equal(t, int64(1_700_000_000_123_000_000), got.WallTime)
	assert.Equal(t, int32(42), got.Logical)
	assert.Equal(t, uint64(5), got.NodeID)
	assert.Equal(t, ts.ToVersion(), got.ToVersion())
}

func TestVersionMasksNodeID(t *testing.T) {
	a := Timestamp{WallTime: 5_000_000, Logical: 1, NodeID: 1}
	b := Timestamp{WallTime: 5_000_000, Logical: 1, NodeID: 1 + NodeIDMask + 1}
	assert.Equal(t, a.ToVersion(), b.ToVersion())
}
