package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundingchart/internal/domain"
	"fundingchart/internal/ports"
)

func candleAt(ms int64, close float64) domain.Candle {
	open := time.UnixMilli(ms)
	return domain.Candle{
		OpenTime:  open,
		CloseTime: open.Add(domain.CandleWidth),
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
	}
}

func assertStrictlyAscending(t *testing.T, candles []domain.Candle) {
	t.Helper()
	for i := 1; i < len(candles); i++ {
		assert.True(t, candles[i].OpenTime.After(candles[i-1].OpenTime),
			"series not strictly ascending at index %d", i)
	}
}

func TestInitialize(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Initialize([]domain.Candle{candleAt(100, 1), candleAt(200, 2)}))
	assert.Equal(t, 2, s.Len())

	// Duplicate openTime is rejected.
	err := s.Initialize([]domain.Candle{candleAt(100, 1), candleAt(100, 2)})
	assert.ErrorIs(t, err, ports.ErrSeriesConflict)

	// Descending input is rejected.
	err = s.Initialize([]domain.Candle{candleAt(200, 1), candleAt(100, 2)})
	assert.ErrorIs(t, err, ports.ErrSeriesConflict)
}

func TestPrependOlder(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Initialize([]domain.Candle{candleAt(300, 3), candleAt(400, 4)}))

	require.NoError(t, s.PrependOlder([]domain.Candle{candleAt(100, 1), candleAt(200, 2)}))
	snap := s.Snapshot()
	require.Len(t, snap, 4)
	assert.Equal(t, int64(100), snap[0].OpenTime.UnixMilli())
	assertStrictlyAscending(t, snap)

	oldest, ok := s.OldestTime()
	require.True(t, ok)
	assert.Equal(t, int64(100), oldest.UnixMilli())
}

func TestPrependOlder_BoundaryDuplicateFavorsLoadedData(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Initialize([]domain.Candle{candleAt(300, 3)}))

	// The batch overlaps the head at t=300 with a different close; the
	// already-loaded candle must win.
	require.NoError(t, s.PrependOlder([]domain.Candle{candleAt(200, 2), candleAt(300, 99)}))

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, 3.0, snap[1].Close)
	assertStrictlyAscending(t, snap)
}

func TestPrependOlder_EmptyStore(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.PrependOlder([]domain.Candle{candleAt(100, 1)}))
	assert.Equal(t, 1, s.Len())
}

func TestUpdateTrailing(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Initialize([]domain.Candle{candleAt(100, 1), candleAt(200, 2)}))

	updated := candleAt(200, 5)
	updated.High = 6
	require.NoError(t, s.UpdateTrailing(updated))

	latest, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, 5.0, latest.Close)
	assert.Equal(t, 6.0, latest.High)
	assert.Equal(t, 2, s.Len())
}

func TestUpdateTrailing_RejectsMismatchedOpenTime(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Initialize([]domain.Candle{candleAt(100, 1)}))

	err := s.UpdateTrailing(candleAt(200, 2))
	assert.ErrorIs(t, err, ports.ErrSeriesConflict)

	empty := NewStore()
	err = empty.UpdateTrailing(candleAt(100, 1))
	assert.ErrorIs(t, err, ports.ErrSeriesEmpty)
}

func TestAppendNew(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.AppendNew(candleAt(100, 1)))
	require.NoError(t, s.AppendNew(candleAt(200, 2)))

	// Equal and older openTimes are rejected.
	assert.ErrorIs(t, s.AppendNew(candleAt(200, 3)), ports.ErrSeriesConflict)
	assert.ErrorIs(t, s.AppendNew(candleAt(150, 3)), ports.ErrSeriesConflict)
	assert.Equal(t, 2, s.Len())
}

func TestAt(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Initialize([]domain.Candle{candleAt(100, 1), candleAt(200, 2), candleAt(300, 3)}))

	c, ok := s.At(time.UnixMilli(200))
	require.True(t, ok)
	assert.Equal(t, 2.0, c.Close)

	_, ok = s.At(time.UnixMilli(250))
	assert.False(t, ok)
	_, ok = s.At(time.UnixMilli(50))
	assert.False(t, ok)
}

// Any interleaving of prepend/append/update must keep the series strictly
// ascending with unique openTimes.
func TestMutationSequenceKeepsInvariants(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Initialize([]domain.Candle{candleAt(500, 5), candleAt(600, 6)}))

	require.NoError(t, s.AppendNew(candleAt(700, 7)))
	require.NoError(t, s.PrependOlder([]domain.Candle{candleAt(300, 3), candleAt(400, 4)}))
	require.NoError(t, s.UpdateTrailing(candleAt(700, 7.5)))
	require.NoError(t, s.PrependOlder([]domain.Candle{candleAt(100, 1), candleAt(200, 2)}))
	require.NoError(t, s.AppendNew(candleAt(800, 8)))

	snap := s.Snapshot()
	require.Len(t, snap, 8)
	assertStrictlyAscending(t, snap)

	seen := make(map[int64]bool, len(snap))
	for _, c := range snap {
		key := c.OpenTime.UnixMilli()
		assert.False(t, seen[key], "duplicate openTime %d", key)
		seen[key] = true
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Initialize([]domain.Candle{candleAt(100, 1)}))

	snap := s.Snapshot()
	snap[0].Close = 42

	latest, _ := s.Latest()
	assert.Equal(t, 1.0, latest.Close)
}
