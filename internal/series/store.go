// Package series holds the authoritative ordered candle sequence. It is the
// single mutation point of the chart: every write is validated against the
// current state so the series stays strictly ascending by openTime with no
// duplicates and at most one mutable trailing element, regardless of which
// writer got there first.
package series

import (
	"fmt"
	"sync"
	"time"

	"fundingchart/internal/domain"
	"fundingchart/internal/ports"
)

// Store is the in-memory candle series. Safe for concurrent use; readers
// always observe a fully applied mutation, never a half-updated tail.
type Store struct {
	mu      sync.RWMutex
	candles []domain.Candle
}

func NewStore() *Store {
	return &Store{}
}

// Initialize sets the series to the given candles, replacing any prior
// content. The input must be strictly ascending by openTime.
func (s *Store) Initialize(candles []domain.Candle) error {
	for i := 1; i < len(candles); i++ {
		if !candles[i].OpenTime.After(candles[i-1].OpenTime) {
			return fmt.Errorf("%w: initialize input not strictly ascending at index %d (%s >= %s)",
				ports.ErrSeriesConflict, i, candles[i-1].OpenTime, candles[i].OpenTime)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.candles = append([]domain.Candle(nil), candles...)
	return nil
}

// PrependOlder merges candles at the head of the series. Every candle must
// be strictly older than the current earliest; a duplicate openTime at the
// boundary is dropped in favor of the already-loaded data.
func (s *Store) PrependOlder(candles []domain.Candle) error {
	for i := 1; i < len(candles); i++ {
		if !candles[i].OpenTime.After(candles[i-1].OpenTime) {
			return fmt.Errorf("%w: prepend input not strictly ascending at index %d",
				ports.ErrSeriesConflict, i)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.candles) == 0 {
		s.candles = append([]domain.Candle(nil), candles...)
		return nil
	}

	earliest := s.candles[0].OpenTime
	accepted := candles
	for len(accepted) > 0 && !accepted[len(accepted)-1].OpenTime.Before(earliest) {
		// Boundary overlap: already-loaded data wins.
		accepted = accepted[:len(accepted)-1]
	}
	if len(accepted) == 0 {
		return nil
	}

	merged := make([]domain.Candle, 0, len(accepted)+len(s.candles))
	merged = append(merged, accepted...)
	merged = append(merged, s.candles...)
	s.candles = merged
	return nil
}

// UpdateTrailing atomically replaces the last element. The replacement must
// carry the same openTime as the element it replaces.
func (s *Store) UpdateTrailing(candle domain.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.candles) == 0 {
		return fmt.Errorf("update trailing: %w", ports.ErrSeriesEmpty)
	}
	tail := len(s.candles) - 1
	if !candle.OpenTime.Equal(s.candles[tail].OpenTime) {
		return fmt.Errorf("%w: trailing update openTime %s does not match tail %s",
			ports.ErrSeriesConflict, candle.OpenTime, s.candles[tail].OpenTime)
	}
	s.candles[tail] = candle
	return nil
}

// AppendNew adds a new trailing element. Its openTime must be strictly
// greater than the previous tail's.
func (s *Store) AppendNew(candle domain.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.candles); n > 0 && !candle.OpenTime.After(s.candles[n-1].OpenTime) {
		return fmt.Errorf("%w: append openTime %s not after tail %s",
			ports.ErrSeriesConflict, candle.OpenTime, s.candles[n-1].OpenTime)
	}
	s.candles = append(s.candles, candle)
	return nil
}

// OldestTime returns the openTime of the earliest candle.
func (s *Store) OldestTime() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.candles) == 0 {
		return time.Time{}, false
	}
	return s.candles[0].OpenTime, true
}

// Latest returns the trailing candle.
func (s *Store) Latest() (domain.Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.candles) == 0 {
		return domain.Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

// At returns the candle opened at exactly openTime, for tooltip lookups.
func (s *Store) At(openTime time.Time) (domain.Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	// The series is sorted; a scan from the tail serves the common case of
	// tooltips over recent candles without an index structure.
	for i := len(s.candles) - 1; i >= 0; i-- {
		if s.candles[i].OpenTime.Equal(openTime) {
			return s.candles[i], true
		}
		if s.candles[i].OpenTime.Before(openTime) {
			break
		}
	}
	return domain.Candle{}, false
}

// Snapshot returns a copy of the full series, oldest first.
func (s *Store) Snapshot() []domain.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Candle(nil), s.candles...)
}

// Len reports the number of candles currently loaded.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.candles)
}
