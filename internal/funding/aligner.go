// Package funding maintains one merged, ascending funding-rate timeline and
// answers nearest-time queries against it.
package funding

import (
	"sort"
	"sync"
	"time"

	"fundingchart/internal/domain"
)

// Aligner merges a large pre-seeded historical funding dataset with a
// smaller, periodically refreshed live dataset into a single sorted
// timeline. The merge happens once per refresh, not per candle query; live
// entries override historical ones at identical timestamps.
type Aligner struct {
	mu         sync.RWMutex
	historical []domain.FundingSample
	live       []domain.FundingSample
	merged     []domain.FundingSample
	latest     domain.FundingSample
	hasLatest  bool
}

func NewAligner() *Aligner {
	return &Aligner{}
}

// SeedHistorical installs the bulk historical dataset. Loaded once in full
// at startup; triggers a remerge.
func (a *Aligner) SeedHistorical(samples []domain.FundingSample) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.historical = append([]domain.FundingSample(nil), samples...)
	a.remerge()
}

// RefreshLive replaces the live/API dataset and remerges the timeline.
func (a *Aligner) RefreshLive(samples []domain.FundingSample) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.live = append([]domain.FundingSample(nil), samples...)
	a.remerge()
}

// SetLatest records the most recent authoritative funding value, delivered
// by the current-funding endpoint on its own cadence. It feeds LatestRate
// but does not enter the merged timeline.
func (a *Aligner) SetLatest(sample domain.FundingSample) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.latest = sample
	a.hasLatest = true
}

// LatestRate returns the most recent authoritative funding rate. For the
// trailing candle this value is preferred over the stored series, which may
// lag by a refresh interval. Falls back to the newest merged sample.
func (a *Aligner) LatestRate() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.hasLatest {
		return a.latest.Rate8h
	}
	if n := len(a.merged); n > 0 {
		return a.merged[n-1].Rate8h
	}
	return 0
}

// NearestRate returns the rate of the sample closest in time to target.
// An empty timeline yields 0. Queries outside the timeline clamp to the
// first or last sample. A tie between the two straddling neighbors resolves
// to the earlier one.
func (a *Aligner) NearestRate(target time.Time) float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	n := len(a.merged)
	if n == 0 {
		return 0
	}
	if !target.After(a.merged[0].Time) {
		return a.merged[0].Rate8h
	}
	if !target.Before(a.merged[n-1].Time) {
		return a.merged[n-1].Rate8h
	}

	// Insertion point: first sample at or after target.
	i := sort.Search(n, func(i int) bool {
		return !a.merged[i].Time.Before(target)
	})

	before := a.merged[i-1]
	after := a.merged[i]
	if target.Sub(before.Time) <= after.Time.Sub(target) {
		return before.Rate8h
	}
	return after.Rate8h
}

// Len reports the size of the merged timeline.
func (a *Aligner) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.merged)
}

// remerge rebuilds the merged timeline. Caller must hold the write lock.
func (a *Aligner) remerge() {
	byTime := make(map[int64]domain.FundingSample, len(a.historical)+len(a.live))
	for _, s := range a.historical {
		byTime[s.Time.UnixMilli()] = s
	}
	// Live entries win at identical timestamps.
	for _, s := range a.live {
		byTime[s.Time.UnixMilli()] = s
	}

	merged := make([]domain.FundingSample, 0, len(byTime))
	for _, s := range byTime {
		merged = append(merged, s)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Time.Before(merged[j].Time)
	})
	a.merged = merged
}
