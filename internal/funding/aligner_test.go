package funding

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"fundingchart/internal/domain"
)

func sampleAt(ms int64, rate float64) domain.FundingSample {
	return domain.FundingSample{Time: time.UnixMilli(ms), Rate8h: rate}
}

func TestNearestRate_EmptyTimeline(t *testing.T) {
	a := NewAligner()
	assert.Equal(t, 0.0, a.NearestRate(time.Now()))
	assert.Equal(t, 0.0, a.LatestRate())
}

func TestNearestRate_Boundaries(t *testing.T) {
	a := NewAligner()
	a.SeedHistorical([]domain.FundingSample{
		sampleAt(100, 0.01),
		sampleAt(200, 0.02),
		sampleAt(300, 0.03),
	})

	// Before the first sample clamps to the first rate.
	assert.Equal(t, 0.01, a.NearestRate(time.UnixMilli(50)))
	assert.Equal(t, 0.01, a.NearestRate(time.UnixMilli(100)))

	// After the last sample clamps to the last rate.
	assert.Equal(t, 0.03, a.NearestRate(time.UnixMilli(300)))
	assert.Equal(t, 0.03, a.NearestRate(time.UnixMilli(9999)))
}

func TestNearestRate_MidpointFavorsEarlier(t *testing.T) {
	a := NewAligner()
	a.SeedHistorical([]domain.FundingSample{
		sampleAt(0, 1),
		sampleAt(100, 2),
	})

	// Exact midpoint ties resolve to the preceding sample.
	assert.Equal(t, 1.0, a.NearestRate(time.UnixMilli(50)))
	assert.Equal(t, 1.0, a.NearestRate(time.UnixMilli(49)))
	assert.Equal(t, 2.0, a.NearestRate(time.UnixMilli(51)))
}

func TestRefreshLive_OverridesHistoricalAtSameTimestamp(t *testing.T) {
	a := NewAligner()
	a.SeedHistorical([]domain.FundingSample{
		sampleAt(100, 0.01),
		sampleAt(200, 0.02),
	})
	a.RefreshLive([]domain.FundingSample{
		sampleAt(200, 0.05), // overrides the historical 0.02
		sampleAt(300, 0.06),
	})

	assert.Equal(t, 3, a.Len())
	assert.Equal(t, 0.05, a.NearestRate(time.UnixMilli(200)))
	assert.Equal(t, 0.06, a.NearestRate(time.UnixMilli(300)))

	// A later refresh replaces the previous live set entirely; the
	// historical value resurfaces when the override disappears.
	a.RefreshLive([]domain.FundingSample{sampleAt(300, 0.07)})
	assert.Equal(t, 0.02, a.NearestRate(time.UnixMilli(200)))
	assert.Equal(t, 0.07, a.NearestRate(time.UnixMilli(300)))
}

func TestLatestRate_PrefersAuthoritativeValue(t *testing.T) {
	a := NewAligner()
	a.SeedHistorical([]domain.FundingSample{sampleAt(100, 0.01)})

	// Without an explicit latest value, the newest merged sample is used.
	assert.Equal(t, 0.01, a.LatestRate())

	a.SetLatest(sampleAt(500, -0.02))
	assert.Equal(t, -0.02, a.LatestRate())

	// The authoritative value keeps winning even after a remerge.
	a.RefreshLive([]domain.FundingSample{sampleAt(600, 0.04)})
	assert.Equal(t, -0.02, a.LatestRate())
}
