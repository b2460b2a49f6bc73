package domain

import "time"

// Market identifies which upstream market a raw candle came from.
type Market string

const (
	MarketSpot    Market = "spot"
	MarketFutures Market = "futures"
)

// CandleWidth is the fixed bucket size of the series. Funding settles every
// eight hours, so the chart buckets match that cadence.
const CandleWidth = 8 * time.Hour

// RawCandle is a single OHLC record as returned by a kline endpoint, before
// funding alignment and sentiment classification.
type RawCandle struct {
	OpenTime  time.Time // Start time of the interval
	CloseTime time.Time // End time of the interval
	Open      float64
	High      float64
	Low       float64
	Close     float64
}

// Candle is one fixed-duration bucket of the series. The futures OHLC is the
// colored candle body; the spot OHLC is attached when the spot market
// returned a record for the same openTime (zero values otherwise).
// Candles are write-once except the single trailing element, which the live
// reconciler mutates in place until its window closes.
type Candle struct {
	OpenTime  time.Time
	CloseTime time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64

	SpotOpen  float64
	SpotHigh  float64
	SpotLow   float64
	SpotClose float64

	FundingRate8h  float64
	SentimentIndex int
	Color          string
}

// Premium returns the percentage gap between the futures close and the spot
// close, or 0 when no spot record is attached.
func (c *Candle) Premium() float64 {
	if c.SpotClose == 0 {
		return 0
	}
	return (c.Close - c.SpotClose) / c.SpotClose * 100
}

// FundingSample is a timestamped funding observation. Rate8h is a percent
// per 8 hours (e.g. 0.01 means 0.01%); adapters convert upstream fractions
// at the edge.
type FundingSample struct {
	Time   time.Time
	Rate8h float64
}

// LivePricePoint is one coalesced live update. It is produced only once both
// the spot and the futures stream have delivered at least one value.
type LivePricePoint struct {
	Spot      float64
	Futures   float64
	Timestamp time.Time
}
