package history

import (
	"time"

	"fundingchart/internal/domain"
	"fundingchart/internal/funding"
	"fundingchart/internal/sentiment"
)

// Compose turns raw market batches into chart candles. The futures batch
// drives the series; a spot record with the same openTime is attached when
// present. Closed candles take the funding rate nearest their openTime; the
// last candle bypasses the lookup and uses the latest authoritative live
// value, which the stored series may lag behind.
func Compose(futures, spot []domain.RawCandle, rates *funding.Aligner) []domain.Candle {
	return compose(futures, spot, rates, true)
}

// ComposeClosed composes candles that are all already closed -- backfill and
// pagination batches -- so every candle takes the nearest stored rate.
func ComposeClosed(futures, spot []domain.RawCandle, rates *funding.Aligner) []domain.Candle {
	return compose(futures, spot, rates, false)
}

func compose(futures, spot []domain.RawCandle, rates *funding.Aligner, liveTail bool) []domain.Candle {
	if len(futures) == 0 {
		return nil
	}

	spotByOpen := make(map[int64]domain.RawCandle, len(spot))
	for _, c := range spot {
		spotByOpen[c.OpenTime.UnixMilli()] = c
	}

	candles := make([]domain.Candle, 0, len(futures))
	last := len(futures) - 1
	for i, f := range futures {
		var rate float64
		if liveTail && i == last {
			rate = rates.LatestRate()
		} else {
			rate = rates.NearestRate(f.OpenTime)
		}
		c := NewCandle(f, rate)
		if s, ok := spotByOpen[f.OpenTime.UnixMilli()]; ok {
			c.SpotOpen = s.Open
			c.SpotHigh = s.High
			c.SpotLow = s.Low
			c.SpotClose = s.Close
		}
		candles = append(candles, c)
	}
	return candles
}

// NewCandle builds a classified candle from a futures OHLC record.
func NewCandle(f domain.RawCandle, rate8h float64) domain.Candle {
	index := sentiment.Index(rate8h)
	closeTime := f.CloseTime
	if closeTime.IsZero() {
		closeTime = f.OpenTime.Add(domain.CandleWidth)
	}
	return domain.Candle{
		OpenTime:       f.OpenTime,
		CloseTime:      closeTime,
		Open:           f.Open,
		High:           f.High,
		Low:            f.Low,
		Close:          f.Close,
		FundingRate8h:  rate8h,
		SentimentIndex: index,
		Color:          sentiment.ColorFor(index),
	}
}

// Reclassify recomputes the funding-derived fields of an open candle against
// the latest authoritative rate, leaving the OHLC untouched.
func Reclassify(c domain.Candle, rate8h float64) domain.Candle {
	c.FundingRate8h = rate8h
	c.SentimentIndex = sentiment.Index(rate8h)
	c.Color = sentiment.ColorFor(c.SentimentIndex)
	return c
}

// ClipBefore returns the candles opening strictly before the bound,
// preserving order. Used when merging a background backfill so it never
// touches candles already owned by the store.
func ClipBefore(candles []domain.Candle, bound time.Time) []domain.Candle {
	out := candles[:0:0]
	for _, c := range candles {
		if c.OpenTime.Before(bound) {
			out = append(out, c)
		}
	}
	return out
}
