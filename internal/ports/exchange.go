package ports

import (
	"context"
	"time"

	"fundingchart/internal/domain"
)

// MarketDataClient defines the REST interface for pulling historical market
// data from an exchange. This abstraction decouples the chart core from any
// specific exchange implementation.
type MarketDataClient interface {
	// GetKlines retrieves up to limit raw candles for the given market,
	// sorted oldest first. A non-zero endTime bounds the batch to candles
	// opening no later than endTime; the zero value returns the newest batch.
	GetKlines(ctx context.Context, market domain.Market, symbol, interval string, limit int, endTime time.Time) ([]domain.RawCandle, error)

	// GetFundingRateHistory retrieves up to limit of the most recent funding
	// settlements for the symbol, sorted oldest first.
	GetFundingRateHistory(ctx context.Context, symbol string, limit int) ([]domain.FundingSample, error)

	// GetCurrentFundingRate retrieves the latest funding rate for the symbol.
	// Implementations fall back to the newest history record when the
	// primary source does not carry the field.
	GetCurrentFundingRate(ctx context.Context, symbol string) (domain.FundingSample, error)
}

// PriceStreamer opens live price streams. Handlers are invoked once per
// message; implementations own reconnection and report a permanently dead
// stream by closing doneCh.
type PriceStreamer interface {
	// StreamSpotPrice starts a stream of last-traded spot prices.
	// Returns channels to control the stream (doneCh, stopCh) or an error if
	// the first connection attempt cannot be scheduled.
	StreamSpotPrice(ctx context.Context, symbol string, handler func(price float64, ts time.Time), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error)

	// StreamMarkPrice starts a stream of futures mark prices.
	StreamMarkPrice(ctx context.Context, symbol string, handler func(price float64, ts time.Time), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error)
}
