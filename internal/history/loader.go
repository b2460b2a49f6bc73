// Package history fetches and deduplicates bulk OHLC batches from the spot
// and derivatives markets, chained backward by timestamp.
package history

import (
	"context"
	"fmt"
	"sort"
	"time"

	"fundingchart/internal/domain"
	"fundingchart/internal/ports"
)

// Loader pulls historical kline batches for one symbol from both markets.
// A failed or malformed batch degrades to an empty batch: partial history is
// preferred over no history.
type Loader struct {
	client    ports.MarketDataClient
	logger    ports.Logger
	symbol    string
	interval  string
	batchSize int
}

// Config holds the loader's dependencies and parameters.
type Config struct {
	Client    ports.MarketDataClient
	Logger    ports.Logger
	Symbol    string
	Interval  string
	BatchSize int
}

func NewLoader(cfg Config) (*Loader, error) {
	if cfg.Client == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for history loader")
	}
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("symbol is required for history loader")
	}
	if cfg.Interval == "" {
		cfg.Interval = "8h"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	return &Loader{
		client:    cfg.Client,
		logger:    cfg.Logger,
		symbol:    cfg.Symbol,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
	}, nil
}

// BatchSize reports the fixed per-call batch size.
func (l *Loader) BatchSize() int {
	return l.batchSize
}

// FetchBatch returns up to one batch of raw candles for the market, opening
// strictly before endExclusive; the zero value fetches the newest batch.
// Network or parse failures are logged and yield an empty batch.
func (l *Loader) FetchBatch(ctx context.Context, market domain.Market, endExclusive time.Time) []domain.RawCandle {
	end := endExclusive
	if !end.IsZero() {
		// The upstream bound is inclusive; step back one time unit.
		end = end.Add(-time.Millisecond)
	}

	batch, err := l.client.GetKlines(ctx, market, l.symbol, l.interval, l.batchSize, end)
	if err != nil {
		l.logger.Warn(ctx, "Historical batch fetch failed, degrading to empty batch", map[string]interface{}{
			"market":       market,
			"symbol":       l.symbol,
			"endExclusive": endExclusive,
			"error":        err.Error(),
		})
		return nil
	}
	return sortByOpenTime(dedupe(batch))
}

// LoadHistory chains up to maxBatches backward fetches for the market,
// starting before the given bound (zero fetches from the newest candle).
// Chaining stops when a batch comes back empty.
func (l *Loader) LoadHistory(ctx context.Context, market domain.Market, before time.Time, maxBatches int) []domain.RawCandle {
	var batches [][]domain.RawCandle
	end := before

	for i := 0; i < maxBatches; i++ {
		batch := l.FetchBatch(ctx, market, end)
		if len(batch) == 0 {
			break
		}
		batches = append(batches, batch)
		end = batch[0].OpenTime
		if len(batch) < l.batchSize {
			// Short batch: the upstream has no further history.
			break
		}
	}

	// Reverse so oldest-fetched batches come last: fetch order decides who
	// wins a duplicate openTime, later fetches override earlier ones.
	for i, j := 0, len(batches)-1; i < j; i, j = i+1, j-1 {
		batches[i], batches[j] = batches[j], batches[i]
	}
	return MergeBatches(batches...)
}

// MergeBatches folds raw candle batches into one ascending run keyed by
// openTime. When batches overlap on a key, the later batch's record wins.
func MergeBatches(batches ...[]domain.RawCandle) []domain.RawCandle {
	total := 0
	for _, b := range batches {
		total += len(b)
	}
	if total == 0 {
		return nil
	}

	byOpen := make(map[int64]domain.RawCandle, total)
	for _, b := range batches {
		for _, c := range b {
			byOpen[c.OpenTime.UnixMilli()] = c
		}
	}

	merged := make([]domain.RawCandle, 0, len(byOpen))
	for _, c := range byOpen {
		merged = append(merged, c)
	}
	return sortByOpenTime(merged)
}

func dedupe(batch []domain.RawCandle) []domain.RawCandle {
	seen := make(map[int64]int, len(batch))
	out := batch[:0:0]
	for _, c := range batch {
		key := c.OpenTime.UnixMilli()
		if i, ok := seen[key]; ok {
			out[i] = c
			continue
		}
		seen[key] = len(out)
		out = append(out, c)
	}
	return out
}

func sortByOpenTime(candles []domain.RawCandle) []domain.RawCandle {
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].OpenTime.Before(candles[j].OpenTime)
	})
	return candles
}
