// Package app orchestrates the chart: initial load, background backfill,
// live reconciliation and pagination, all funneled through a single owner of
// the candle series.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"fundingchart/internal/domain"
	"fundingchart/internal/funding"
	"fundingchart/internal/history"
	"fundingchart/internal/livefeed"
	"fundingchart/internal/ports"
	"fundingchart/internal/series"
)

const taskQueueSize = 1024

// ChartService owns the candle series. Every writer -- initial load,
// background backfill, pagination prepends, live reconciliation -- posts
// onto one task queue drained by a single goroutine, so mutations are
// serialized and readers never observe a half-applied update.
type ChartService struct {
	logger ports.Logger
	loader *history.Loader
	feed   *livefeed.Manager
	rates  *funding.Aligner
	store  *series.Store

	candleWidth     time.Duration
	backfillBatches int
	paginationPoll  time.Duration

	paginator *Paginator
	tasks     chan func()
	now       func() time.Time

	mu              sync.Mutex
	active          bool
	runCtx          context.Context
	lastVisibleFrom time.Time
	hasVisible      bool
}

// Config holds the chart service's dependencies and parameters.
type Config struct {
	Logger ports.Logger
	Loader *history.Loader
	Feed   *livefeed.Manager
	Rates  *funding.Aligner
	Store  *series.Store

	CandleWidth     time.Duration // width of one bucket, 8h
	BackfillBatches int           // deep-history batches fetched after first paint
	PaginationPoll  time.Duration // fallback pagination timer
}

func NewChartService(cfg Config) (*ChartService, error) {
	if cfg.Logger == nil || cfg.Loader == nil || cfg.Rates == nil || cfg.Store == nil {
		return nil, fmt.Errorf("missing required dependencies for chart service")
	}
	if cfg.CandleWidth <= 0 {
		cfg.CandleWidth = domain.CandleWidth
	}
	if cfg.BackfillBatches < 0 {
		return nil, fmt.Errorf("BackfillBatches cannot be negative")
	}
	if cfg.PaginationPoll <= 0 {
		cfg.PaginationPoll = 15 * time.Second
	}

	s := &ChartService{
		logger:          cfg.Logger,
		loader:          cfg.Loader,
		feed:            cfg.Feed,
		rates:           cfg.Rates,
		store:           cfg.Store,
		candleWidth:     cfg.CandleWidth,
		backfillBatches: cfg.BackfillBatches,
		paginationPoll:  cfg.PaginationPoll,
		tasks:           make(chan func(), taskQueueSize),
		now:             time.Now,
	}
	s.paginator = NewPaginator(PaginatorConfig{
		Logger:      cfg.Logger,
		CandleWidth: cfg.CandleWidth,
		Fetch:       s.fetchOlder,
		Apply:       s.applyOlder,
	})
	return s, nil
}

// Start performs the blocking initial load, kicks off the background
// workers and then drains the task queue until the context is cancelled or
// a termination signal arrives.
func (s *ChartService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting chart service...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	s.mu.Lock()
	s.active = true
	s.runCtx = ctx
	s.mu.Unlock()

	// Live feed first: its blocking funding refresh seeds the latest
	// authoritative rate the trailing candle classifies against.
	if s.feed != nil {
		if err := s.feed.Connect(ctx); err != nil {
			// Degraded, not failed: history still renders without a feed.
			s.logger.Error(ctx, err, "Live feed connection failed, continuing without live updates")
		} else {
			defer s.feed.Disconnect()
			sub := s.feed.Subscribe()
			defer sub.Cancel()
			go s.drainFeed(ctx, sub)
		}
	}

	// Blocking first paint: the newest batch from both markets.
	if err := s.initialLoad(ctx); err != nil {
		return err
	}

	// Deeper history loads in the background and is merged only once
	// complete.
	if s.backfillBatches > 0 {
		go s.backfill(ctx)
	}

	go s.paginationFallbackLoop(ctx)

	// Owner loop: the only goroutine that mutates the store.
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			s.logger.Info(context.Background(), "Chart service stopped.")
			return nil
		case fn := <-s.tasks:
			fn()
		}
	}
}

// initialLoad fetches the newest batch from both markets synchronously and
// initializes the series. An empty futures batch leaves an empty, readable
// series rather than failing the paint.
func (s *ChartService) initialLoad(ctx context.Context) error {
	futures := s.loader.FetchBatch(ctx, domain.MarketFutures, time.Time{})
	spot := s.loader.FetchBatch(ctx, domain.MarketSpot, time.Time{})

	candles := history.Compose(futures, spot, s.rates)
	if err := s.store.Initialize(candles); err != nil {
		return fmt.Errorf("initializing series: %w", err)
	}
	if oldest, ok := s.store.OldestTime(); ok {
		s.paginator.SetBoundary(oldest)
	}
	s.logger.Info(ctx, "Initial series loaded", map[string]interface{}{
		"candles":     len(candles),
		"futuresRows": len(futures),
		"spotRows":    len(spot),
	})
	return nil
}

// backfill chains additional historical batches backward from the initial
// boundary and merges them in one shot when done.
func (s *ChartService) backfill(ctx context.Context) {
	oldest, ok := s.store.OldestTime()
	if !ok {
		return
	}

	futures := s.loader.LoadHistory(ctx, domain.MarketFutures, oldest, s.backfillBatches)
	spot := s.loader.LoadHistory(ctx, domain.MarketSpot, oldest, s.backfillBatches)
	batch := history.ComposeClosed(futures, spot, s.rates)
	if len(batch) == 0 {
		return
	}
	s.logger.Info(ctx, "Background backfill complete", map[string]interface{}{"candles": len(batch)})
	s.applyOlder(batch)
}

// drainFeed forwards coalesced live points into the owner queue.
func (s *ChartService) drainFeed(ctx context.Context, sub *livefeed.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case point, ok := <-sub.Points():
			if !ok {
				return
			}
			s.post(func() { s.reconcile(point) })
		}
	}
}

// reconcile folds one live update into the trailing candle, or starts a new
// candle when the 8-hour window has elapsed. Runs on the owner goroutine.
func (s *ChartService) reconcile(p domain.LivePricePoint) {
	rate := s.rates.LatestRate()

	// The premium is computed on every update but does not feed the
	// classifier; the funding rate alone drives the index.
	var premium float64
	if p.Spot != 0 {
		premium = (p.Futures - p.Spot) / p.Spot * 100
	}
	s.logger.Debug(context.Background(), "Live update", map[string]interface{}{
		"spot":    p.Spot,
		"futures": p.Futures,
		"premium": premium,
		"funding": rate,
	})

	now := s.now()
	trailing, ok := s.store.Latest()
	if ok && now.Sub(trailing.OpenTime) < s.candleWidth {
		updated := trailing
		if p.Futures > updated.High {
			updated.High = p.Futures
		}
		if p.Futures < updated.Low {
			updated.Low = p.Futures
		}
		updated.Close = p.Futures
		if updated.SpotOpen == 0 {
			updated.SpotOpen = p.Spot
			updated.SpotHigh = p.Spot
			updated.SpotLow = p.Spot
		} else {
			if p.Spot > updated.SpotHigh {
				updated.SpotHigh = p.Spot
			}
			if p.Spot < updated.SpotLow {
				updated.SpotLow = p.Spot
			}
		}
		updated.SpotClose = p.Spot
		updated = history.Reclassify(updated, rate)
		if err := s.store.UpdateTrailing(updated); err != nil {
			s.logger.Error(context.Background(), err, "Failed to update trailing candle")
		}
		return
	}

	// Window elapsed (or empty series): open a fresh candle at the update.
	next := history.NewCandle(domain.RawCandle{
		OpenTime:  now,
		CloseTime: now.Add(s.candleWidth),
		Open:      p.Futures,
		High:      p.Futures,
		Low:       p.Futures,
		Close:     p.Futures,
	}, rate)
	next.SpotOpen = p.Spot
	next.SpotHigh = p.Spot
	next.SpotLow = p.Spot
	next.SpotClose = p.Spot
	if err := s.store.AppendNew(next); err != nil {
		s.logger.Error(context.Background(), err, "Failed to append new trailing candle")
	}
}

// fetchOlder is the paginator's blocking fetch: one batch per market
// composed into closed candles older than the bound.
func (s *ChartService) fetchOlder(ctx context.Context, before time.Time) []domain.Candle {
	futures := s.loader.FetchBatch(ctx, domain.MarketFutures, before)
	spot := s.loader.FetchBatch(ctx, domain.MarketSpot, before)
	return history.ComposeClosed(futures, spot, s.rates)
}

// applyOlder posts a prepend into the owner queue, clipping any overlap with
// candles the store already holds.
func (s *ChartService) applyOlder(batch []domain.Candle) {
	s.post(func() {
		if oldest, ok := s.store.OldestTime(); ok {
			batch = history.ClipBefore(batch, oldest)
		}
		if len(batch) == 0 {
			return
		}
		if err := s.store.PrependOlder(batch); err != nil {
			s.logger.Error(context.Background(), err, "Failed to prepend older candles")
			return
		}
		if oldest, ok := s.store.OldestTime(); ok {
			s.paginator.SetBoundary(oldest)
		}
	})
}

// OnViewportChange records the viewer's visible range and nudges the
// paginator. Called from the HTTP layer on every range-change event.
func (s *ChartService) OnViewportChange(from, to time.Time) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.lastVisibleFrom = from
	s.hasVisible = true
	ctx := s.runCtx
	s.mu.Unlock()

	s.paginator.OnVisibleRange(ctx, from)
}

// paginationFallbackLoop re-fires the last known viewport periodically, so a
// viewer parked near the edge still pulls history in.
func (s *ChartService) paginationFallbackLoop(ctx context.Context) {
	ticker := time.NewTicker(s.paginationPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			from, ok := s.lastVisibleFrom, s.hasVisible
			s.mu.Unlock()
			if ok {
				s.paginator.OnVisibleRange(ctx, from)
			}
		}
	}
}

// post enqueues a mutation for the owner goroutine. After teardown, or if
// the queue is saturated during teardown, the task is dropped.
func (s *ChartService) post(fn func()) {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if !active {
		return
	}
	select {
	case s.tasks <- fn:
	default:
		s.logger.Warn(context.Background(), "Task queue saturated, dropping mutation")
	}
}

func (s *ChartService) shutdown() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
	s.paginator.Close()
}

// --- Read accessors for the HTTP layer ---

// Snapshot returns a copy of the current series, oldest first.
func (s *ChartService) Snapshot() []domain.Candle {
	return s.store.Snapshot()
}

// CandleAt looks up full candle detail by its openTime, for tooltips.
func (s *ChartService) CandleAt(openTime time.Time) (domain.Candle, bool) {
	return s.store.At(openTime)
}

// HistoryExhausted reports whether the upstream confirmed there is no
// further history to paginate into.
func (s *ChartService) HistoryExhausted() bool {
	return s.paginator.Exhausted()
}
