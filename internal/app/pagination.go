package app

import (
	"context"
	"sync"
	"time"

	"fundingchart/internal/domain"
	"fundingchart/internal/ports"
)

// Paginator watches the viewer's visible time range and drives the
// historical loader backward when the range approaches the oldest loaded
// candle. At most one fetch is in flight; once the upstream returns an empty
// batch the boundary is exhausted and no further fetches are attempted.
type Paginator struct {
	logger ports.Logger
	width  time.Duration

	// fetch blocks on the network and returns the composed batch of candles
	// older than the bound, empty when the upstream is exhausted.
	fetch func(ctx context.Context, before time.Time) []domain.Candle
	// apply hands a non-empty batch to the series owner.
	apply func(batch []domain.Candle)

	mu          sync.Mutex
	boundary    time.Time
	hasBoundary bool
	exhausted   bool
	inFlight    bool
	closed      bool
}

// PaginatorConfig holds the paginator's dependencies and parameters.
type PaginatorConfig struct {
	Logger      ports.Logger
	CandleWidth time.Duration
	Fetch       func(ctx context.Context, before time.Time) []domain.Candle
	Apply       func(batch []domain.Candle)
}

func NewPaginator(cfg PaginatorConfig) *Paginator {
	width := cfg.CandleWidth
	if width <= 0 {
		width = domain.CandleWidth
	}
	return &Paginator{
		logger: cfg.Logger,
		width:  width,
		fetch:  cfg.Fetch,
		apply:  cfg.Apply,
	}
}

// SetBoundary records the openTime of the earliest candle currently loaded.
func (p *Paginator) SetBoundary(t time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.boundary = t
	p.hasBoundary = true
}

// Exhausted reports whether the upstream has confirmed there is no more
// history. Terminal state, not an error.
func (p *Paginator) Exhausted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exhausted
}

// OnVisibleRange is the pagination trigger. It may fire frequently -- on
// every range-change event plus a periodic fallback timer -- and is
// idempotent while a fetch is in flight. A no-op after Close.
func (p *Paginator) OnVisibleRange(ctx context.Context, earliestVisible time.Time) {
	p.mu.Lock()
	if p.closed || p.exhausted || p.inFlight || !p.hasBoundary {
		p.mu.Unlock()
		return
	}
	// Only react once the viewer is within one candle-width of the edge.
	if !earliestVisible.Before(p.boundary.Add(p.width)) {
		p.mu.Unlock()
		return
	}
	p.inFlight = true
	before := p.boundary
	p.mu.Unlock()

	go p.run(ctx, before)
}

func (p *Paginator) run(ctx context.Context, before time.Time) {
	batch := p.fetch(ctx, before)

	p.mu.Lock()
	p.inFlight = false
	if p.closed {
		p.mu.Unlock()
		return
	}
	if len(batch) == 0 {
		p.exhausted = true
		p.mu.Unlock()
		p.logger.Info(ctx, "History exhausted, no further pagination", map[string]interface{}{"boundary": before})
		return
	}
	p.mu.Unlock()

	p.apply(batch)
}

// Close makes every later trigger and late fetch completion a no-op.
func (p *Paginator) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}
